// Package adapter holds the reference collaborators that reach outside the
// process: the bank gateway HTTP client and the statement blob reader.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/retry"
	"github.com/ledger-sync/internal/source"
	"github.com/ledger-sync/internal/types"
	"golang.org/x/time/rate"
)

const (
	gatewayDateLayout = "2006-01-02"
	maxResponseBytes  = 32 << 20
)

// ErrResponseTooLarge is returned when a gateway response exceeds the
// configured size limit. Responses are never truncated.
var ErrResponseTooLarge = errors.New("response too large")

// Credentials are the gateway login credentials kept in a secret file
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoadCredentials reads a JSON secret file. Encrypted files are opened with
// secrets, which may be nil when only plaintext files are used.
func LoadCredentials(path string, secrets *SecretOpener) (*Credentials, error) {
	data, err := secrets.Open(path)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse secret file %s: %w", path, err)
	}
	if creds.Username == "" {
		return nil, fmt.Errorf("secret file %s: username is required", path)
	}
	return &creds, nil
}

// GatewayError is returned when the gateway answers with a non-2xx status
type GatewayError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// BankClientConfig configures a BankClient
type BankClientConfig struct {
	BaseURL           string
	SecretFile        string
	Secrets           *SecretOpener // opens .gpg secret files
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             *retry.Config // nil uses retry.DefaultConfig
	MaxResponseBytes  int64         // zero means 32 MiB
}

// BankClient talks JSON to a bank gateway that performs the actual login
// and scraping. It implements source.Client.
type BankClient struct {
	baseURL    string
	secretFile string
	secrets    *SecretOpener
	client     *http.Client
	limiter    *rate.Limiter
	retry      *retry.Config

	maxResponseBytes int64

	mu    sync.Mutex
	token string
}

// NewBankClient creates a gateway client. Credentials are read at login.
func NewBankClient(cfg BankClientConfig) *BankClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	retryCfg := retry.DefaultConfig()
	if cfg.Retry != nil {
		c := *cfg.Retry
		retryCfg = &c
	}
	if retryCfg.Retryable == nil {
		retryCfg.Retryable = isTransient
	}

	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = maxResponseBytes
	}

	return &BankClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretFile: cfg.SecretFile,
		secrets:    cfg.Secrets,
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		retry:      retryCfg,

		maxResponseBytes: maxBytes,
	}
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login authenticates against the gateway. The returned session logs out
// when closed.
func (c *BankClient) Login(ctx context.Context) (source.Session, error) {
	var creds *Credentials
	if c.secretFile != "" {
		var err error
		creds, err = LoadCredentials(c.secretFile, c.secrets)
		if err != nil {
			return nil, err
		}
	} else {
		creds = &Credentials{}
	}

	body, err := c.do(ctx, http.MethodPost, "/login", nil, creds)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	logging.FromContext(ctx).WithField("gateway", c.baseURL).Debug("Logged in to bank gateway")
	return &bankSession{client: c, logger: logging.FromContext(ctx)}, nil
}

// ListTransactions returns the transactions of accountIDs dated in [from, to)
func (c *BankClient) ListTransactions(ctx context.Context, accountIDs []string, from, to time.Time) ([]types.Record, error) {
	query := url.Values{}
	for _, id := range accountIDs {
		query.Add("account_id", id)
	}
	query.Set("from", from.UTC().Format(gatewayDateLayout))
	query.Set("to", to.UTC().Format(gatewayDateLayout))

	body, err := c.do(ctx, http.MethodGet, "/transactions", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecords(body)
}

// RecentActivity returns the gateway's recent activity for the logged in account
func (c *BankClient) RecentActivity(ctx context.Context) ([]types.Record, error) {
	body, err := c.do(ctx, http.MethodGet, "/activity", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecords(body)
}

// DownloadStatement returns the raw statement document of one account
func (c *BankClient) DownloadStatement(ctx context.Context, accountID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID)+"/statement", nil, nil)
}

func (c *BankClient) logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/logout", nil, nil)

	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()

	return err
}

// isTransient reports whether a failed gateway call may succeed if repeated
func isTransient(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.StatusCode == http.StatusTooManyRequests || gwErr.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *BankClient) do(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var body []byte
	err := retry.Do(ctx, c.retry, func(ctx context.Context, _ int) error {
		var err error
		body, err = c.doOnce(ctx, method, path, target, data)
		return err
	})
	return body, err
}

func (c *BankClient) doOnce(ctx context.Context, method, path, target string, data []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reqBody io.Reader
	if data != nil {
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > c.maxResponseBytes {
		return nil, fmt.Errorf("gateway %s %s: %w (limit %d bytes)", method, path, ErrResponseTooLarge, c.maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	return body, nil
}

// decodeRecords accepts either a bare JSON array or {"transactions": [...]}
func decodeRecords(body []byte) ([]types.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Transactions []types.Record `json:"transactions"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
		return nonNil(wrapped.Transactions), nil
	}

	var records []types.Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return nonNil(records), nil
}

func nonNil(records []types.Record) []types.Record {
	if records == nil {
		return []types.Record{}
	}
	return records
}

type bankSession struct {
	client *BankClient
	logger *logging.Logger
	once   sync.Once
	err    error
}

// Close logs out. It runs at most once and outlives a cancelled fetch
// context so the gateway session is always released.
func (s *bankSession) Close() error {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.err = s.client.logout(ctx)
		if s.err != nil {
			s.logger.WithError(s.err).Warn("Failed to log out of bank gateway")
		}
	})
	return s.err
}
