package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledger-sync/internal/config"
	apperrors "github.com/ledger-sync/internal/errors"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/retry"
	"github.com/ledger-sync/internal/source"
)

// StatementSource downloads raw statements inside a login session
type StatementSource interface {
	Login(ctx context.Context) (source.Session, error)
	DownloadStatement(ctx context.Context, accountID string) ([]byte, error)
}

// TargetReport is the outcome of uploading to one import target
type TargetReport struct {
	Endpoint string   `json:"endpoint"`
	Uploaded []string `json:"uploaded"`
	Skipped  []string `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// UploadReport is the outcome of one fan-out run
type UploadReport struct {
	Targets []TargetReport `json:"targets"`
}

// Failures counts failed uploads across targets
func (r *UploadReport) Failures() int {
	n := 0
	for _, t := range r.Targets {
		n += len(t.Errors)
	}
	return n
}

type importRequest struct {
	UserID    string `json:"user_id,omitempty"`
	AccountID string `json:"account_id"`
	Data      string `json:"data"`
}

// FanoutService posts raw statements to downstream ledger import endpoints
type FanoutService struct {
	client *http.Client
	retry  *retry.Config
	logger *logging.Logger
}

// NewFanoutService creates a new fan-out service
func NewFanoutService(timeout time.Duration, logger *logging.Logger) *FanoutService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &FanoutService{
		client: &http.Client{Timeout: timeout},
		retry:  importRetryConfig(retry.DefaultConfig()),
		logger: logger,
	}
}

// WithRetry replaces the backoff used for each post. Downstream imports are
// idempotent, so a repeated post never duplicates data.
func (s *FanoutService) WithRetry(config *retry.Config) *FanoutService {
	s.retry = importRetryConfig(config)
	return s
}

// importRetryConfig retries transport errors and 5xx/429 answers only
func importRetryConfig(config *retry.Config) *retry.Config {
	c := *config
	if c.Retryable == nil {
		c.Retryable = func(err error) bool {
			var catErr *apperrors.CategorizedError
			if !errors.As(err, &catErr) {
				return false
			}
			status, _ := catErr.Details["responseStatus"].(int)
			return status == 0 || status == http.StatusTooManyRequests || status >= 500
		}
	}
	return &c
}

// Upload downloads the statement of every account and posts it to every
// target that maps the account. A failing target is reported and the rest
// continue; download failures abort the run.
func (s *FanoutService) Upload(ctx context.Context, src StatementSource, accountIDs []string, targets []config.ImportTarget) (*UploadReport, error) {
	statements, err := s.download(ctx, src, accountIDs)
	if err != nil {
		return nil, err
	}

	report := &UploadReport{Targets: make([]TargetReport, 0, len(targets))}
	for _, target := range targets {
		tr := TargetReport{Endpoint: target.Endpoint, Uploaded: []string{}, Skipped: []string{}}
		logger := s.logger.WithField("endpoint", target.Endpoint)

		for _, accountID := range accountIDs {
			mapped, ok := target.AccountIDMapping[accountID]
			if !ok {
				logger.WithField("account_id", accountID).Warn("Account is not mapped for target, skipping")
				tr.Skipped = append(tr.Skipped, accountID)
				continue
			}

			if err := s.post(ctx, target, mapped, statements[accountID]); err != nil {
				logger.WithError(err).WithField("account_id", accountID).Error("Statement upload failed")
				tr.Errors = append(tr.Errors, err.Error())
				continue
			}
			tr.Uploaded = append(tr.Uploaded, accountID)
		}

		report.Targets = append(report.Targets, tr)
	}

	return report, nil
}

func (s *FanoutService) download(ctx context.Context, src StatementSource, accountIDs []string) (statements map[string][]byte, err error) {
	session, err := src.Login(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	statements = make(map[string][]byte, len(accountIDs))
	for _, accountID := range accountIDs {
		content, err := src.DownloadStatement(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to download statement for %s: %w", accountID, err)
		}
		statements[accountID] = content
	}
	return statements, nil
}

func (s *FanoutService) post(ctx context.Context, target config.ImportTarget, accountID string, content []byte) error {
	body, err := json.Marshal(importRequest{
		UserID:    target.UserID,
		AccountID: accountID,
		Data:      base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return fmt.Errorf("failed to encode import request: %w", err)
	}

	return retry.Do(ctx, s.retry, func(ctx context.Context, _ int) error {
		return s.postOnce(ctx, target.Endpoint, body)
	})
}

func (s *FanoutService) postOnce(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewDownstreamImportError(endpoint, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.NewDownstreamImportError(endpoint, 0, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewDownstreamImportError(endpoint, resp.StatusCode, nil)
	}
	return nil
}
