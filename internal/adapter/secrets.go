package adapter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// ErrSecretLocked is returned when an encrypted secret cannot be opened with
// the configured keyring and passphrase
var ErrSecretLocked = errors.New("encrypted secret cannot be decrypted")

// SecretOpener reads secret files. Files ending in .gpg or .asc are OpenPGP
// messages, encrypted either to a key in the keyring or with a passphrase.
type SecretOpener struct {
	keyring    openpgp.EntityList
	passphrase []byte
}

// NewSecretOpener loads the private keyring at keyringFile, armored or
// binary. Both arguments are optional.
func NewSecretOpener(keyringFile, passphrase string) (*SecretOpener, error) {
	o := &SecretOpener{}
	if passphrase != "" {
		o.passphrase = []byte(passphrase)
	}
	if keyringFile == "" {
		return o, nil
	}

	f, err := os.Open(keyringFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(len("-----BEGIN"))
	if bytes.HasPrefix(head, []byte("-----BEGIN")) {
		o.keyring, err = openpgp.ReadArmoredKeyRing(br)
	} else {
		o.keyring, err = openpgp.ReadKeyRing(br)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring %s: %w", keyringFile, err)
	}
	return o, nil
}

// IsEncrypted reports whether path names an OpenPGP message
func IsEncrypted(path string) bool {
	return strings.HasSuffix(path, ".gpg") || strings.HasSuffix(path, ".asc")
}

// Open returns the plaintext content of the secret file at path
func (o *SecretOpener) Open(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}
	if !IsEncrypted(path) {
		return data, nil
	}
	if o == nil {
		return nil, fmt.Errorf("secret file %s: %w: no keyring or passphrase configured", path, ErrSecretLocked)
	}

	plain, err := o.decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("secret file %s: %w", path, err)
	}
	return plain, nil
}

func (o *SecretOpener) decrypt(data []byte) ([]byte, error) {
	var r io.Reader = bytes.NewReader(data)
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
		block, err := armor.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode armor: %w", err)
		}
		r = block.Body
	}

	// ReadMessage asks again after a wrong answer, so each prompt kind
	// gets one attempt.
	var askedSymmetric, askedKeys bool
	prompt := func(keys []openpgp.Key, symmetric bool) ([]byte, error) {
		if symmetric {
			if askedSymmetric || o.passphrase == nil {
				return nil, ErrSecretLocked
			}
			askedSymmetric = true
			return o.passphrase, nil
		}
		if askedKeys || o.passphrase == nil {
			return nil, ErrSecretLocked
		}
		askedKeys = true
		for _, k := range keys {
			if k.PrivateKey != nil && k.PrivateKey.Encrypted {
				_ = k.PrivateKey.Decrypt(o.passphrase)
			}
		}
		return nil, nil
	}

	md, err := openpgp.ReadMessage(r, o.keyring, prompt, nil)
	if err != nil {
		if errors.Is(err, ErrSecretLocked) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSecretLocked, err)
	}

	plain, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, fmt.Errorf("failed to read decrypted secret: %w", err)
	}
	return plain, nil
}
