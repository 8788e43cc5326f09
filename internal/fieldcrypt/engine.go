// Package fieldcrypt encrypts individual PHI fields before they reach storage.
//
// Each value gets its own random salt and IV; the per-value key is derived from the
// master secret with scrypt and the value is sealed with AES-256-GCM. The stored token
// is self-describing (salt:iv:tag:ciphertext, lowercase hex) so any instance holding the
// master secret can decrypt it.
package fieldcrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/scrypt"

	dErrors "phiguard/pkg/domain-errors"
)

// MinSecretLength is the shortest master secret accepted in production.
const MinSecretLength = 32

const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// developmentSecret is only ever used outside production, and loudly.
const developmentSecret = "phiguard-development-secret-not-for-production-use"

// Config selects the master secret and the fail-closed policy.
type Config struct {
	MasterSecret string
	Production   bool
}

// Engine performs field-level encryption. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	secret []byte
	logger *slog.Logger
	random io.Reader
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom overrides the entropy source.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		e.random = r
	}
}

// NewEngine validates the master key policy and returns a ready Engine.
// In production a missing or short secret is a configuration_error; elsewhere a fixed
// development secret is used and an ERROR-level warning is logged.
func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	secret := cfg.MasterSecret
	if len(secret) < MinSecretLength {
		if cfg.Production {
			return nil, dErrors.New(dErrors.CodeConfiguration,
				fmt.Sprintf("field encryption key must be at least %d characters in production", MinSecretLength))
		}
		logger.Error("FIELD ENCRYPTION KEY NOT SET OR TOO SHORT: using insecure development secret; data encrypted now is NOT protected",
			"min_length", MinSecretLength,
		)
		secret = developmentSecret
	}

	e := &Engine{
		secret: []byte(secret),
		logger: logger,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EncryptField returns the token for plaintext. Empty or whitespace-only input
// returns EmptyMarker without touching the cipher.
func (e *Engine) EncryptField(plaintext string) (string, error) {
	if strings.TrimSpace(plaintext) == "" {
		return EmptyMarker, nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(e.random, salt); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate salt")
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(e.random, iv); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate iv")
	}

	aead, err := e.aead(salt)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to initialise cipher")
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	split := len(sealed) - tagSize
	encryptTotal.Inc()

	return token{
		salt:       salt,
		iv:         iv,
		tag:        sealed[split:],
		ciphertext: sealed[:split],
	}.String(), nil
}

// DecryptField reverses EncryptField. Any structural or authentication problem is a
// decryption_failed error and no partial plaintext is ever returned.
func (e *Engine) DecryptField(value string) (string, error) {
	return e.decrypt(context.Background(), value)
}

func (e *Engine) decrypt(ctx context.Context, value string) (string, error) {
	if value == EmptyMarker {
		return "", nil
	}

	t, reason := parseToken(value)
	if reason != "" {
		return "", e.fail(ctx, reason)
	}

	aead, err := e.aead(t.salt)
	if err != nil {
		return "", e.fail(ctx, reasonKeyDerivation)
	}

	sealed := make([]byte, 0, len(t.ciphertext)+len(t.tag))
	sealed = append(sealed, t.ciphertext...)
	sealed = append(sealed, t.tag...)

	plaintext, err := aead.Open(nil, t.iv, sealed, nil)
	if err != nil {
		return "", e.fail(ctx, reasonAuthentication)
	}
	decryptTotal.Inc()
	return string(plaintext), nil
}

// Reencrypt decrypts a token and seals it again under a fresh salt and IV.
func (e *Engine) Reencrypt(value string) (string, error) {
	plaintext, err := e.DecryptField(value)
	if err != nil {
		return "", err
	}
	return e.EncryptField(plaintext)
}

// MigrateLegacy encrypts a stored value that predates field encryption. Blank values,
// EmptyMarker and anything shaped like a token (damaged or not) are returned
// unchanged with migrated=false.
func (e *Engine) MigrateLegacy(value string) (out string, migrated bool, err error) {
	if strings.TrimSpace(value) == "" || value == EmptyMarker || hasTokenShape(value) {
		return value, false, nil
	}
	out, err = e.EncryptField(value)
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

func (e *Engine) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(e.secret, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}

// fail logs the failure class only; token and plaintext never reach the log.
func (e *Engine) fail(ctx context.Context, reason failureReason) error {
	decryptFailures.WithLabelValues(string(reason)).Inc()
	e.logger.WarnContext(ctx, "field decryption failed", "reason", string(reason))
	return dErrors.New(dErrors.CodeDecryption, "unable to decrypt field")
}
