package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"scriptoria/internal/domain"
	"scriptoria/internal/security"
)

// MinAPIKeyLength is the shortest API key Save accepts.
const MinAPIKeyLength = 10

// Credential sources reported by CredentialService.Source.
const (
	SourceConfig = "config"
	SourceStore  = "store"
	SourceNone   = "none"
)

// CredentialService stores the Gemini API key and serves it to the streamer.
// A key set in configuration takes precedence over the stored one.
type CredentialService struct {
	store      domain.KVStore
	passphrase string
	override   string
	logger     *slog.Logger
}

// NewCredentialService creates a CredentialService. When passphrase is
// non-empty the stored key is sealed with it. override is the configured
// key, if any.
func NewCredentialService(store domain.KVStore, passphrase, override string, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		store:      store,
		passphrase: passphrase,
		override:   override,
		logger:     logger,
	}
}

// Save validates and stores key.
func (c *CredentialService) Save(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if len(key) < MinAPIKeyLength {
		return fmt.Errorf("%w: api key must be at least %d characters", domain.ErrInvalidInput, MinAPIKeyLength)
	}

	value, err := security.Seal(key, c.passphrase)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, domain.KeyAPIKey, value); err != nil {
		return err
	}
	c.logger.Info("api key saved", "sealed", security.IsSealed(value))
	return nil
}

// APIKey implements domain.KeySource.
func (c *CredentialService) APIKey(ctx context.Context) (string, error) {
	if c.override != "" {
		return c.override, nil
	}

	value, err := c.store.Get(ctx, domain.KeyAPIKey)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrMissingCredential
	}
	if err != nil {
		return "", err
	}

	key, err := security.Open(value, c.passphrase)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", domain.ErrMissingCredential
	}
	return key, nil
}

// Source reports where APIKey would read the key from.
func (c *CredentialService) Source(ctx context.Context) (string, error) {
	if c.override != "" {
		return SourceConfig, nil
	}
	_, err := c.store.Get(ctx, domain.KeyAPIKey)
	switch {
	case err == nil:
		return SourceStore, nil
	case errors.Is(err, domain.ErrNotFound):
		return SourceNone, nil
	default:
		return "", err
	}
}

// Rotate re-encrypts the stored key under newPassphrase. The service keeps
// using newPassphrase afterwards.
func (c *CredentialService) Rotate(ctx context.Context, newPassphrase string) error {
	value, err := c.store.Get(ctx, domain.KeyAPIKey)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrMissingCredential
	}
	if err != nil {
		return err
	}

	resealed, err := security.Reseal(value, c.passphrase, newPassphrase)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, domain.KeyAPIKey, resealed); err != nil {
		return err
	}
	c.passphrase = newPassphrase
	c.logger.Info("api key re-encrypted", "sealed", security.IsSealed(resealed))
	return nil
}

// Clear removes the stored key.
func (c *CredentialService) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, domain.KeyAPIKey)
}

var _ domain.KeySource = (*CredentialService)(nil)
