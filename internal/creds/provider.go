// Package creds caches session tokens for the backend services and
// performs silent reauthorization from long-lived stored credentials.
// Secure acquisition of those credentials is outside this package; it
// only reads what the platform keystore (here: a mode-0600 JSON file)
// already holds.
package creds

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"fieldsync/internal/services"
)

// Reauthorizer exchanges a long-lived refresh token for a fresh session
// token. The ledger client implements this against its auth endpoint.
type Reauthorizer interface {
	RefreshSession(ctx context.Context, refreshToken string) (services.Token, error)
}

type storedCredentials struct {
	RefreshToken string `json:"refresh_token"`
}

// FileProvider implements services.CredentialProvider on top of a
// credentials file plus a Reauthorizer. Tokens are cached in memory with a
// small expiry margin so a pass never starts with a token about to lapse.
type FileProvider struct {
	path string
	auth Reauthorizer

	mu    sync.Mutex
	token services.Token
}

// NewFileProvider builds a provider reading refresh credentials from path.
func NewFileProvider(path string, auth Reauthorizer) *FileProvider {
	return &FileProvider{path: path, auth: auth}
}

const expiryMargin = 30 * time.Second

// CurrentToken returns the cached session token when it is still usable.
func (p *FileProvider) CurrentToken(_ context.Context) (services.Token, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token.Valid(time.Now().Add(expiryMargin)) {
		return p.token, true
	}
	return services.Token{}, false
}

// Reauthorize reads the stored refresh token and exchanges it for a new
// session token, caching the result.
func (p *FileProvider) Reauthorize(ctx context.Context) (services.Token, error) {
	stored, err := p.readCredentials()
	if err != nil {
		return services.Token{}, err
	}

	token, err := p.auth.RefreshSession(ctx, stored.RefreshToken)
	if err != nil {
		return services.Token{}, err
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
	return token, nil
}

func (p *FileProvider) readCredentials() (storedCredentials, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return storedCredentials{}, services.Wrap(services.ErrAuth, "creds", "read credentials", p.path, err)
	}
	var stored storedCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return storedCredentials{}, services.Wrap(services.ErrAuth, "creds", "parse credentials", p.path, err)
	}
	if strings.TrimSpace(stored.RefreshToken) == "" {
		return storedCredentials{}, services.Wrap(services.ErrAuth, "creds", "parse credentials", "refresh_token missing", nil)
	}
	return stored, nil
}

// WriteCredentials persists a refresh token for later silent
// reauthorization. Used by login tooling, not by the scheduler.
func WriteCredentials(path, refreshToken string) error {
	payload, err := json.MarshalIndent(storedCredentials{RefreshToken: refreshToken}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// StaticProvider returns a fixed token, used in tests and one-shot CLI runs.
type StaticProvider struct {
	Token services.Token
	// FailReauthorize forces Reauthorize to fail, for auth-abort tests.
	FailReauthorize bool
}

func (s StaticProvider) CurrentToken(_ context.Context) (services.Token, bool) {
	if s.Token.Valid(time.Now()) {
		return s.Token, true
	}
	return services.Token{}, false
}

func (s StaticProvider) Reauthorize(_ context.Context) (services.Token, error) {
	if s.FailReauthorize || !s.Token.Valid(time.Now()) {
		return services.Token{}, services.Wrap(services.ErrAuth, "creds", "reauthorize", "no stored credentials", nil)
	}
	return s.Token, nil
}
