package creds

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fieldsync/internal/services"
)

type fakeAuth struct {
	calls     int
	lastToken string
	result    services.Token
	err       error
}

func (f *fakeAuth) RefreshSession(_ context.Context, refreshToken string) (services.Token, error) {
	f.calls++
	f.lastToken = refreshToken
	if f.err != nil {
		return services.Token{}, f.err
	}
	return f.result, nil
}

func TestFileProviderReauthorizeAndCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := WriteCredentials(path, "refresh-1"); err != nil {
		t.Fatalf("WriteCredentials: %v", err)
	}

	auth := &fakeAuth{result: services.Token{Access: "session-1", ExpiresAt: time.Now().Add(time.Hour)}}
	provider := NewFileProvider(path, auth)
	ctx := context.Background()

	if _, ok := provider.CurrentToken(ctx); ok {
		t.Fatal("token available before reauthorization")
	}

	token, err := provider.Reauthorize(ctx)
	if err != nil {
		t.Fatalf("Reauthorize: %v", err)
	}
	if token.Access != "session-1" {
		t.Fatalf("Access = %q", token.Access)
	}
	if auth.lastToken != "refresh-1" {
		t.Fatalf("refresh token sent = %q", auth.lastToken)
	}

	cached, ok := provider.CurrentToken(ctx)
	if !ok || cached.Access != "session-1" {
		t.Fatalf("cached token: %+v ok=%v", cached, ok)
	}
	if auth.calls != 1 {
		t.Fatalf("auth calls = %d, want 1", auth.calls)
	}
}

func TestFileProviderRejectsNearExpiryToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := WriteCredentials(path, "refresh-1"); err != nil {
		t.Fatalf("WriteCredentials: %v", err)
	}

	// Expires inside the safety margin: a pass must not start with it.
	auth := &fakeAuth{result: services.Token{Access: "session-1", ExpiresAt: time.Now().Add(5 * time.Second)}}
	provider := NewFileProvider(path, auth)
	ctx := context.Background()

	if _, err := provider.Reauthorize(ctx); err != nil {
		t.Fatalf("Reauthorize: %v", err)
	}
	if _, ok := provider.CurrentToken(ctx); ok {
		t.Fatal("near-expiry token served from cache")
	}
}

func TestFileProviderMissingCredentialsIsAuthError(t *testing.T) {
	provider := NewFileProvider(filepath.Join(t.TempDir(), "absent.json"), &fakeAuth{})
	_, err := provider.Reauthorize(context.Background())
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if !services.IsAuth(err) {
		t.Fatalf("error not classified as auth: %v", err)
	}
}

func TestFileProviderRejectsEmptyRefreshToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := WriteCredentials(path, ""); err != nil {
		t.Fatalf("WriteCredentials: %v", err)
	}
	provider := NewFileProvider(path, &fakeAuth{})
	if _, err := provider.Reauthorize(context.Background()); !services.IsAuth(err) {
		t.Fatalf("error = %v, want auth classification", err)
	}
}
