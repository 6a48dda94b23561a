// Package ledger implements the HTTP client for the relational record
// store (a Directus-style items API). It satisfies services.LedgerClient
// and creds.Reauthorizer.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/queue"
	"fieldsync/internal/services"
)

const userAgent = "fieldsync/0.1"

// Client talks to the ledger service.
type Client struct {
	baseURL  string
	endpoint string
	http     *http.Client
}

// New builds a ledger client from configuration.
func New(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Ledger.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  cfg.Ledger.BaseURL,
		endpoint: cfg.Ledger.EventsEndpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type recordEnvelope struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// CreateRecord writes one material-tracking event and returns the
// ledger-assigned record identifier.
func (c *Client) CreateRecord(ctx context.Context, token string, payload queue.Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "ledger", "create record", "encode payload", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+c.endpoint, token, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := classifyStatus("ledger", "create record", resp); err != nil {
		return "", err
	}

	var envelope recordEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", services.Wrap(services.ErrTransient, "ledger", "create record", "decode response", err)
	}
	if envelope.Data.ID == "" {
		return "", services.Wrap(services.ErrTransient, "ledger", "create record", "response missing record id", nil)
	}
	return envelope.Data.ID, nil
}

// AttachProof links a completed attestation onto its ledger record.
func (c *Client) AttachProof(ctx context.Context, token, recordID, proofUID string) error {
	body, err := json.Marshal(map[string]string{"proof_uid": proofUID})
	if err != nil {
		return services.Wrap(services.ErrValidation, "ledger", "attach proof", "encode body", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, c.baseURL+c.endpoint+"/"+recordID, token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return classifyStatus("ledger", "attach proof", resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshEnvelope struct {
	Data struct {
		AccessToken string `json:"access_token"`
		ExpiresMS   int64  `json:"expires"`
	} `json:"data"`
}

// RefreshSession exchanges a long-lived refresh token for a session token.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (services.Token, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return services.Token{}, services.Wrap(services.ErrAuth, "ledger", "refresh session", "encode body", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/auth/refresh", "", body)
	if err != nil {
		return services.Token{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Any refresh rejection means the stored credential is unusable.
		return services.Token{}, services.Wrap(services.ErrAuth, "ledger", "refresh session", httpDetail(resp), nil)
	}

	var envelope refreshEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return services.Token{}, services.Wrap(services.ErrAuth, "ledger", "refresh session", "decode response", err)
	}
	if envelope.Data.AccessToken == "" {
		return services.Token{}, services.Wrap(services.ErrAuth, "ledger", "refresh session", "response missing access token", nil)
	}

	token := services.Token{Access: envelope.Data.AccessToken}
	if envelope.Data.ExpiresMS > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(envelope.Data.ExpiresMS) * time.Millisecond)
	}
	return token, nil
}

func (c *Client) do(ctx context.Context, method, url, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ledger", "build request", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ledger", "request", url, err)
	}
	return resp, nil
}

func classifyStatus(component, operation string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, component, operation, httpDetail(resp), nil)
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		return services.Wrap(services.ErrValidation, component, operation, httpDetail(resp), nil)
	default:
		return services.Wrap(services.ErrTransient, component, operation, httpDetail(resp), nil)
	}
}

func httpDetail(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if len(snippet) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, snippet)
}
