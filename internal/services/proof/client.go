// Package proof implements the HTTP client for the attestation service,
// which anchors a schema-shaped statement of the event on an append-only
// backend and returns its verifiable UID.
package proof

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/services"
)

const userAgent = "fieldsync/0.1"

// Client talks to the proof service.
type Client struct {
	baseURL   string
	schemaUID string
	http      *http.Client
}

// New builds a proof client from configuration.
func New(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Proof.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   cfg.Proof.BaseURL,
		schemaUID: cfg.Proof.SchemaUID,
		http:      &http.Client{Timeout: timeout},
	}
}

type attestRequest struct {
	SchemaUID string                     `json:"schema_uid"`
	Fields    services.AttestationFields `json:"fields"`
}

type attestResponse struct {
	UID string `json:"uid"`
}

// Attest submits the attestation and returns its UID.
func (c *Client) Attest(ctx context.Context, token string, fields services.AttestationFields) (string, error) {
	body, err := json.Marshal(attestRequest{SchemaUID: c.schemaUID, Fields: fields})
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "proof", "attest", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/attestations", bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "proof", "attest", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "proof", "attest", "request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", services.Wrap(services.ErrAuth, "proof", "attest", httpDetail(resp), nil)
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		return "", services.Wrap(services.ErrValidation, "proof", "attest", httpDetail(resp), nil)
	default:
		return "", services.Wrap(services.ErrTransient, "proof", "attest", httpDetail(resp), nil)
	}

	var decoded attestResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "proof", "attest", "decode response", err)
	}
	if decoded.UID == "" {
		return "", services.Wrap(services.ErrTransient, "proof", "attest", "response missing attestation uid", nil)
	}
	return decoded.UID, nil
}

func httpDetail(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if len(snippet) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, snippet)
}
