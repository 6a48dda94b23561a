package proof

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fieldsync/internal/services"
	"fieldsync/internal/testsupport"
)

func newClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithProofURL(server.URL))
	return New(cfg)
}

func TestAttestSubmitsSchemaAndFields(t *testing.T) {
	var gotPath string
	var gotReq struct {
		SchemaUID string                     `json:"schema_uid"`
		Fields    services.AttestationFields `json:"fields"`
	}
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"uid":"uid-9"}`))
	}))

	fields := services.AttestationFields{RecordID: "rec-1", ActionType: "pickup", AccountAddress: "0xabc"}
	uid, err := client.Attest(context.Background(), "tok", fields)
	if err != nil {
		t.Fatalf("Attest: %v", err)
	}
	if uid != "uid-9" {
		t.Fatalf("uid = %q", uid)
	}
	if gotPath != "/attestations" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotReq.SchemaUID != "0xtest-schema" {
		t.Fatalf("schema = %q", gotReq.SchemaUID)
	}
	if gotReq.Fields.RecordID != "rec-1" {
		t.Fatalf("fields = %+v", gotReq.Fields)
	}
}

func TestAttestClassifiesStatuses(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
		label  string
	}{
		{http.StatusUnauthorized, services.IsAuth, "auth"},
		{http.StatusBadRequest, func(err error) bool { return errors.Is(err, services.ErrValidation) }, "validation"},
		{http.StatusBadGateway, services.IsTransient, "transient"},
	}

	for _, tc := range tests {
		client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := client.Attest(context.Background(), "tok", services.AttestationFields{})
		if err == nil {
			t.Fatalf("status %d: no error", tc.status)
		}
		if !tc.check(err) {
			t.Fatalf("status %d not classified as %s: %v", tc.status, tc.label, err)
		}
	}
}

func TestAttestRejectsMissingUID(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	if _, err := client.Attest(context.Background(), "tok", services.AttestationFields{}); !services.IsTransient(err) {
		t.Fatalf("missing uid error = %v, want transient", err)
	}
}
