package services

import (
	"context"
	"strings"
	"time"

	"fieldsync/internal/queue"
)

// Token carries a session credential for the backend services.
type Token struct {
	Access    string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be presented at time now.
func (t Token) Valid(now time.Time) bool {
	if strings.TrimSpace(t.Access) == "" {
		return false
	}
	return t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt)
}

// LedgerClient writes material-tracking events to the relational record
// store.
type LedgerClient interface {
	CreateRecord(ctx context.Context, token string, payload queue.Payload) (string, error)
}

// LinkClient associates a completed attestation with its ledger record.
// In practice this is the ledger client again, but the linking step is a
// distinct delivery state so it gets a distinct contract.
type LinkClient interface {
	AttachProof(ctx context.Context, token, recordID, proofUID string) error
}

// ProofClient submits a schema-shaped attestation to the proof service
// and returns the attestation UID.
type ProofClient interface {
	Attest(ctx context.Context, token string, fields AttestationFields) (string, error)
}

// CredentialProvider supplies session tokens for backend calls. CurrentToken
// returns false when no usable token is cached; Reauthorize performs a
// silent refresh using long-lived stored credentials.
type CredentialProvider interface {
	CurrentToken(ctx context.Context) (Token, bool)
	Reauthorize(ctx context.Context) (Token, error)
}

// AttestationFields is the flattened schema payload the proof service
// signs. RecordID ties the attestation to the ledger row it proves.
type AttestationFields struct {
	RecordID       string  `json:"record_id"`
	ActionType     string  `json:"action_type"`
	AccountAddress string  `json:"account_address"`
	CollectorID    string  `json:"collector_id,omitempty"`
	IncomingWeight float64 `json:"incoming_weight"`
	OutgoingWeight float64 `json:"outgoing_weight"`
	Product        string  `json:"product,omitempty"`
	BatchQuantity  int     `json:"batch_quantity,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	EventTime      string  `json:"event_time"`
}

// DeriveAttestation maps a queue payload and its ledger record identifier
// onto the attestation schema.
func DeriveAttestation(payload queue.Payload, recordID string, createdAt time.Time) AttestationFields {
	fields := AttestationFields{
		RecordID:       recordID,
		ActionType:     payload.ActionType,
		AccountAddress: payload.AccountAddress,
		CollectorID:    payload.CollectorID,
		IncomingWeight: totalWeight(payload.IncomingMaterials),
		OutgoingWeight: totalWeight(payload.OutgoingMaterials),
		EventTime:      createdAt.UTC().Format(time.RFC3339),
	}
	if payload.Manufacturing != nil {
		fields.Product = payload.Manufacturing.Product
		fields.BatchQuantity = payload.Manufacturing.BatchQuantity
	}
	if payload.Location != nil {
		fields.Latitude = payload.Location.Latitude
		fields.Longitude = payload.Location.Longitude
	}
	return fields
}

func totalWeight(lines []queue.MaterialLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.Amount
	}
	return total
}
