package queue

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the overall lifecycle of a queue item, derived from its
// per-service delivery states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusOffline    Status = "offline"
	StatusFailed     Status = "failed"
	StatusCompleted  Status = "completed"
)

// ServiceStatus represents delivery progress against one backend dependency.
type ServiceStatus string

const (
	ServiceIncomplete ServiceStatus = "incomplete"
	ServicePending    ServiceStatus = "pending"
	ServiceProcessing ServiceStatus = "processing"
	ServiceCompleted  ServiceStatus = "completed"
	ServiceFailed     ServiceStatus = "failed"
	ServiceOffline    ServiceStatus = "offline"
)

var allStatuses = []Status{
	StatusPending,
	StatusQueued,
	StatusProcessing,
	StatusOffline,
	StatusFailed,
	StatusCompleted,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known overall statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ServiceName identifies one of the three delivery sub-states.
type ServiceName string

const (
	ServiceLedger  ServiceName = "ledger"
	ServiceProof   ServiceName = "proof"
	ServiceLinking ServiceName = "linking"
)

// MaterialLine describes one incoming or outgoing material entry.
type MaterialLine struct {
	MaterialType string  `json:"material_type"`
	Amount       float64 `json:"amount"`
	Unit         string  `json:"unit"`
	Code         string  `json:"code,omitempty"`
}

// ManufacturingDetail carries the optional manufacturing block of a payload.
type ManufacturingDetail struct {
	Product       string  `json:"product"`
	BatchQuantity int     `json:"batch_quantity"`
	Weight        float64 `json:"weight"`
}

// GeoPoint is an optional capture location.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// Payload is the domain data a field worker submitted. The queue treats it
// as opaque beyond the grouping keys (ActionType, AccountAddress); it must
// survive JSON round-trips losslessly.
type Payload struct {
	ActionType        string               `json:"action_type"`
	AccountAddress    string               `json:"account_address"`
	CollectorID       string               `json:"collector_id,omitempty"`
	IncomingMaterials []MaterialLine       `json:"incoming_materials,omitempty"`
	OutgoingMaterials []MaterialLine       `json:"outgoing_materials,omitempty"`
	Manufacturing     *ManufacturingDetail `json:"manufacturing,omitempty"`
	Location          *GeoPoint            `json:"location,omitempty"`
}

// ServiceState is the delivery state machine for one backend dependency.
//
// InitialRetryCount counts fast-phase attempts and stops increasing once
// EnteredSlowModeAt is set; SlowRetryCount counts cooldown-gated attempts.
// ResultID holds the service-assigned identifier (ledger record id,
// attestation uid) and is immutable once populated.
type ServiceState struct {
	Status            ServiceStatus `json:"status"`
	Error             string        `json:"error,omitempty"`
	InitialRetryCount int           `json:"initial_retry_count"`
	SlowRetryCount    int           `json:"slow_retry_count"`
	EnteredSlowModeAt *time.Time    `json:"entered_slow_mode_at,omitempty"`
	ResultID          string        `json:"result_id,omitempty"`
}

// InSlowMode reports whether the state has left the fast retry phase.
func (s ServiceState) InSlowMode() bool {
	return s.EnteredSlowModeAt != nil
}

// RecordFailure applies a failed attempt: the appropriate phase counter is
// incremented and the fast phase transitions to slow once maxFast
// consecutive attempts have been consumed. EnteredSlowModeAt is set at most
// once.
func (s *ServiceState) RecordFailure(reason string, maxFast int, now time.Time) {
	s.Status = ServiceFailed
	s.Error = reason
	if s.EnteredSlowModeAt == nil {
		s.InitialRetryCount++
		if s.InitialRetryCount >= maxFast {
			entered := now.UTC()
			s.EnteredSlowModeAt = &entered
		}
		return
	}
	s.SlowRetryCount++
}

// RecordSuccess completes the state. The first non-empty result identifier
// wins; later calls never overwrite it.
func (s *ServiceState) RecordSuccess(resultID string) {
	s.Status = ServiceCompleted
	s.Error = ""
	if s.ResultID == "" {
		s.ResultID = resultID
	}
}

// RecordOffline marks the state offline without touching retry counters.
func (s *ServiceState) RecordOffline() {
	if s.Status == ServiceCompleted {
		return
	}
	s.Status = ServiceOffline
}

// Item is one user-submitted event awaiting durable delivery to both
// backends. LocalID is generated client-side and never reused.
type Item struct {
	LocalID       string     `json:"local_id"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	// ClaimedAt is stamped when a scheduling pass claims the item and
	// cleared when the claim is consumed or released. It ages a claim
	// independently of LastAttemptAt, which claiming must not touch.
	ClaimedAt       *time.Time   `json:"claimed_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	Payload         Payload      `json:"payload"`
	Status          Status       `json:"status"`
	Ledger          ServiceState `json:"ledger"`
	Proof           ServiceState `json:"proof"`
	Linking         ServiceState `json:"linking"`
	TotalRetryCount int          `json:"total_retry_count"`
	// Exhausted marks an item whose slow phase ran past the maximum retry
	// age without success. Terminal for automatic delivery; only a manual
	// retry re-arms it.
	Exhausted bool `json:"exhausted,omitempty"`
}

// NewItem builds a pending queue item around a submitted payload.
func NewItem(payload Payload) *Item {
	return &Item{
		LocalID:   uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
		Status:    StatusPending,
		Ledger:    ServiceState{Status: ServicePending},
		Proof:     ServiceState{Status: ServicePending},
		Linking:   ServiceState{Status: ServiceIncomplete},
	}
}

// Service returns a pointer to the named sub-state, or nil for an unknown name.
func (i *Item) Service(name ServiceName) *ServiceState {
	switch name {
	case ServiceLedger:
		return &i.Ledger
	case ServiceProof:
		return &i.Proof
	case ServiceLinking:
		return &i.Linking
	default:
		return nil
	}
}

// IsFullyDelivered reports whether all three sub-states completed.
func (i *Item) IsFullyDelivered() bool {
	return i.Ledger.Status == ServiceCompleted &&
		i.Proof.Status == ServiceCompleted &&
		i.Linking.Status == ServiceCompleted
}

// RecomputeStatus derives the overall status from the three sub-states.
// Completed requires all three services completed; otherwise in-flight,
// offline, and failed conditions take precedence over pending, in that
// order. The queued claim flag is preserved so a scheduling pass is not
// raced by a second selection.
func (i *Item) RecomputeStatus() {
	if i.IsFullyDelivered() {
		i.Status = StatusCompleted
		return
	}
	if i.Status == StatusQueued {
		return
	}
	states := []ServiceStatus{i.Ledger.Status, i.Proof.Status, i.Linking.Status}
	for _, status := range states {
		if status == ServiceProcessing {
			i.Status = StatusProcessing
			return
		}
	}
	for _, status := range states {
		if status == ServiceOffline {
			i.Status = StatusOffline
			return
		}
	}
	for _, status := range states {
		if status == ServiceFailed {
			i.Status = StatusFailed
			return
		}
	}
	i.Status = StatusPending
}

// MarkAttempt records that a service call was attempted now. The total
// counter is monotonic and is bumped once per service call, not per pass.
func (i *Item) MarkAttempt(now time.Time) {
	attempt := now.UTC()
	i.LastAttemptAt = &attempt
	i.TotalRetryCount++
}

// Age returns how long the item has been enqueued as of now.
func (i *Item) Age(now time.Time) time.Duration {
	return now.Sub(i.CreatedAt)
}

// GroupKey returns the coarse dispatch grouping key (action type plus
// originating account).
func (i *Item) GroupKey() string {
	return i.Payload.ActionType + "|" + i.Payload.AccountAddress
}
