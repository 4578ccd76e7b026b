package ledger

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// External references name a business event deterministically:
//
//	{aggregateType}-{aggregateId}-{eventType}
//	{aggregateType}-{aggregateId}-{eventType}-{subEventId}
//
// Reconciliation joins on the three-component prefix, so the shape is a
// contract: aggregate and event types come from closed enums that never
// contain the delimiter, the id is a uuid, and only the sub-event id (and the
// uuid) may themselves contain hyphens — both sit in positions where they can
// only extend the tail, never fake a prefix. References are built here and
// nowhere else.

const referenceDelimiter = "-"

// AggregateType names the kind of business resource an event belongs to
type AggregateType string

const (
	AggregateTypeRental  AggregateType = "rental"
	AggregateTypeVehicle AggregateType = "vehicle"
	AggregateTypeInvoice AggregateType = "invoice"
)

// IsValid checks if the aggregate type is one of the closed set
func (t AggregateType) IsValid() bool {
	switch t {
	case AggregateTypeRental, AggregateTypeVehicle, AggregateTypeInvoice:
		return true
	}
	return false
}

// String returns the string representation of the aggregate type
func (t AggregateType) String() string {
	return string(t)
}

// EventType names the kind of financial event being recorded
type EventType string

const (
	EventTypeActivation EventType = "activation"
	EventTypePayment    EventType = "payment"
)

// IsValid checks if the event type is one of the closed set
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeActivation, EventTypePayment:
		return true
	}
	return false
}

// String returns the string representation of the event type
func (t EventType) String() string {
	return string(t)
}

// subEventPattern constrains caller-supplied sub-event identifiers (payment
// gateway references and the like) to a charset that stays URL- and
// SQL-LIKE-safe.
var subEventPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,119}$`)

// EventReference identifies one business event for ledger posting and
// reconciliation. Build it with NewEventReference / NewSubEventReference
// only; ad hoc string assembly would silently break the prefix-sum contract.
type EventReference struct {
	aggregateType AggregateType
	aggregateID   uuid.UUID
	eventType     EventType
	subEventID    string
}

// NewEventReference builds the reference for a single-occurrence event
// (an aggregate experiences it at most once, e.g. a rental's activation)
func NewEventReference(aggregateType AggregateType, aggregateID uuid.UUID, eventType EventType) (EventReference, error) {
	if !aggregateType.IsValid() {
		return EventReference{}, shared.NewDomainError(shared.ErrValidation.Code, fmt.Sprintf("Unknown aggregate type %q", aggregateType))
	}
	if aggregateID == uuid.Nil {
		return EventReference{}, shared.NewDomainError(shared.ErrValidation.Code, "Aggregate ID cannot be empty")
	}
	if !eventType.IsValid() {
		return EventReference{}, shared.NewDomainError(shared.ErrValidation.Code, fmt.Sprintf("Unknown event type %q", eventType))
	}
	return EventReference{
		aggregateType: aggregateType,
		aggregateID:   aggregateID,
		eventType:     eventType,
	}, nil
}

// NewSubEventReference builds the reference for one occurrence of a
// repeatable event (e.g. each partial payment against an invoice). The
// sub-event id must come from the event's own identity — a gateway reference,
// not a random value — so a replay derives the identical reference.
func NewSubEventReference(aggregateType AggregateType, aggregateID uuid.UUID, eventType EventType, subEventID string) (EventReference, error) {
	ref, err := NewEventReference(aggregateType, aggregateID, eventType)
	if err != nil {
		return EventReference{}, err
	}
	if !subEventPattern.MatchString(subEventID) {
		return EventReference{}, shared.NewDomainError(shared.ErrValidation.Code, fmt.Sprintf("Sub-event ID %q is not a valid reference segment", subEventID))
	}
	ref.subEventID = subEventID
	return ref, nil
}

// String renders the full reference
func (r EventReference) String() string {
	base := r.Prefix()
	if r.subEventID == "" {
		return base
	}
	return base + referenceDelimiter + r.subEventID
}

// Prefix renders the three-component prefix shared by all occurrences of the
// event on this aggregate — the reconciliation join key
func (r EventReference) Prefix() string {
	return strings.Join([]string{
		r.aggregateType.String(),
		r.aggregateID.String(),
		r.eventType.String(),
	}, referenceDelimiter)
}

// AggregateID returns the aggregate the reference points at
func (r EventReference) AggregateID() uuid.UUID {
	return r.aggregateID
}

// EventType returns the event kind encoded in the reference
func (r EventReference) EventType() EventType {
	return r.eventType
}

// ReversalSuffix marks references of correcting entries
const ReversalSuffix = "reversal"

// ReversalReference derives the reference of the entry that reverses the
// given one. Deterministic, so re-running a reversal is idempotent at the
// ledger layer like any other post.
func ReversalReference(original string) (string, error) {
	if original == "" {
		return "", shared.NewDomainError(shared.ErrValidation.Code, "Original reference cannot be empty")
	}
	return original + referenceDelimiter + ReversalSuffix, nil
}
