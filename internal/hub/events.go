package hub

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType identifies a domain event. The set is closed: the authorization
// filter matches exhaustively over these tags and denies anything else, so a
// new event type must be classified here before it can reach any subscriber.
type EventType string

const (
	EventEscrowCreated      EventType = "escrow:created"
	EventEscrowDisputed     EventType = "escrow:disputed"
	EventMilestoneSubmitted EventType = "milestone:submitted"
	EventMilestoneReleased  EventType = "milestone:released"
	EventSubmissionApproved EventType = "submission:approved"
	EventSubmissionRejected EventType = "submission:rejected"
	EventTokenCreated       EventType = "token:created"
	EventTokenTrade         EventType = "token:trade"
	EventTokenGraduated     EventType = "token:graduated"
)

// Event is one domain event flowing to subscribers. Payload carries the
// typed variant matching Type; the pairing is enforced by DecodeEvent and by
// the authorization filter's type assertions.
type Event struct {
	Type    EventType
	Payload any
}

// EscrowPayload accompanies escrow:created and milestone:released. Both
// parties to the escrow may observe it.
type EscrowPayload struct {
	EscrowID       string `json:"escrowId,omitempty"`
	KolAddress     string `json:"kolAddress"`
	ProjectAddress string `json:"projectAddress"`
	Amount         string `json:"amount,omitempty"`
}

// MilestonePayload accompanies milestone:submitted. Only the project side
// reviews submissions, so only it may observe the event.
type MilestonePayload struct {
	EscrowID       string `json:"escrowId,omitempty"`
	MilestoneID    string `json:"milestoneId,omitempty"`
	ProjectAddress string `json:"projectAddress"`
	KolAddress     string `json:"kolAddress,omitempty"`
}

// SubmissionPayload accompanies submission:approved and submission:rejected.
// The verdict is visible to the KOL who submitted.
type SubmissionPayload struct {
	EscrowID    string `json:"escrowId,omitempty"`
	MilestoneID string `json:"milestoneId,omitempty"`
	KolAddress  string `json:"kolAddress"`
	Reason      string `json:"reason,omitempty"`
}

// DisputePayload accompanies escrow:disputed. Either party and the raiser
// (which may be a third-party arbiter) may observe it.
type DisputePayload struct {
	EscrowID       string `json:"escrowId,omitempty"`
	KolAddress     string `json:"kolAddress"`
	ProjectAddress string `json:"projectAddress"`
	RaisedBy       string `json:"raisedBy"`
}

// TokenPayload accompanies the public token lifecycle events.
type TokenPayload struct {
	TokenAddress string `json:"tokenAddress,omitempty"`
	Symbol       string `json:"symbol,omitempty"`
	Price        string `json:"price,omitempty"`
	Creator      string `json:"creator,omitempty"`
}

// authorized decides whether an identity may receive an event. Admins see
// everything; every other case is an explicit ownership predicate over the
// payload addresses. Unknown event types and mismatched payloads fall
// through to deny.
func authorized(id Identity, evt Event) bool {
	if id.Role == RoleAdmin {
		return true
	}

	switch evt.Type {
	case EventEscrowCreated, EventMilestoneReleased:
		p, ok := evt.Payload.(EscrowPayload)
		return ok && (sameAddress(id.Address, p.KolAddress) || sameAddress(id.Address, p.ProjectAddress))

	case EventMilestoneSubmitted:
		p, ok := evt.Payload.(MilestonePayload)
		return ok && sameAddress(id.Address, p.ProjectAddress)

	case EventSubmissionApproved, EventSubmissionRejected:
		p, ok := evt.Payload.(SubmissionPayload)
		return ok && sameAddress(id.Address, p.KolAddress)

	case EventEscrowDisputed:
		p, ok := evt.Payload.(DisputePayload)
		return ok && (sameAddress(id.Address, p.KolAddress) ||
			sameAddress(id.Address, p.ProjectAddress) ||
			sameAddress(id.Address, p.RaisedBy))

	case EventTokenCreated, EventTokenTrade, EventTokenGraduated:
		return true

	default:
		return false
	}
}

func sameAddress(a, b string) bool {
	return b != "" && strings.EqualFold(a, b)
}

// DecodeEvent parses a producer message into a typed event. The event type
// selects the payload variant; unknown types are an error so malformed feed
// traffic can never reach subscribers.
func DecodeEvent(eventType string, data json.RawMessage) (Event, error) {
	typ := EventType(eventType)

	switch typ {
	case EventEscrowCreated, EventMilestoneReleased:
		var p EscrowPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		return Event{Type: typ, Payload: p}, nil
	case EventMilestoneSubmitted:
		var p MilestonePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		return Event{Type: typ, Payload: p}, nil
	case EventSubmissionApproved, EventSubmissionRejected:
		var p SubmissionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		return Event{Type: typ, Payload: p}, nil
	case EventEscrowDisputed:
		var p DisputePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		return Event{Type: typ, Payload: p}, nil
	case EventTokenCreated, EventTokenTrade, EventTokenGraduated:
		var p TokenPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		return Event{Type: typ, Payload: p}, nil
	default:
		return Event{}, fmt.Errorf("unknown event type %q", eventType)
	}
}
