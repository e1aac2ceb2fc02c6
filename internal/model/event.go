package model

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/numeric"
	"github.com/roach88/ledger/internal/value"
)

// EventKind names what happened to an object.
type EventKind string

const (
	EventCreated                  EventKind = "Created"
	EventDeleted                  EventKind = "Deleted"
	EventMetadataInserted         EventKind = "MetadataInserted"
	EventMetadataRemoved          EventKind = "MetadataRemoved"
	EventAmountIncreased          EventKind = "AmountIncreased"
	EventAmountDecreased          EventKind = "AmountDecreased"
	EventOwnerChanged             EventKind = "OwnerChanged"
	EventRolePermissionAdded      EventKind = "RolePermissionAdded"
	EventRolePermissionRemoved    EventKind = "RolePermissionRemoved"
	EventAccountPermissionAdded   EventKind = "AccountPermissionAdded"
	EventAccountPermissionRemoved EventKind = "AccountPermissionRemoved"
	EventAccountRoleGranted       EventKind = "AccountRoleGranted"
	EventAccountRoleRevoked       EventKind = "AccountRoleRevoked"
	EventTriggerExtended          EventKind = "TriggerExtended"
	EventTriggerShortened         EventKind = "TriggerShortened"
	EventExecuteTrigger           EventKind = "ExecuteTrigger"
)

// Event records one change to the world, tagged with the object it is about.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind   EventKind
	Entity Ref

	// Key and Value describe a metadata change.
	Key   ident.Name
	Value value.Value

	// Amount is the delta of an AmountIncreased/AmountDecreased event.
	Amount numeric.Quantity

	// Owner is the new owner of an OwnerChanged event.
	Owner ident.AccountID

	// Permission is the permission added or removed.
	Permission Permission

	// Role is the role granted or revoked.
	Role ident.RoleID

	// Count is the repetition delta of TriggerExtended/TriggerShortened.
	Count uint32

	// Authority is the caller of an ExecuteTrigger event.
	Authority ident.AccountID
}

func (e Event) String() string {
	s := fmt.Sprintf("%s %s %s", e.Entity.Kind, e.Entity, e.Kind)
	switch e.Kind {
	case EventMetadataInserted, EventMetadataRemoved:
		s += " " + e.Key.String()
	case EventAmountIncreased, EventAmountDecreased:
		s += " " + e.Amount.String()
	case EventOwnerChanged:
		s += " " + e.Owner.String()
	case EventRolePermissionAdded, EventRolePermissionRemoved, EventAccountPermissionAdded, EventAccountPermissionRemoved:
		s += " " + e.Permission.Name()
	case EventAccountRoleGranted, EventAccountRoleRevoked:
		s += " " + e.Role.String()
	case EventTriggerExtended, EventTriggerShortened:
		s += fmt.Sprintf(" %d", e.Count)
	case EventExecuteTrigger:
		s += " by " + e.Authority.String()
	}
	return s
}

type eventJSON struct {
	Kind       EventKind         `json:"kind"`
	Entity     Ref               `json:"entity"`
	Key        *ident.Name       `json:"key,omitempty"`
	Value      json.RawMessage   `json:"value,omitempty"`
	Amount     *numeric.Quantity `json:"amount,omitempty"`
	Owner      *ident.AccountID  `json:"owner,omitempty"`
	Permission *PermissionJSON   `json:"permission,omitempty"`
	Role       *ident.RoleID     `json:"role,omitempty"`
	Count      uint32            `json:"count,omitempty"`
	Authority  *ident.AccountID  `json:"authority,omitempty"`
}

// MarshalJSON encodes only the fields relevant to the event kind.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{Kind: e.Kind, Entity: e.Entity}
	switch e.Kind {
	case EventMetadataInserted, EventMetadataRemoved:
		key := e.Key
		out.Key = &key
		if e.Value != nil {
			raw, err := value.MarshalCanonical(e.Value)
			if err != nil {
				return nil, fmt.Errorf("event value: %w", err)
			}
			out.Value = raw
		}
	case EventAmountIncreased, EventAmountDecreased:
		amount := e.Amount
		out.Amount = &amount
	case EventOwnerChanged:
		owner := e.Owner
		out.Owner = &owner
	case EventRolePermissionAdded, EventRolePermissionRemoved, EventAccountPermissionAdded, EventAccountPermissionRemoved:
		out.Permission = &PermissionJSON{Permission: e.Permission}
	case EventAccountRoleGranted, EventAccountRoleRevoked:
		role := e.Role
		out.Role = &role
	case EventTriggerExtended, EventTriggerShortened:
		out.Count = e.Count
	case EventExecuteTrigger:
		authority := e.Authority
		out.Authority = &authority
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("event: %w", err)
	}
	out := Event{Kind: raw.Kind, Entity: raw.Entity, Count: raw.Count}
	if raw.Key != nil {
		out.Key = *raw.Key
	}
	if len(raw.Value) > 0 {
		v, err := value.Unmarshal(raw.Value)
		if err != nil {
			return fmt.Errorf("event value: %w", err)
		}
		out.Value = v
	}
	if raw.Amount != nil {
		out.Amount = *raw.Amount
	}
	if raw.Owner != nil {
		out.Owner = *raw.Owner
	}
	if raw.Permission != nil {
		out.Permission = raw.Permission.Permission
	}
	if raw.Role != nil {
		out.Role = *raw.Role
	}
	if raw.Authority != nil {
		out.Authority = *raw.Authority
	}
	*e = out
	return nil
}
