package model

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/ledger/internal/ident"
)

// EntityKind names a kind of ledger object.
type EntityKind string

const (
	EntityDomain          EntityKind = "domain"
	EntityAccount         EntityKind = "account"
	EntityAssetDefinition EntityKind = "asset_definition"
	EntityAsset           EntityKind = "asset"
	EntityRole            EntityKind = "role"
	EntityTrigger         EntityKind = "trigger"
)

// Ref points at one ledger object of any kind. Only the field matching Kind
// is set. Ref is comparable.
type Ref struct {
	Kind            EntityKind
	Domain          ident.DomainID
	Account         ident.AccountID
	AssetDefinition ident.AssetDefinitionID
	Asset           ident.AssetID
	Role            ident.RoleID
	Trigger         ident.TriggerID
}

func DomainRef(id ident.DomainID) Ref { return Ref{Kind: EntityDomain, Domain: id} }

func AccountRef(id ident.AccountID) Ref { return Ref{Kind: EntityAccount, Account: id} }

func AssetDefinitionRef(id ident.AssetDefinitionID) Ref {
	return Ref{Kind: EntityAssetDefinition, AssetDefinition: id}
}

func AssetRef(id ident.AssetID) Ref { return Ref{Kind: EntityAsset, Asset: id} }

func RoleRef(id ident.RoleID) Ref { return Ref{Kind: EntityRole, Role: id} }

func TriggerRef(id ident.TriggerID) Ref { return Ref{Kind: EntityTrigger, Trigger: id} }

// String returns the referenced id in its canonical text form.
func (r Ref) String() string {
	switch r.Kind {
	case EntityDomain:
		return r.Domain.String()
	case EntityAccount:
		return r.Account.String()
	case EntityAssetDefinition:
		return r.AssetDefinition.String()
	case EntityAsset:
		return r.Asset.String()
	case EntityRole:
		return r.Role.String()
	case EntityTrigger:
		return r.Trigger.String()
	default:
		return ""
	}
}

// InDomain reports whether the referenced object lives in domain d.
// Assets live in their account's domain; roles and triggers in none.
func (r Ref) InDomain(d ident.DomainID) bool {
	switch r.Kind {
	case EntityDomain:
		return r.Domain == d
	case EntityAccount:
		return r.Account.Domain == d
	case EntityAssetDefinition:
		return r.AssetDefinition.Domain == d
	case EntityAsset:
		return r.Asset.Account.Domain == d
	default:
		return false
	}
}

// MarshalJSON encodes r as a single-key object: {"domain": "wonderland"}.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.Kind == "" {
		return nil, fmt.Errorf("marshal empty ref")
	}
	return json.Marshal(map[string]string{string(r.Kind): r.String()})
}

// UnmarshalJSON decodes the single-key object form.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("ref: expected exactly one key, got %d", len(raw))
	}
	for k, v := range raw {
		parsed, err := ParseRef(EntityKind(k), v)
		if err != nil {
			return err
		}
		*r = parsed
	}
	return nil
}

// ParseRef parses id text as an id of the given kind.
func ParseRef(kind EntityKind, s string) (Ref, error) {
	switch kind {
	case EntityDomain:
		id, err := ident.ParseDomainID(s)
		return DomainRef(id), err
	case EntityAccount:
		id, err := ident.ParseAccountID(s)
		return AccountRef(id), err
	case EntityAssetDefinition:
		id, err := ident.ParseAssetDefinitionID(s)
		return AssetDefinitionRef(id), err
	case EntityAsset:
		id, err := ident.ParseAssetID(s)
		return AssetRef(id), err
	case EntityRole:
		id, err := ident.ParseRoleID(s)
		return RoleRef(id), err
	case EntityTrigger:
		id, err := ident.ParseTriggerID(s)
		return TriggerRef(id), err
	default:
		return Ref{}, fmt.Errorf("unknown entity kind %q", kind)
	}
}
