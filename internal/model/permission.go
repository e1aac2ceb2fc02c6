package model

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/value"
)

// Permission is a named capability, optionally scoped to one object.
//
// The known capabilities are the Can* types below. Custom carries any
// other capability by name with an opaque payload.
type Permission interface {
	// Name is the capability name, e.g. "CanRegisterAccount".
	Name() string
	// Scope is the object the capability is limited to. Unscoped
	// capabilities return the zero Ref.
	Scope() Ref
}

// Unscoped capabilities.
type (
	CanRegisterDomain struct{}
	CanManageRoles    struct{}
)

// Domain-scoped capabilities.
type (
	CanUnregisterDomain        struct{ Domain ident.DomainID `json:"domain"` }
	CanTransferDomain          struct{ Domain ident.DomainID `json:"domain"` }
	CanModifyDomainMetadata    struct{ Domain ident.DomainID `json:"domain"` }
	CanRegisterAccount         struct{ Domain ident.DomainID `json:"domain"` }
	CanRegisterAssetDefinition struct{ Domain ident.DomainID `json:"domain"` }
)

// Account-scoped capabilities.
type (
	CanUnregisterAccount     struct{ Account ident.AccountID `json:"account"` }
	CanModifyAccountMetadata struct{ Account ident.AccountID `json:"account"` }
	CanRegisterTrigger       struct{ Authority ident.AccountID `json:"authority"` }
)

// Asset-definition-scoped capabilities.
type (
	CanUnregisterAssetDefinition     struct{ AssetDefinition ident.AssetDefinitionID `json:"asset_definition"` }
	CanTransferAssetDefinition       struct{ AssetDefinition ident.AssetDefinitionID `json:"asset_definition"` }
	CanModifyAssetDefinitionMetadata struct{ AssetDefinition ident.AssetDefinitionID `json:"asset_definition"` }
	CanRegisterAssetWithDefinition   struct{ AssetDefinition ident.AssetDefinitionID `json:"asset_definition"` }
	CanUnregisterAssetWithDefinition struct{ AssetDefinition ident.AssetDefinitionID `json:"asset_definition"` }
	CanMintAssetWithDefinition       struct{ AssetDefinition ident.AssetDefinitionID `json:"asset_definition"` }
	CanBurnAssetWithDefinition       struct{ AssetDefinition ident.AssetDefinitionID `json:"asset_definition"` }
	CanTransferAssetWithDefinition   struct{ AssetDefinition ident.AssetDefinitionID `json:"asset_definition"` }
)

// Asset-scoped capabilities.
type (
	CanMintAsset           struct{ Asset ident.AssetID `json:"asset"` }
	CanBurnAsset           struct{ Asset ident.AssetID `json:"asset"` }
	CanTransferAsset       struct{ Asset ident.AssetID `json:"asset"` }
	CanModifyAssetMetadata struct{ Asset ident.AssetID `json:"asset"` }
)

// Trigger-scoped capabilities.
type (
	CanUnregisterTrigger struct{ Trigger ident.TriggerID `json:"trigger"` }
	CanModifyTrigger     struct{ Trigger ident.TriggerID `json:"trigger"` }
	CanExecuteTrigger    struct{ Trigger ident.TriggerID `json:"trigger"` }
)

// Custom is a capability unknown to the core. Two Customs are the same
// permission when their names and canonical payloads match.
type Custom struct {
	CustomName string
	Payload    value.Value // may be nil
}

func (CanRegisterDomain) Name() string                { return "CanRegisterDomain" }
func (CanManageRoles) Name() string                   { return "CanManageRoles" }
func (CanUnregisterDomain) Name() string              { return "CanUnregisterDomain" }
func (CanTransferDomain) Name() string                { return "CanTransferDomain" }
func (CanModifyDomainMetadata) Name() string          { return "CanModifyDomainMetadata" }
func (CanRegisterAccount) Name() string               { return "CanRegisterAccount" }
func (CanRegisterAssetDefinition) Name() string       { return "CanRegisterAssetDefinition" }
func (CanUnregisterAccount) Name() string             { return "CanUnregisterAccount" }
func (CanModifyAccountMetadata) Name() string         { return "CanModifyAccountMetadata" }
func (CanRegisterTrigger) Name() string               { return "CanRegisterTrigger" }
func (CanUnregisterAssetDefinition) Name() string     { return "CanUnregisterAssetDefinition" }
func (CanTransferAssetDefinition) Name() string       { return "CanTransferAssetDefinition" }
func (CanModifyAssetDefinitionMetadata) Name() string { return "CanModifyAssetDefinitionMetadata" }
func (CanRegisterAssetWithDefinition) Name() string   { return "CanRegisterAssetWithDefinition" }
func (CanUnregisterAssetWithDefinition) Name() string { return "CanUnregisterAssetWithDefinition" }
func (CanMintAssetWithDefinition) Name() string       { return "CanMintAssetWithDefinition" }
func (CanBurnAssetWithDefinition) Name() string       { return "CanBurnAssetWithDefinition" }
func (CanTransferAssetWithDefinition) Name() string   { return "CanTransferAssetWithDefinition" }
func (CanMintAsset) Name() string                     { return "CanMintAsset" }
func (CanBurnAsset) Name() string                     { return "CanBurnAsset" }
func (CanTransferAsset) Name() string                 { return "CanTransferAsset" }
func (CanModifyAssetMetadata) Name() string           { return "CanModifyAssetMetadata" }
func (CanUnregisterTrigger) Name() string             { return "CanUnregisterTrigger" }
func (CanModifyTrigger) Name() string                 { return "CanModifyTrigger" }
func (CanExecuteTrigger) Name() string                { return "CanExecuteTrigger" }
func (c Custom) Name() string                         { return c.CustomName }

func (CanRegisterDomain) Scope() Ref                  { return Ref{} }
func (CanManageRoles) Scope() Ref                     { return Ref{} }
func (p CanUnregisterDomain) Scope() Ref              { return DomainRef(p.Domain) }
func (p CanTransferDomain) Scope() Ref                { return DomainRef(p.Domain) }
func (p CanModifyDomainMetadata) Scope() Ref          { return DomainRef(p.Domain) }
func (p CanRegisterAccount) Scope() Ref               { return DomainRef(p.Domain) }
func (p CanRegisterAssetDefinition) Scope() Ref       { return DomainRef(p.Domain) }
func (p CanUnregisterAccount) Scope() Ref             { return AccountRef(p.Account) }
func (p CanModifyAccountMetadata) Scope() Ref         { return AccountRef(p.Account) }
func (p CanRegisterTrigger) Scope() Ref               { return AccountRef(p.Authority) }
func (p CanUnregisterAssetDefinition) Scope() Ref     { return AssetDefinitionRef(p.AssetDefinition) }
func (p CanTransferAssetDefinition) Scope() Ref       { return AssetDefinitionRef(p.AssetDefinition) }
func (p CanModifyAssetDefinitionMetadata) Scope() Ref { return AssetDefinitionRef(p.AssetDefinition) }
func (p CanRegisterAssetWithDefinition) Scope() Ref   { return AssetDefinitionRef(p.AssetDefinition) }
func (p CanUnregisterAssetWithDefinition) Scope() Ref { return AssetDefinitionRef(p.AssetDefinition) }
func (p CanMintAssetWithDefinition) Scope() Ref       { return AssetDefinitionRef(p.AssetDefinition) }
func (p CanBurnAssetWithDefinition) Scope() Ref       { return AssetDefinitionRef(p.AssetDefinition) }
func (p CanTransferAssetWithDefinition) Scope() Ref   { return AssetDefinitionRef(p.AssetDefinition) }
func (p CanMintAsset) Scope() Ref                     { return AssetRef(p.Asset) }
func (p CanBurnAsset) Scope() Ref                     { return AssetRef(p.Asset) }
func (p CanTransferAsset) Scope() Ref                 { return AssetRef(p.Asset) }
func (p CanModifyAssetMetadata) Scope() Ref           { return AssetRef(p.Asset) }
func (p CanUnregisterTrigger) Scope() Ref             { return TriggerRef(p.Trigger) }
func (p CanModifyTrigger) Scope() Ref                 { return TriggerRef(p.Trigger) }
func (p CanExecuteTrigger) Scope() Ref                { return TriggerRef(p.Trigger) }
func (Custom) Scope() Ref                             { return Ref{} }

// knownPermissions maps capability names to payload decoders.
var knownPermissions = map[string]func(payload []byte) (Permission, error){}

func registerPermission[T Permission]() {
	var zero T
	name := zero.Name()
	knownPermissions[name] = func(payload []byte) (Permission, error) {
		var p T
		if zero.Scope().Kind == "" {
			return p, nil
		}
		if len(payload) == 0 {
			return nil, fmt.Errorf("permission %s: missing payload", name)
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("permission %s payload: %w", name, err)
		}
		if p.Scope().String() == "" {
			return nil, fmt.Errorf("permission %s: empty scope", name)
		}
		return p, nil
	}
}

func init() {
	registerPermission[CanRegisterDomain]()
	registerPermission[CanManageRoles]()
	registerPermission[CanUnregisterDomain]()
	registerPermission[CanTransferDomain]()
	registerPermission[CanModifyDomainMetadata]()
	registerPermission[CanRegisterAccount]()
	registerPermission[CanRegisterAssetDefinition]()
	registerPermission[CanUnregisterAccount]()
	registerPermission[CanModifyAccountMetadata]()
	registerPermission[CanRegisterTrigger]()
	registerPermission[CanUnregisterAssetDefinition]()
	registerPermission[CanTransferAssetDefinition]()
	registerPermission[CanModifyAssetDefinitionMetadata]()
	registerPermission[CanRegisterAssetWithDefinition]()
	registerPermission[CanUnregisterAssetWithDefinition]()
	registerPermission[CanMintAssetWithDefinition]()
	registerPermission[CanBurnAssetWithDefinition]()
	registerPermission[CanTransferAssetWithDefinition]()
	registerPermission[CanMintAsset]()
	registerPermission[CanBurnAsset]()
	registerPermission[CanTransferAsset]()
	registerPermission[CanModifyAssetMetadata]()
	registerPermission[CanUnregisterTrigger]()
	registerPermission[CanModifyTrigger]()
	registerPermission[CanExecuteTrigger]()
}

// permissionEnvelope is the wire form of every permission.
type permissionEnvelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalPermission encodes p as {"name": ..., "payload": ...}.
func MarshalPermission(p Permission) ([]byte, error) {
	env, err := permissionToAny(p)
	if err != nil {
		return nil, err
	}
	return value.MarshalCanonical(env)
}

func permissionToAny(p Permission) (map[string]any, error) {
	env := map[string]any{"name": p.Name()}
	if c, ok := p.(Custom); ok {
		if c.Payload != nil {
			env["payload"] = c.Payload
		}
		return env, nil
	}
	if p.Scope().Kind == "" {
		return env, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal permission %s: %w", p.Name(), err)
	}
	payload, err := value.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal permission %s: %w", p.Name(), err)
	}
	env["payload"] = payload
	return env, nil
}

// UnmarshalPermission decodes the envelope form. Unknown names decode to Custom.
func UnmarshalPermission(data []byte) (Permission, error) {
	var env permissionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("permission: %w", err)
	}
	if env.Name == "" {
		return nil, fmt.Errorf("permission: missing name")
	}

	decode, known := knownPermissions[env.Name]
	if !known {
		c := Custom{CustomName: env.Name}
		if len(env.Payload) > 0 {
			payload, err := value.Unmarshal(env.Payload)
			if err != nil {
				return nil, fmt.Errorf("permission %s payload: %w", env.Name, err)
			}
			c.Payload = payload
		}
		return c, nil
	}
	return decode(env.Payload)
}

// PermissionKey returns the canonical identity of p, used to deduplicate
// permission sets.
func PermissionKey(p Permission) string {
	data, err := MarshalPermission(p)
	if err != nil {
		// Only a Custom payload holding an invalid Value can fail here.
		return p.Name() + "?"
	}
	return string(data)
}

// SamePermission reports whether a and b are the same capability with the
// same parameters.
func SamePermission(a, b Permission) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Name() != b.Name() {
		return false
	}
	return PermissionKey(a) == PermissionKey(b)
}

// PermissionSet is an immutable set of permissions keyed canonically.
// The zero value is empty.
type PermissionSet struct {
	m map[string]Permission
}

// NewPermissionSet builds a set from ps, dropping duplicates.
func NewPermissionSet(ps ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range ps {
		s, _ = s.Add(p)
	}
	return s
}

// Has reports whether p is in s.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s.m[PermissionKey(p)]
	return ok
}

// Add returns s with p added. added is false when p was already present.
func (s PermissionSet) Add(p Permission) (out PermissionSet, added bool) {
	key := PermissionKey(p)
	if _, ok := s.m[key]; ok {
		return s, false
	}
	cp := make(map[string]Permission, len(s.m)+1)
	for k, v := range s.m {
		cp[k] = v
	}
	cp[key] = p
	return PermissionSet{m: cp}, true
}

// Remove returns s without p. removed is false when p was absent.
func (s PermissionSet) Remove(p Permission) (out PermissionSet, removed bool) {
	key := PermissionKey(p)
	if _, ok := s.m[key]; !ok {
		return s, false
	}
	if len(s.m) == 1 {
		return PermissionSet{}, true
	}
	cp := make(map[string]Permission, len(s.m)-1)
	for k, v := range s.m {
		if k != key {
			cp[k] = v
		}
	}
	return PermissionSet{m: cp}, true
}

// RemoveIf returns s without the permissions for which drop returns true.
func (s PermissionSet) RemoveIf(drop func(Permission) bool) (out PermissionSet, changed bool) {
	var cp map[string]Permission
	for k, v := range s.m {
		if drop(v) {
			if cp == nil {
				cp = make(map[string]Permission, len(s.m))
				for k2, v2 := range s.m {
					cp[k2] = v2
				}
			}
			delete(cp, k)
		}
	}
	if cp == nil {
		return s, false
	}
	if len(cp) == 0 {
		return PermissionSet{}, true
	}
	return PermissionSet{m: cp}, true
}

// Len returns the number of permissions in s.
func (s PermissionSet) Len() int { return len(s.m) }

// List returns the permissions in canonical key order.
func (s PermissionSet) List() []Permission {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Permission, len(keys))
	for i, k := range keys {
		out[i] = s.m[k]
	}
	return out
}

// MarshalJSON encodes s as an array of permission envelopes.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	list := s.List()
	arr := make([]any, len(list))
	for i, p := range list {
		env, err := permissionToAny(p)
		if err != nil {
			return nil, err
		}
		arr[i] = env
	}
	return value.MarshalCanonical(arr)
}

// UnmarshalJSON decodes an array of permission envelopes.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("permission set: %w", err)
	}
	var out PermissionSet
	for i, raw := range raws {
		p, err := UnmarshalPermission(raw)
		if err != nil {
			return fmt.Errorf("permission set [%d]: %w", i, err)
		}
		out, _ = out.Add(p)
	}
	*s = out
	return nil
}

// PermissionJSON wraps a Permission so it can sit in a struct field that
// encoding/json handles.
type PermissionJSON struct {
	Permission
}

// MarshalJSON implements json.Marshaler.
func (p PermissionJSON) MarshalJSON() ([]byte, error) {
	if p.Permission == nil {
		return nil, fmt.Errorf("marshal nil permission")
	}
	return MarshalPermission(p.Permission)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PermissionJSON) UnmarshalJSON(data []byte) error {
	perm, err := UnmarshalPermission(data)
	if err != nil {
		return err
	}
	p.Permission = perm
	return nil
}
