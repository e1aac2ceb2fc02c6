package model

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/numeric"
	"github.com/roach88/ledger/internal/value"
)

// Instruction is one state change submitted in a batch.
//
// Kind is the snake_case envelope key of the instruction and doubles as
// its metrics label. The set of instructions is closed: UnmarshalInstruction
// only decodes the types declared in this file.
type Instruction interface {
	Kind() string
}

// Register instructions.
type (
	RegisterDomain struct {
		ID       ident.DomainID `json:"id"`
		Logo     string         `json:"logo,omitempty"`
		Metadata value.Metadata `json:"metadata"`
	}

	RegisterAccount struct {
		ID       ident.AccountID `json:"id"`
		Metadata value.Metadata  `json:"metadata"`
	}

	// RegisterAssetDefinition declares a new asset kind. An empty Mintable
	// means MintableInfinitely and an empty Type.Kind means numeric.
	RegisterAssetDefinition struct {
		ID       ident.AssetDefinitionID `json:"id"`
		Type     AssetType               `json:"type"`
		Mintable Mintable                `json:"mintable,omitempty"`
		Logo     string                  `json:"logo,omitempty"`
		Metadata value.Metadata          `json:"metadata"`
	}

	RegisterAsset struct {
		ID    ident.AssetID `json:"id"`
		Value AssetValue    `json:"value"`
	}

	// RegisterRole creates a role owned by the submitting authority.
	RegisterRole struct {
		ID          ident.RoleID  `json:"id"`
		Permissions PermissionSet `json:"permissions"`
	}

	RegisterTrigger struct {
		Trigger Trigger `json:"trigger"`
	}
)

// Unregister instructions. Each cascades to dependent objects.
type (
	UnregisterDomain          struct{ ID ident.DomainID `json:"id"` }
	UnregisterAccount         struct{ ID ident.AccountID `json:"id"` }
	UnregisterAssetDefinition struct{ ID ident.AssetDefinitionID `json:"id"` }
	UnregisterAsset           struct{ ID ident.AssetID `json:"id"` }
	UnregisterRole            struct{ ID ident.RoleID `json:"id"` }
	UnregisterTrigger         struct{ ID ident.TriggerID `json:"id"` }
)

// Mint and burn instructions.
type (
	MintAsset struct {
		Asset  ident.AssetID    `json:"asset"`
		Amount numeric.Quantity `json:"amount"`
	}

	BurnAsset struct {
		Asset  ident.AssetID    `json:"asset"`
		Amount numeric.Quantity `json:"amount"`
	}

	MintTriggerRepetitions struct {
		Trigger ident.TriggerID `json:"trigger"`
		Count   uint32          `json:"count"`
	}

	BurnTriggerRepetitions struct {
		Trigger ident.TriggerID `json:"trigger"`
		Count   uint32          `json:"count"`
	}
)

// Transfer instructions.
type (
	TransferDomain struct {
		From   ident.AccountID `json:"from"`
		Domain ident.DomainID  `json:"domain"`
		To     ident.AccountID `json:"to"`
	}

	TransferAssetDefinition struct {
		From       ident.AccountID         `json:"from"`
		Definition ident.AssetDefinitionID `json:"asset_definition"`
		To         ident.AccountID         `json:"to"`
	}

	// TransferAsset moves Amount of Source to the asset of the same
	// definition held by Destination, creating it if needed.
	TransferAsset struct {
		Source      ident.AssetID    `json:"source"`
		Amount      numeric.Quantity `json:"amount"`
		Destination ident.AccountID  `json:"destination"`
	}
)

// SetKeyValue inserts or replaces one metadata entry of Object. For assets
// it targets the store value.
type SetKeyValue struct {
	Object Ref
	Key    ident.Name
	Value  value.Value
}

// RemoveKeyValue deletes one metadata entry of Object.
type RemoveKeyValue struct {
	Object Ref        `json:"object"`
	Key    ident.Name `json:"key"`
}

// Grant and revoke instructions.
type (
	GrantPermission struct {
		Permission Permission
		Account    ident.AccountID
	}

	RevokePermission struct {
		Permission Permission
		Account    ident.AccountID
	}

	GrantRole struct {
		Role    ident.RoleID    `json:"role"`
		Account ident.AccountID `json:"account"`
	}

	RevokeRole struct {
		Role    ident.RoleID    `json:"role"`
		Account ident.AccountID `json:"account"`
	}

	GrantRolePermission struct {
		Permission Permission
		Role       ident.RoleID
	}

	RevokeRolePermission struct {
		Permission Permission
		Role       ident.RoleID
	}
)

// ExecuteTrigger fires a trigger whose filter accepts explicit calls.
type ExecuteTrigger struct {
	Trigger ident.TriggerID `json:"trigger"`
}

// Log writes Message at Level. It changes nothing, so a batch holding only
// a Log is the cheapest way to reach the pre-commit time check.
type Log struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// SlogLevel parses Level. An empty level is INFO.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return lvl, nil
}

func (RegisterDomain) Kind() string            { return "register_domain" }
func (RegisterAccount) Kind() string           { return "register_account" }
func (RegisterAssetDefinition) Kind() string   { return "register_asset_definition" }
func (RegisterAsset) Kind() string             { return "register_asset" }
func (RegisterRole) Kind() string              { return "register_role" }
func (RegisterTrigger) Kind() string           { return "register_trigger" }
func (UnregisterDomain) Kind() string          { return "unregister_domain" }
func (UnregisterAccount) Kind() string         { return "unregister_account" }
func (UnregisterAssetDefinition) Kind() string { return "unregister_asset_definition" }
func (UnregisterAsset) Kind() string           { return "unregister_asset" }
func (UnregisterRole) Kind() string            { return "unregister_role" }
func (UnregisterTrigger) Kind() string         { return "unregister_trigger" }
func (MintAsset) Kind() string                 { return "mint_asset" }
func (BurnAsset) Kind() string                 { return "burn_asset" }
func (MintTriggerRepetitions) Kind() string    { return "mint_trigger_repetitions" }
func (BurnTriggerRepetitions) Kind() string    { return "burn_trigger_repetitions" }
func (TransferDomain) Kind() string            { return "transfer_domain" }
func (TransferAssetDefinition) Kind() string   { return "transfer_asset_definition" }
func (TransferAsset) Kind() string             { return "transfer_asset" }
func (SetKeyValue) Kind() string               { return "set_key_value" }
func (RemoveKeyValue) Kind() string            { return "remove_key_value" }
func (GrantPermission) Kind() string           { return "grant_permission" }
func (RevokePermission) Kind() string          { return "revoke_permission" }
func (GrantRole) Kind() string                 { return "grant_role" }
func (RevokeRole) Kind() string                { return "revoke_role" }
func (GrantRolePermission) Kind() string       { return "grant_role_permission" }
func (RevokeRolePermission) Kind() string      { return "revoke_role_permission" }
func (ExecuteTrigger) Kind() string            { return "execute_trigger" }
func (Log) Kind() string                       { return "log" }

type setKeyValueJSON struct {
	Object Ref             `json:"object"`
	Key    ident.Name      `json:"key"`
	Value  json.RawMessage `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (s SetKeyValue) MarshalJSON() ([]byte, error) {
	if s.Value == nil {
		return nil, fmt.Errorf("set_key_value %s: nil value", s.Key)
	}
	raw, err := value.Marshal(s.Value)
	if err != nil {
		return nil, fmt.Errorf("set_key_value %s: %w", s.Key, err)
	}
	return json.Marshal(setKeyValueJSON{Object: s.Object, Key: s.Key, Value: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SetKeyValue) UnmarshalJSON(data []byte) error {
	var raw setKeyValueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Value) == 0 {
		return fmt.Errorf("set_key_value %s: missing value", raw.Key)
	}
	v, err := value.Unmarshal(raw.Value)
	if err != nil {
		return fmt.Errorf("set_key_value %s: %w", raw.Key, err)
	}
	*s = SetKeyValue{Object: raw.Object, Key: raw.Key, Value: v}
	return nil
}

type accountPermissionJSON struct {
	Permission PermissionJSON  `json:"permission"`
	Account    ident.AccountID `json:"account"`
}

type rolePermissionJSON struct {
	Permission PermissionJSON `json:"permission"`
	Role       ident.RoleID   `json:"role"`
}

func (g GrantPermission) MarshalJSON() ([]byte, error) {
	return json.Marshal(accountPermissionJSON{PermissionJSON{g.Permission}, g.Account})
}

func (g *GrantPermission) UnmarshalJSON(data []byte) error {
	var raw accountPermissionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = GrantPermission{Permission: raw.Permission.Permission, Account: raw.Account}
	return nil
}

func (r RevokePermission) MarshalJSON() ([]byte, error) {
	return json.Marshal(accountPermissionJSON{PermissionJSON{r.Permission}, r.Account})
}

func (r *RevokePermission) UnmarshalJSON(data []byte) error {
	var raw accountPermissionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = RevokePermission{Permission: raw.Permission.Permission, Account: raw.Account}
	return nil
}

func (g GrantRolePermission) MarshalJSON() ([]byte, error) {
	return json.Marshal(rolePermissionJSON{PermissionJSON{g.Permission}, g.Role})
}

func (g *GrantRolePermission) UnmarshalJSON(data []byte) error {
	var raw rolePermissionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = GrantRolePermission{Permission: raw.Permission.Permission, Role: raw.Role}
	return nil
}

func (r RevokeRolePermission) MarshalJSON() ([]byte, error) {
	return json.Marshal(rolePermissionJSON{PermissionJSON{r.Permission}, r.Role})
}

func (r *RevokeRolePermission) UnmarshalJSON(data []byte) error {
	var raw rolePermissionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = RevokeRolePermission{Permission: raw.Permission.Permission, Role: raw.Role}
	return nil
}

// knownInstructions maps envelope keys to decoders.
var knownInstructions = map[string]func(body []byte) (Instruction, error){}

func registerInstruction[T Instruction]() {
	var zero T
	knownInstructions[zero.Kind()] = func(body []byte) (Instruction, error) {
		var instr T
		if err := json.Unmarshal(body, &instr); err != nil {
			return nil, err
		}
		return instr, nil
	}
}

func init() {
	registerInstruction[RegisterDomain]()
	registerInstruction[RegisterAccount]()
	registerInstruction[RegisterAssetDefinition]()
	registerInstruction[RegisterAsset]()
	registerInstruction[RegisterRole]()
	registerInstruction[RegisterTrigger]()
	registerInstruction[UnregisterDomain]()
	registerInstruction[UnregisterAccount]()
	registerInstruction[UnregisterAssetDefinition]()
	registerInstruction[UnregisterAsset]()
	registerInstruction[UnregisterRole]()
	registerInstruction[UnregisterTrigger]()
	registerInstruction[MintAsset]()
	registerInstruction[BurnAsset]()
	registerInstruction[MintTriggerRepetitions]()
	registerInstruction[BurnTriggerRepetitions]()
	registerInstruction[TransferDomain]()
	registerInstruction[TransferAssetDefinition]()
	registerInstruction[TransferAsset]()
	registerInstruction[SetKeyValue]()
	registerInstruction[RemoveKeyValue]()
	registerInstruction[GrantPermission]()
	registerInstruction[RevokePermission]()
	registerInstruction[GrantRole]()
	registerInstruction[RevokeRole]()
	registerInstruction[GrantRolePermission]()
	registerInstruction[RevokeRolePermission]()
	registerInstruction[ExecuteTrigger]()
	registerInstruction[Log]()
}

// MarshalInstruction encodes instr as canonical JSON in its single-key
// envelope: {"mint_asset": {"amount": "16", "asset": "..."}}.
func MarshalInstruction(instr Instruction) ([]byte, error) {
	if instr == nil {
		return nil, fmt.Errorf("marshal nil instruction")
	}
	body, err := json.Marshal(instr)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", instr.Kind(), err)
	}
	env := append([]byte(`{"`+instr.Kind()+`":`), body...)
	env = append(env, '}')
	out, err := value.Canonicalize(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", instr.Kind(), err)
	}
	return out, nil
}

// UnmarshalInstruction decodes a single-key envelope.
func UnmarshalInstruction(data []byte) (Instruction, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("instruction: %w", err)
	}
	if len(env) != 1 {
		return nil, fmt.Errorf("instruction: expected exactly one key, got %d", len(env))
	}
	for kind, body := range env {
		decode, ok := knownInstructions[kind]
		if !ok {
			return nil, fmt.Errorf("instruction: unknown kind %q", kind)
		}
		instr, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		return instr, nil
	}
	panic("unreachable")
}

// MarshalInstructions encodes a list of instructions as a JSON array.
func MarshalInstructions(instrs []Instruction) ([]byte, error) {
	out := []byte{'['}
	for i, instr := range instrs {
		if i > 0 {
			out = append(out, ',')
		}
		raw, err := MarshalInstruction(instr)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, raw...)
	}
	return append(out, ']'), nil
}

// UnmarshalInstructions decodes a JSON array of envelopes.
func UnmarshalInstructions(data []byte) ([]Instruction, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("instructions: %w", err)
	}
	out := make([]Instruction, len(raws))
	for i, raw := range raws {
		instr, err := UnmarshalInstruction(raw)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = instr
	}
	return out, nil
}

// InstructionsFromAny decodes instructions from generic YAML or CUE data
// (a []any of single-key maps) by routing it through the JSON codec.
func InstructionsFromAny(v any) ([]Instruction, error) {
	data, err := json.Marshal(value.ToStringMaps(v))
	if err != nil {
		return nil, fmt.Errorf("instructions: %w", err)
	}
	return UnmarshalInstructions(data)
}
