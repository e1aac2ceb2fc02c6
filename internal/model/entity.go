package model

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/numeric"
	"github.com/roach88/ledger/internal/value"
)

// Domain is the top-level namespace. It has exactly one owner.
type Domain struct {
	ID       ident.DomainID  `json:"id"`
	OwnedBy  ident.AccountID `json:"owned_by"`
	Logo     string          `json:"logo,omitempty"`
	Metadata value.Metadata  `json:"metadata"`
}

// Account is a signatory within a domain. Permissions and role
// memberships are held by the registry, not the Account value.
type Account struct {
	ID       ident.AccountID `json:"id"`
	Metadata value.Metadata  `json:"metadata"`
}

// AssetKind distinguishes numeric assets from key-value store assets.
type AssetKind string

const (
	AssetNumeric AssetKind = "numeric"
	AssetStore   AssetKind = "store"
)

// AssetType is the value kind of an asset definition.
type AssetType struct {
	Kind    AssetKind    `json:"kind"`
	Numeric numeric.Spec `json:"spec"`
}

// NumericType returns a numeric asset type with the given spec.
func NumericType(spec numeric.Spec) AssetType {
	return AssetType{Kind: AssetNumeric, Numeric: spec}
}

// StoreType returns the key-value store asset type.
func StoreType() AssetType { return AssetType{Kind: AssetStore} }

func (t AssetType) String() string {
	if t.Kind == AssetStore {
		return "store"
	}
	return t.Numeric.String()
}

// Mintable is the minting policy of an asset definition.
type Mintable string

const (
	MintableInfinitely Mintable = "Infinitely"
	MintableOnce       Mintable = "Once"
	MintableNot        Mintable = "Not"
)

// Valid reports whether m is a known policy.
func (m Mintable) Valid() bool {
	switch m {
	case MintableInfinitely, MintableOnce, MintableNot:
		return true
	}
	return false
}

// AssetDefinition declares a kind of asset.
//
// Type and Mintable never change after registration. Minted records the
// first successful mint anywhere; once set, a Once definition rejects all
// further mints. TotalQuantity is the aggregate numeric supply.
type AssetDefinition struct {
	ID            ident.AssetDefinitionID `json:"id"`
	Type          AssetType               `json:"type"`
	Mintable      Mintable                `json:"mintable"`
	Logo          string                  `json:"logo,omitempty"`
	Metadata      value.Metadata          `json:"metadata"`
	OwnedBy       ident.AccountID         `json:"owned_by"`
	Minted        bool                    `json:"minted"`
	TotalQuantity numeric.Quantity        `json:"total_quantity"`
}

// AssetValue is the content of an asset: a quantity or a store.
type AssetValue struct {
	Kind    AssetKind
	Numeric numeric.Quantity
	Store   value.Metadata
}

// NumericValue returns a numeric asset value.
func NumericValue(q numeric.Quantity) AssetValue {
	return AssetValue{Kind: AssetNumeric, Numeric: q}
}

// StoreValue returns a store asset value.
func StoreValue(md value.Metadata) AssetValue {
	return AssetValue{Kind: AssetStore, Store: md}
}

func (v AssetValue) String() string {
	if v.Kind == AssetStore {
		data, _ := v.Store.MarshalJSON()
		return string(data)
	}
	return v.Numeric.String()
}

// MarshalJSON encodes v as {"numeric": "16"} or {"store": {...}}.
func (v AssetValue) MarshalJSON() ([]byte, error) {
	if v.Kind == AssetStore {
		return json.Marshal(map[string]value.Metadata{"store": v.Store})
	}
	return json.Marshal(map[string]numeric.Quantity{"numeric": v.Numeric})
}

// UnmarshalJSON decodes either form.
func (v *AssetValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Numeric *numeric.Quantity `json:"numeric"`
		Store   *value.Metadata   `json:"store"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("asset value: %w", err)
	}
	switch {
	case raw.Numeric != nil && raw.Store == nil:
		*v = NumericValue(*raw.Numeric)
	case raw.Store != nil && raw.Numeric == nil:
		*v = StoreValue(*raw.Store)
	default:
		return fmt.Errorf("asset value: exactly one of numeric or store required")
	}
	return nil
}

// Asset is one account's holding of one asset definition.
type Asset struct {
	ID    ident.AssetID `json:"id"`
	Value AssetValue    `json:"value"`
}

// Role is a named bundle of permissions. Changing a role's permissions
// changes the capabilities of every member.
type Role struct {
	ID          ident.RoleID    `json:"id"`
	Owner       ident.AccountID `json:"owner"`
	Permissions PermissionSet   `json:"permissions"`
}
