package query

import (
	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/numeric"
	"github.com/roach88/ledger/internal/value"
	"github.com/roach88/ledger/internal/world"
)

// FindAssetQuantity returns the quantity held in a numeric asset.
func FindAssetQuantity(r world.Reader, id ident.AssetID) (numeric.Quantity, error) {
	a, err := r.Asset(id)
	if err != nil {
		return numeric.Quantity{}, err
	}
	if a.Value.Kind != model.AssetNumeric {
		return numeric.Quantity{}, ledgererr.New(ledgererr.CodeWrongValueType, "asset %s holds a store, not a quantity", id)
	}
	return a.Value.Numeric, nil
}

// FindAccountMetadata returns the metadata value of an account under key.
func FindAccountMetadata(r world.Reader, id ident.AccountID, key ident.Name) (value.Value, error) {
	a, err := r.Account(id)
	if err != nil {
		return nil, err
	}
	return metadataValue(a.Metadata, model.AccountRef(id), key)
}

// FindDomainMetadata returns the metadata value of a domain under key.
func FindDomainMetadata(r world.Reader, id ident.DomainID, key ident.Name) (value.Value, error) {
	d, err := r.Domain(id)
	if err != nil {
		return nil, err
	}
	return metadataValue(d.Metadata, model.DomainRef(id), key)
}

func metadataValue(md value.Metadata, owner model.Ref, key ident.Name) (value.Value, error) {
	v, ok := md.Get(key)
	if !ok {
		return nil, ledgererr.NotFound("metadata key", key).With(string(owner.Kind), owner.String())
	}
	return v, nil
}

// FindPermissions returns the permissions granted directly to an account,
// in canonical order. Permissions held through roles are not included; see
// FindRolesByAccount.
func FindPermissions(r world.Reader, id ident.AccountID) ([]model.Permission, error) {
	if _, err := r.Account(id); err != nil {
		return nil, err
	}
	return r.AccountPermissions(id).List(), nil
}

// FindRolesByAccount returns the roles an account is a member of, sorted.
func FindRolesByAccount(r world.Reader, id ident.AccountID) ([]ident.RoleID, error) {
	if _, err := r.Account(id); err != nil {
		return nil, err
	}
	roles := r.AccountRoles(id)
	if roles == nil {
		roles = []ident.RoleID{}
	}
	return roles, nil
}
