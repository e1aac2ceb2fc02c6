// Package authz decides whether an authority may run an instruction.
//
// Authorize tries three sources in order and accepts the first that
// succeeds: the ownership rule of the instruction kind, a permission
// granted directly to the authority, and a permission held by one of the
// authority's roles. Permissions match on name and scope.
package authz

import (
	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/world"
)

// rule is what one instruction requires.
type rule struct {
	// owner is true when the ownership rule already admits the authority.
	owner bool
	// perms are the permissions that admit the authority, any one suffices.
	perms  []model.Permission
	target model.Ref
}

// Authorize returns nil when authority may run instr, a NotPermitted error
// when it may not, or the lookup error when the target's ownership cannot
// be resolved.
func Authorize(r world.Reader, authority ident.AccountID, instr model.Instruction) error {
	ru, err := ruleFor(r, authority, instr)
	if err != nil {
		return err
	}
	if ru.owner {
		return nil
	}
	for _, p := range ru.perms {
		if Holds(r, authority, p) {
			return nil
		}
	}
	capability := instr.Kind()
	if len(ru.perms) > 0 {
		capability = ru.perms[0].Name()
	}
	return ledgererr.NotPermitted(authority, capability, ru.target.String())
}

// Holds reports whether account holds p directly or through a role.
func Holds(r world.Reader, account ident.AccountID, p model.Permission) bool {
	if r.AccountPermissions(account).Has(p) {
		return true
	}
	for _, id := range r.AccountRoles(account) {
		role, err := r.Role(id)
		if err == nil && role.Permissions.Has(p) {
			return true
		}
	}
	return false
}

// Effective returns every permission account holds, direct and via roles.
func Effective(r world.Reader, account ident.AccountID) model.PermissionSet {
	set := r.AccountPermissions(account)
	for _, id := range r.AccountRoles(account) {
		role, err := r.Role(id)
		if err != nil {
			continue
		}
		for _, p := range role.Permissions.List() {
			set, _ = set.Add(p)
		}
	}
	return set
}

// CanGrant reports whether authority may grant or revoke p. An authority
// may pass on a scoped capability only when the ownership rule of that
// capability already admits it, so a grant never widens what the grantor
// could do itself. Unscoped permissions, Custom ones included, can be
// passed on only by an authority that holds them.
func CanGrant(r world.Reader, authority ident.AccountID, p model.Permission) bool {
	switch p := p.(type) {
	case model.CanUnregisterDomain:
		return ownsDomain(r, authority, p.Domain)
	case model.CanTransferDomain:
		return ownsDomain(r, authority, p.Domain)
	case model.CanModifyDomainMetadata:
		return ownsDomain(r, authority, p.Domain)
	case model.CanRegisterAccount:
		return ownsDomain(r, authority, p.Domain)
	case model.CanRegisterAssetDefinition:
		return ownsDomain(r, authority, p.Domain)

	case model.CanUnregisterAccount:
		return p.Account == authority || ownsDomain(r, authority, p.Account.Domain)
	case model.CanModifyAccountMetadata:
		return p.Account == authority || ownsDomain(r, authority, p.Account.Domain)
	case model.CanRegisterTrigger:
		return p.Authority == authority

	case model.CanUnregisterAssetDefinition:
		return ownsDefinition(r, authority, p.AssetDefinition, true)
	case model.CanTransferAssetDefinition:
		return ownsDefinition(r, authority, p.AssetDefinition, true)
	case model.CanModifyAssetDefinitionMetadata:
		return ownsDefinition(r, authority, p.AssetDefinition, true)
	case model.CanRegisterAssetWithDefinition:
		return ownsDefinition(r, authority, p.AssetDefinition, true)
	case model.CanUnregisterAssetWithDefinition:
		return ownsDefinition(r, authority, p.AssetDefinition, true)
	case model.CanMintAssetWithDefinition:
		return ownsDefinition(r, authority, p.AssetDefinition, true)
	case model.CanBurnAssetWithDefinition:
		return ownsDefinition(r, authority, p.AssetDefinition, true)
	case model.CanTransferAssetWithDefinition:
		return ownsDefinition(r, authority, p.AssetDefinition, false)

	// Holders burn, transfer and annotate their own assets but never mint.
	case model.CanMintAsset:
		return ownsDefinition(r, authority, p.Asset.Definition, true)
	case model.CanBurnAsset:
		return p.Asset.Account == authority || ownsDefinition(r, authority, p.Asset.Definition, true)
	case model.CanTransferAsset:
		return p.Asset.Account == authority || ownsDefinition(r, authority, p.Asset.Definition, false)
	case model.CanModifyAssetMetadata:
		return p.Asset.Account == authority

	case model.CanUnregisterTrigger:
		return triggerAuthority(r, authority, p.Trigger)
	case model.CanModifyTrigger:
		return triggerAuthority(r, authority, p.Trigger)
	case model.CanExecuteTrigger:
		return triggerAuthority(r, authority, p.Trigger)

	default:
		return Holds(r, authority, p)
	}
}

func triggerAuthority(r world.Reader, authority ident.AccountID, id ident.TriggerID) bool {
	t, err := r.Trigger(id)
	return err == nil && t.Action.Authority == authority
}

func ownsDomain(r world.Reader, authority ident.AccountID, id ident.DomainID) bool {
	d, err := r.Domain(id)
	return err == nil && d.OwnedBy == authority
}

// ownsDefinition reports whether authority owns the definition, or with
// viaDomain also whether it owns the definition's domain.
func ownsDefinition(r world.Reader, authority ident.AccountID, id ident.AssetDefinitionID, viaDomain bool) bool {
	d, err := r.AssetDefinition(id)
	if err != nil {
		return false
	}
	if d.OwnedBy == authority {
		return true
	}
	return viaDomain && ownsDomain(r, authority, id.Domain)
}
