package authz

import (
	"fmt"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/world"
)

// ruleFor maps an instruction to its ownership rule and permissions.
func ruleFor(r world.Reader, auth ident.AccountID, instr model.Instruction) (rule, error) {
	switch in := instr.(type) {
	case model.RegisterDomain:
		return rule{perms: perms(model.CanRegisterDomain{}), target: model.DomainRef(in.ID)}, nil

	case model.UnregisterDomain:
		d, err := r.Domain(in.ID)
		if err != nil {
			return rule{}, err
		}
		return rule{
			owner:  d.OwnedBy == auth,
			perms:  perms(model.CanUnregisterDomain{Domain: in.ID}),
			target: model.DomainRef(in.ID),
		}, nil

	case model.TransferDomain:
		d, err := r.Domain(in.Domain)
		if err != nil {
			return rule{}, err
		}
		return rule{
			owner:  in.From == auth && d.OwnedBy == auth,
			perms:  perms(model.CanTransferDomain{Domain: in.Domain}),
			target: model.DomainRef(in.Domain),
		}, nil

	case model.RegisterAccount:
		d, err := r.Domain(in.ID.Domain)
		if err != nil {
			return rule{}, err
		}
		return rule{
			owner:  d.OwnedBy == auth,
			perms:  perms(model.CanRegisterAccount{Domain: in.ID.Domain}),
			target: model.AccountRef(in.ID),
		}, nil

	case model.UnregisterAccount:
		if _, err := r.Account(in.ID); err != nil {
			return rule{}, err
		}
		return rule{
			owner:  in.ID == auth || ownsDomain(r, auth, in.ID.Domain),
			perms:  perms(model.CanUnregisterAccount{Account: in.ID}),
			target: model.AccountRef(in.ID),
		}, nil

	case model.RegisterAssetDefinition:
		d, err := r.Domain(in.ID.Domain)
		if err != nil {
			return rule{}, err
		}
		return rule{
			owner:  d.OwnedBy == auth,
			perms:  perms(model.CanRegisterAssetDefinition{Domain: in.ID.Domain}),
			target: model.AssetDefinitionRef(in.ID),
		}, nil

	case model.UnregisterAssetDefinition:
		if _, err := r.AssetDefinition(in.ID); err != nil {
			return rule{}, err
		}
		return rule{
			owner:  ownsDefinition(r, auth, in.ID, true),
			perms:  perms(model.CanUnregisterAssetDefinition{AssetDefinition: in.ID}),
			target: model.AssetDefinitionRef(in.ID),
		}, nil

	case model.TransferAssetDefinition:
		d, err := r.AssetDefinition(in.Definition)
		if err != nil {
			return rule{}, err
		}
		return rule{
			owner:  (in.From == auth && d.OwnedBy == auth) || ownsDomain(r, auth, in.Definition.Domain),
			perms:  perms(model.CanTransferAssetDefinition{AssetDefinition: in.Definition}),
			target: model.AssetDefinitionRef(in.Definition),
		}, nil

	case model.RegisterAsset:
		return definitionRule(r, auth, in.ID, true, model.CanRegisterAssetWithDefinition{AssetDefinition: in.ID.Definition})

	case model.UnregisterAsset:
		return definitionRule(r, auth, in.ID, true, model.CanUnregisterAssetWithDefinition{AssetDefinition: in.ID.Definition})

	case model.MintAsset:
		return definitionRule(r, auth, in.Asset, true,
			model.CanMintAssetWithDefinition{AssetDefinition: in.Asset.Definition},
			model.CanMintAsset{Asset: in.Asset})

	case model.BurnAsset:
		ru, err := definitionRule(r, auth, in.Asset, true,
			model.CanBurnAssetWithDefinition{AssetDefinition: in.Asset.Definition},
			model.CanBurnAsset{Asset: in.Asset})
		ru.owner = ru.owner || in.Asset.Account == auth
		return ru, err

	case model.TransferAsset:
		ru, err := definitionRule(r, auth, in.Source, false,
			model.CanTransferAssetWithDefinition{AssetDefinition: in.Source.Definition},
			model.CanTransferAsset{Asset: in.Source})
		ru.owner = ru.owner || in.Source.Account == auth
		return ru, err

	case model.SetKeyValue:
		return metadataRule(r, auth, in.Object)

	case model.RemoveKeyValue:
		return metadataRule(r, auth, in.Object)

	case model.RegisterRole:
		for _, p := range in.Permissions.List() {
			if !CanGrant(r, auth, p) {
				return rule{}, ledgererr.NotPermitted(auth, "grant "+p.Name(), model.RoleRef(in.ID).String())
			}
		}
		return rule{perms: perms(model.CanManageRoles{}), target: model.RoleRef(in.ID)}, nil

	case model.UnregisterRole:
		return roleRule(r, auth, in.ID)

	case model.GrantRole:
		return roleRule(r, auth, in.Role)

	case model.RevokeRole:
		return roleRule(r, auth, in.Role)

	case model.GrantRolePermission:
		return rolePermissionRule(r, auth, in.Role, in.Permission)

	case model.RevokeRolePermission:
		return rolePermissionRule(r, auth, in.Role, in.Permission)

	case model.GrantPermission:
		return accountPermissionRule(r, auth, in.Account, in.Permission)

	case model.RevokePermission:
		return accountPermissionRule(r, auth, in.Account, in.Permission)

	case model.RegisterTrigger:
		return rule{
			owner:  in.Trigger.Action.Authority == auth,
			perms:  perms(model.CanRegisterTrigger{Authority: in.Trigger.Action.Authority}),
			target: model.TriggerRef(in.Trigger.ID),
		}, nil

	case model.UnregisterTrigger:
		return triggerRule(r, auth, in.ID, model.CanUnregisterTrigger{Trigger: in.ID})

	case model.MintTriggerRepetitions:
		return triggerRule(r, auth, in.Trigger, model.CanModifyTrigger{Trigger: in.Trigger})

	case model.BurnTriggerRepetitions:
		return triggerRule(r, auth, in.Trigger, model.CanModifyTrigger{Trigger: in.Trigger})

	case model.ExecuteTrigger:
		ru, err := triggerRule(r, auth, in.Trigger, model.CanExecuteTrigger{Trigger: in.Trigger})
		if err != nil {
			return ru, err
		}
		t, _ := r.Trigger(in.Trigger)
		if f, ok := t.Action.Filter.(model.ExecuteTriggerFilter); ok && f.Authority != nil && *f.Authority == auth {
			ru.owner = true
		}
		return ru, nil

	case model.Log:
		return rule{owner: true}, nil

	default:
		return rule{}, fmt.Errorf("authorize: unsupported instruction %T", instr)
	}
}

func perms(ps ...model.Permission) []model.Permission { return ps }

// definitionRule admits the definition owner, and with viaDomain also the
// owner of the definition's domain.
func definitionRule(r world.Reader, auth ident.AccountID, asset ident.AssetID, viaDomain bool, ps ...model.Permission) (rule, error) {
	if _, err := r.AssetDefinition(asset.Definition); err != nil {
		return rule{target: model.AssetRef(asset)}, err
	}
	return rule{
		owner:  ownsDefinition(r, auth, asset.Definition, viaDomain),
		perms:  ps,
		target: model.AssetRef(asset),
	}, nil
}

func metadataRule(r world.Reader, auth ident.AccountID, obj model.Ref) (rule, error) {
	ru := rule{target: obj}
	switch obj.Kind {
	case model.EntityDomain:
		d, err := r.Domain(obj.Domain)
		if err != nil {
			return ru, err
		}
		ru.owner = d.OwnedBy == auth
		ru.perms = perms(model.CanModifyDomainMetadata{Domain: obj.Domain})
	case model.EntityAccount:
		if _, err := r.Account(obj.Account); err != nil {
			return ru, err
		}
		ru.owner = obj.Account == auth || ownsDomain(r, auth, obj.Account.Domain)
		ru.perms = perms(model.CanModifyAccountMetadata{Account: obj.Account})
	case model.EntityAssetDefinition:
		if _, err := r.AssetDefinition(obj.AssetDefinition); err != nil {
			return ru, err
		}
		ru.owner = ownsDefinition(r, auth, obj.AssetDefinition, true)
		ru.perms = perms(model.CanModifyAssetDefinitionMetadata{AssetDefinition: obj.AssetDefinition})
	case model.EntityAsset:
		ru.owner = obj.Asset.Account == auth
		ru.perms = perms(model.CanModifyAssetMetadata{Asset: obj.Asset})
	case model.EntityTrigger:
		t, err := r.Trigger(obj.Trigger)
		if err != nil {
			return ru, err
		}
		ru.owner = t.Action.Authority == auth
		ru.perms = perms(model.CanModifyTrigger{Trigger: obj.Trigger})
	default:
		return ru, ledgererr.New(ledgererr.CodeInvalidValue, "%s objects carry no metadata", obj.Kind)
	}
	return ru, nil
}

func roleRule(r world.Reader, auth ident.AccountID, id ident.RoleID) (rule, error) {
	role, err := r.Role(id)
	if err != nil {
		return rule{}, err
	}
	return rule{
		owner:  role.Owner == auth,
		perms:  perms(model.CanManageRoles{}),
		target: model.RoleRef(id),
	}, nil
}

// rolePermissionRule requires that the authority can grant p and, in
// addition, owns the role or holds CanManageRoles.
func rolePermissionRule(r world.Reader, auth ident.AccountID, id ident.RoleID, p model.Permission) (rule, error) {
	if p == nil {
		return rule{}, ledgererr.New(ledgererr.CodeInvalidValue, "missing permission")
	}
	ru, err := roleRule(r, auth, id)
	if err != nil {
		return ru, err
	}
	if !CanGrant(r, auth, p) {
		return ru, ledgererr.NotPermitted(auth, "grant "+p.Name(), ru.target.String())
	}
	return ru, nil
}

// accountPermissionRule admits exactly the authorities that can grant p.
func accountPermissionRule(r world.Reader, auth, account ident.AccountID, p model.Permission) (rule, error) {
	if p == nil {
		return rule{}, ledgererr.New(ledgererr.CodeInvalidValue, "missing permission")
	}
	return rule{owner: CanGrant(r, auth, p), target: model.AccountRef(account)}, nil
}

func triggerRule(r world.Reader, auth ident.AccountID, id ident.TriggerID, p model.Permission) (rule, error) {
	t, err := r.Trigger(id)
	if err != nil {
		return rule{}, err
	}
	return rule{
		owner:  t.Action.Authority == auth,
		perms:  perms(p),
		target: model.TriggerRef(id),
	}, nil
}
