package world

import (
	"cmp"
	"slices"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
)

// removal is the closed set of objects one unregister takes with it.
type removal struct {
	domains  map[ident.DomainID]bool
	accounts map[ident.AccountID]bool
	defs     map[ident.AssetDefinitionID]bool
	assets   map[ident.AssetID]bool
	roles    map[ident.RoleID]bool
	triggers map[ident.TriggerID]bool
}

func newRemoval() *removal {
	return &removal{
		domains:  map[ident.DomainID]bool{},
		accounts: map[ident.AccountID]bool{},
		defs:     map[ident.AssetDefinitionID]bool{},
		assets:   map[ident.AssetID]bool{},
		roles:    map[ident.RoleID]bool{},
		triggers: map[ident.TriggerID]bool{},
	}
}

func (s *state) planDomain(r *removal, id ident.DomainID) {
	r.domains[id] = true
	for accID := range s.accounts {
		if accID.Domain == id {
			s.planAccount(r, accID)
		}
	}
	for defID := range s.defs {
		if defID.Domain == id {
			s.planDefinition(r, defID)
		}
	}
}

func (s *state) planAccount(r *removal, id ident.AccountID) {
	r.accounts[id] = true
	for assetID := range s.assets {
		if assetID.Account == id {
			r.assets[assetID] = true
		}
	}
	for trigID, t := range s.triggers {
		if t.Action.Authority == id {
			r.triggers[trigID] = true
		}
	}
}

func (s *state) planDefinition(r *removal, id ident.AssetDefinitionID) {
	r.defs[id] = true
	for assetID := range s.assets {
		if assetID.Definition == id {
			r.assets[assetID] = true
		}
	}
}

// checkOwners fails when a removed account still owns a domain or asset
// definition that survives the removal.
func (s *state) checkOwners(r *removal) error {
	for _, d := range s.domains {
		if r.accounts[d.OwnedBy] && !r.domains[d.ID] {
			return ledgererr.New(ledgererr.CodeInvariantViolation,
				"account %s still owns domain %s", d.OwnedBy, d.ID).
				With("account", d.OwnedBy.String()).With("domain", d.ID.String())
		}
	}
	for _, d := range s.defs {
		if r.accounts[d.OwnedBy] && !r.defs[d.ID] {
			return ledgererr.New(ledgererr.CodeInvariantViolation,
				"account %s still owns asset definition %s", d.OwnedBy, d.ID).
				With("account", d.OwnedBy.String()).With("asset_definition", d.ID.String())
		}
	}
	return nil
}

func (r *removal) has(ref model.Ref) bool {
	switch ref.Kind {
	case model.EntityDomain:
		return r.domains[ref.Domain]
	case model.EntityAccount:
		return r.accounts[ref.Account]
	case model.EntityAssetDefinition:
		return r.defs[ref.AssetDefinition]
	case model.EntityAsset:
		return r.assets[ref.Asset]
	case model.EntityRole:
		return r.roles[ref.Role]
	case model.EntityTrigger:
		return r.triggers[ref.Trigger]
	}
	return false
}

// refs lists the removed objects: kinds in registry order, ids sorted.
func (r *removal) refs() []model.Ref {
	var out []model.Ref
	out = appendSorted(out, r.domains, model.DomainRef)
	out = appendSorted(out, r.accounts, model.AccountRef)
	out = appendSorted(out, r.defs, model.AssetDefinitionRef)
	out = appendSorted(out, r.assets, model.AssetRef)
	out = appendSorted(out, r.roles, model.RoleRef)
	out = appendSorted(out, r.triggers, model.TriggerRef)
	return out
}

func appendSorted[K interface {
	comparable
	String() string
}](out []model.Ref, set map[K]bool, ref func(K) model.Ref) []model.Ref {
	ids := make([]K, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b K) int { return cmp.Compare(a.String(), b.String()) })
	for _, id := range ids {
		out = append(out, ref(id))
	}
	return out
}

// apply deletes everything in r along with the grants, memberships and
// scoped permissions that refer to it. Numeric assets removed without
// their definition reduce the definition's total quantity.
func (tx *Tx) apply(r *removal) ([]model.Ref, error) {
	if err := tx.checkOwners(r); err != nil {
		return nil, err
	}

	for assetID := range r.assets {
		a := tx.assets[assetID]
		if !r.defs[assetID.Definition] && a.Value.Kind == model.AssetNumeric && !a.Value.Numeric.IsZero() {
			def := tx.defs[assetID.Definition]
			total, err := def.TotalQuantity.Sub(a.Value.Numeric)
			if err != nil {
				return nil, ledgererr.New(ledgererr.CodeInvariantViolation,
					"asset definition %s total below holdings", def.ID)
			}
			def.TotalQuantity = total
			put(tx, tx.defs, def.ID, def)
		}
		del(tx, tx.assets, assetID)
	}
	for id := range r.triggers {
		del(tx, tx.triggers, id)
	}
	for id := range r.defs {
		del(tx, tx.defs, id)
	}
	for id := range r.accounts {
		del(tx, tx.accounts, id)
		del(tx, tx.grants, id)
		del(tx, tx.members, id)
	}
	for id := range r.domains {
		del(tx, tx.domains, id)
	}
	for id := range r.roles {
		del(tx, tx.roles, id)
		for _, acc := range tx.RoleMembers(id) {
			roles := tx.members[acc]
			i, _ := slices.BinarySearchFunc(roles, id, compareRole)
			if len(roles) == 1 {
				del(tx, tx.members, acc)
			} else {
				put(tx, tx.members, acc, slices.Delete(slices.Clone(roles), i, i+1))
			}
		}
	}

	scoped := func(p model.Permission) bool { return r.has(p.Scope()) }
	for acc, set := range tx.grants {
		purged, changed := set.RemoveIf(scoped)
		if !changed {
			continue
		}
		if purged.Len() == 0 {
			del(tx, tx.grants, acc)
		} else {
			put(tx, tx.grants, acc, purged)
		}
	}
	for id, role := range tx.roles {
		purged, changed := role.Permissions.RemoveIf(scoped)
		if changed {
			role.Permissions = purged
			put(tx, tx.roles, id, role)
		}
	}

	return r.refs(), nil
}

// UnregisterDomain removes a domain, its accounts (with their assets,
// triggers and grants), and its asset definitions (with every asset of
// them, in any domain). It returns every removed object.
func (tx *Tx) UnregisterDomain(id ident.DomainID) ([]model.Ref, error) {
	if _, ok := tx.domains[id]; !ok {
		return nil, ledgererr.NotFound(string(model.EntityDomain), id)
	}
	r := newRemoval()
	tx.planDomain(r, id)
	return tx.apply(r)
}

// UnregisterAccount removes an account with its assets and triggers. It
// fails with InvariantViolation while the account owns a domain or an
// asset definition.
func (tx *Tx) UnregisterAccount(id ident.AccountID) ([]model.Ref, error) {
	if _, ok := tx.accounts[id]; !ok {
		return nil, ledgererr.NotFound(string(model.EntityAccount), id)
	}
	r := newRemoval()
	tx.planAccount(r, id)
	return tx.apply(r)
}

// UnregisterAssetDefinition removes a definition and all of its assets.
func (tx *Tx) UnregisterAssetDefinition(id ident.AssetDefinitionID) ([]model.Ref, error) {
	if _, ok := tx.defs[id]; !ok {
		return nil, ledgererr.NotFound(string(model.EntityAssetDefinition), id)
	}
	r := newRemoval()
	tx.planDefinition(r, id)
	return tx.apply(r)
}

func (tx *Tx) UnregisterAsset(id ident.AssetID) ([]model.Ref, error) {
	if _, ok := tx.assets[id]; !ok {
		return nil, ledgererr.NotFound(string(model.EntityAsset), id)
	}
	r := newRemoval()
	r.assets[id] = true
	return tx.apply(r)
}

// UnregisterRole removes a role and every membership of it.
func (tx *Tx) UnregisterRole(id ident.RoleID) ([]model.Ref, error) {
	if _, ok := tx.roles[id]; !ok {
		return nil, ledgererr.NotFound(string(model.EntityRole), id)
	}
	r := newRemoval()
	r.roles[id] = true
	return tx.apply(r)
}

func (tx *Tx) UnregisterTrigger(id ident.TriggerID) ([]model.Ref, error) {
	if _, ok := tx.triggers[id]; !ok {
		return nil, ledgererr.NotFound(string(model.EntityTrigger), id)
	}
	r := newRemoval()
	r.triggers[id] = true
	return tx.apply(r)
}

func compareAccount(a, b ident.AccountID) int { return cmp.Compare(a.String(), b.String()) }
