package world

import (
	"slices"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/numeric"
)

// Tx is an open transaction against the live world. Reads through a Tx see
// its own writes. A Tx must end with exactly one Commit or Rollback.
type Tx struct {
	*state
	w    *World
	undo []func()
	done bool
}

// Commit keeps every change and releases the world.
func (tx *Tx) Commit() {
	if tx.done {
		return
	}
	tx.undo = nil
	tx.done = true
	tx.w.mu.Unlock()
}

// Rollback restores the exact state at Begin and releases the world.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.done = true
	tx.w.mu.Unlock()
}

// Changes returns the number of journaled changes.
func (tx *Tx) Changes() int { return len(tx.undo) }

func put[K comparable, V any](tx *Tx, m map[K]V, k K, v V) {
	old, had := m[k]
	tx.undo = append(tx.undo, func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

func del[K comparable, V any](tx *Tx, m map[K]V, k K) {
	old, had := m[k]
	if !had {
		return
	}
	tx.undo = append(tx.undo, func() { m[k] = old })
	delete(m, k)
}

// RegisterDomain adds d.
func (tx *Tx) RegisterDomain(d model.Domain) error {
	if _, ok := tx.domains[d.ID]; ok {
		return ledgererr.AlreadyExists(string(model.EntityDomain), d.ID)
	}
	put(tx, tx.domains, d.ID, d)
	return nil
}

// RegisterAccount adds a. Its domain must exist.
func (tx *Tx) RegisterAccount(a model.Account) error {
	if _, ok := tx.accounts[a.ID]; ok {
		return ledgererr.AlreadyExists(string(model.EntityAccount), a.ID)
	}
	if _, ok := tx.domains[a.ID.Domain]; !ok {
		return ledgererr.NotFound(string(model.EntityDomain), a.ID.Domain)
	}
	put(tx, tx.accounts, a.ID, a)
	return nil
}

// RegisterAssetDefinition adds d. Its domain and owner must exist.
func (tx *Tx) RegisterAssetDefinition(d model.AssetDefinition) error {
	if _, ok := tx.defs[d.ID]; ok {
		return ledgererr.AlreadyExists(string(model.EntityAssetDefinition), d.ID)
	}
	if _, ok := tx.domains[d.ID.Domain]; !ok {
		return ledgererr.NotFound(string(model.EntityDomain), d.ID.Domain)
	}
	if _, ok := tx.accounts[d.OwnedBy]; !ok {
		return ledgererr.NotFound(string(model.EntityAccount), d.OwnedBy)
	}
	put(tx, tx.defs, d.ID, d)
	return nil
}

// RegisterAsset adds a. Its definition and account must exist.
func (tx *Tx) RegisterAsset(a model.Asset) error {
	if _, ok := tx.assets[a.ID]; ok {
		return ledgererr.AlreadyExists(string(model.EntityAsset), a.ID)
	}
	if _, ok := tx.defs[a.ID.Definition]; !ok {
		return ledgererr.NotFound(string(model.EntityAssetDefinition), a.ID.Definition)
	}
	if _, ok := tx.accounts[a.ID.Account]; !ok {
		return ledgererr.NotFound(string(model.EntityAccount), a.ID.Account)
	}
	put(tx, tx.assets, a.ID, a)
	return nil
}

// RegisterRole adds r.
func (tx *Tx) RegisterRole(r model.Role) error {
	if _, ok := tx.roles[r.ID]; ok {
		return ledgererr.AlreadyExists(string(model.EntityRole), r.ID)
	}
	put(tx, tx.roles, r.ID, r)
	return nil
}

// RegisterTrigger adds t. Its authority must exist.
func (tx *Tx) RegisterTrigger(t model.Trigger) error {
	if _, ok := tx.triggers[t.ID]; ok {
		return ledgererr.AlreadyExists(string(model.EntityTrigger), t.ID)
	}
	if _, ok := tx.accounts[t.Action.Authority]; !ok {
		return ledgererr.NotFound(string(model.EntityAccount), t.Action.Authority)
	}
	put(tx, tx.triggers, t.ID, t)
	return nil
}

// UpdateDomain replaces a registered domain.
func (tx *Tx) UpdateDomain(d model.Domain) error {
	if _, ok := tx.domains[d.ID]; !ok {
		return ledgererr.NotFound(string(model.EntityDomain), d.ID)
	}
	put(tx, tx.domains, d.ID, d)
	return nil
}

// UpdateAccount replaces a registered account.
func (tx *Tx) UpdateAccount(a model.Account) error {
	if _, ok := tx.accounts[a.ID]; !ok {
		return ledgererr.NotFound(string(model.EntityAccount), a.ID)
	}
	put(tx, tx.accounts, a.ID, a)
	return nil
}

// UpdateAssetDefinition replaces a registered definition. Type and
// Mintable are fixed at registration.
func (tx *Tx) UpdateAssetDefinition(d model.AssetDefinition) error {
	old, ok := tx.defs[d.ID]
	if !ok {
		return ledgererr.NotFound(string(model.EntityAssetDefinition), d.ID)
	}
	if old.Mintable != d.Mintable || old.Type.Kind != d.Type.Kind || !old.Type.Numeric.Equal(d.Type.Numeric) {
		return ledgererr.New(ledgererr.CodeInvariantViolation, "asset definition %s: type and mintability are immutable", d.ID)
	}
	put(tx, tx.defs, d.ID, d)
	return nil
}

// UpdateAsset replaces a registered asset.
func (tx *Tx) UpdateAsset(a model.Asset) error {
	if _, ok := tx.assets[a.ID]; !ok {
		return ledgererr.NotFound(string(model.EntityAsset), a.ID)
	}
	put(tx, tx.assets, a.ID, a)
	return nil
}

// UpdateRole replaces a registered role.
func (tx *Tx) UpdateRole(r model.Role) error {
	if _, ok := tx.roles[r.ID]; !ok {
		return ledgererr.NotFound(string(model.EntityRole), r.ID)
	}
	put(tx, tx.roles, r.ID, r)
	return nil
}

// UpdateTrigger replaces a registered trigger.
func (tx *Tx) UpdateTrigger(t model.Trigger) error {
	if _, ok := tx.triggers[t.ID]; !ok {
		return ledgererr.NotFound(string(model.EntityTrigger), t.ID)
	}
	put(tx, tx.triggers, t.ID, t)
	return nil
}

// TransferDomain hands domain id from one owner to another.
func (tx *Tx) TransferDomain(id ident.DomainID, from, to ident.AccountID) error {
	d, ok := tx.domains[id]
	if !ok {
		return ledgererr.NotFound(string(model.EntityDomain), id)
	}
	if d.OwnedBy != from {
		return ledgererr.NotOwner(string(model.EntityDomain), id, d.OwnedBy, from)
	}
	if _, ok := tx.accounts[to]; !ok {
		return ledgererr.NotFound(string(model.EntityAccount), to)
	}
	d.OwnedBy = to
	put(tx, tx.domains, id, d)
	return nil
}

// TransferAssetDefinition hands definition id from one owner to another.
func (tx *Tx) TransferAssetDefinition(id ident.AssetDefinitionID, from, to ident.AccountID) error {
	d, ok := tx.defs[id]
	if !ok {
		return ledgererr.NotFound(string(model.EntityAssetDefinition), id)
	}
	if d.OwnedBy != from {
		return ledgererr.NotOwner(string(model.EntityAssetDefinition), id, d.OwnedBy, from)
	}
	if _, ok := tx.accounts[to]; !ok {
		return ledgererr.NotFound(string(model.EntityAccount), to)
	}
	d.OwnedBy = to
	put(tx, tx.defs, id, d)
	return nil
}

// TransferQuantity moves amount from the numeric asset source to the asset
// of the same definition held by destination, creating it when absent.
// Both sides are validated before either is written.
func (tx *Tx) TransferQuantity(source ident.AssetID, amount numeric.Quantity, destination ident.AccountID) (created bool, err error) {
	src, ok := tx.assets[source]
	if !ok {
		return false, ledgererr.NotFound(string(model.EntityAsset), source)
	}
	if src.Value.Kind != model.AssetNumeric {
		return false, ledgererr.New(ledgererr.CodeWrongValueType, "asset %s holds a store, not a quantity", source)
	}
	if _, ok := tx.accounts[destination]; !ok {
		return false, ledgererr.NotFound(string(model.EntityAccount), destination)
	}

	dstID := ident.NewAssetID(source.Definition, destination)
	dst, exists := tx.assets[dstID]
	if !exists {
		dst = model.Asset{ID: dstID, Value: model.NumericValue(numeric.Zero())}
	}
	debited, err := src.Value.Numeric.Sub(amount)
	if err != nil {
		return false, err
	}
	if dstID == source {
		return false, nil
	}
	credited, err := dst.Value.Numeric.Add(amount)
	if err != nil {
		return false, err
	}

	src.Value = model.NumericValue(debited)
	dst.Value = model.NumericValue(credited)
	put(tx, tx.assets, source, src)
	put(tx, tx.assets, dstID, dst)
	return !exists, nil
}

// GrantPermission gives p directly to account.
func (tx *Tx) GrantPermission(account ident.AccountID, p model.Permission) error {
	if _, ok := tx.accounts[account]; !ok {
		return ledgererr.NotFound(string(model.EntityAccount), account)
	}
	set, added := tx.grants[account].Add(p)
	if !added {
		return ledgererr.New(ledgererr.CodeAlreadyExists, "%s already holds %s", account, p.Name())
	}
	put(tx, tx.grants, account, set)
	return nil
}

// RevokePermission removes a direct grant.
func (tx *Tx) RevokePermission(account ident.AccountID, p model.Permission) error {
	if _, ok := tx.accounts[account]; !ok {
		return ledgererr.NotFound(string(model.EntityAccount), account)
	}
	set, removed := tx.grants[account].Remove(p)
	if !removed {
		return ledgererr.New(ledgererr.CodeNotFound, "%s does not hold %s", account, p.Name())
	}
	if set.Len() == 0 {
		del(tx, tx.grants, account)
		return nil
	}
	put(tx, tx.grants, account, set)
	return nil
}

// GrantRole makes account a member of role.
func (tx *Tx) GrantRole(account ident.AccountID, role ident.RoleID) error {
	if _, ok := tx.accounts[account]; !ok {
		return ledgererr.NotFound(string(model.EntityAccount), account)
	}
	if _, ok := tx.roles[role]; !ok {
		return ledgererr.NotFound(string(model.EntityRole), role)
	}
	roles := tx.members[account]
	i, found := slices.BinarySearchFunc(roles, role, compareRole)
	if found {
		return ledgererr.New(ledgererr.CodeAlreadyExists, "%s already has role %s", account, role)
	}
	put(tx, tx.members, account, slices.Insert(slices.Clone(roles), i, role))
	return nil
}

// RevokeRole ends account's membership of role.
func (tx *Tx) RevokeRole(account ident.AccountID, role ident.RoleID) error {
	if _, ok := tx.accounts[account]; !ok {
		return ledgererr.NotFound(string(model.EntityAccount), account)
	}
	roles := tx.members[account]
	i, found := slices.BinarySearchFunc(roles, role, compareRole)
	if !found {
		return ledgererr.New(ledgererr.CodeNotFound, "%s does not have role %s", account, role)
	}
	if len(roles) == 1 {
		del(tx, tx.members, account)
		return nil
	}
	put(tx, tx.members, account, slices.Delete(slices.Clone(roles), i, i+1))
	return nil
}

// GrantRolePermission adds p to role.
func (tx *Tx) GrantRolePermission(role ident.RoleID, p model.Permission) error {
	r, ok := tx.roles[role]
	if !ok {
		return ledgererr.NotFound(string(model.EntityRole), role)
	}
	set, added := r.Permissions.Add(p)
	if !added {
		return ledgererr.New(ledgererr.CodeAlreadyExists, "role %s already holds %s", role, p.Name())
	}
	r.Permissions = set
	put(tx, tx.roles, role, r)
	return nil
}

// RevokeRolePermission removes p from role.
func (tx *Tx) RevokeRolePermission(role ident.RoleID, p model.Permission) error {
	r, ok := tx.roles[role]
	if !ok {
		return ledgererr.NotFound(string(model.EntityRole), role)
	}
	set, removed := r.Permissions.Remove(p)
	if !removed {
		return ledgererr.New(ledgererr.CodeNotFound, "role %s does not hold %s", role, p.Name())
	}
	r.Permissions = set
	put(tx, tx.roles, role, r)
	return nil
}

// RoleMembers returns the accounts holding role, sorted.
func (s *state) RoleMembers(role ident.RoleID) []ident.AccountID {
	var out []ident.AccountID
	for acc, roles := range s.members {
		if hasRole(roles, role) {
			out = append(out, acc)
		}
	}
	slices.SortFunc(out, compareAccount)
	return out
}
