// Package world holds the ledger registry: every domain, account, asset
// definition, asset, role and trigger, plus the permission grants and role
// memberships of accounts.
//
// All mutation goes through a Tx, which journals an undo step per change.
// Only one Tx is open at a time. Entities are stored by value and their
// metadata and permission sets are immutable, so a Snapshot is a set of
// shallow map copies that later transactions never disturb.
package world

import (
	"cmp"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
)

// Reader is the read surface shared by Snapshot and Tx.
type Reader interface {
	Domain(id ident.DomainID) (model.Domain, error)
	Account(id ident.AccountID) (model.Account, error)
	AssetDefinition(id ident.AssetDefinitionID) (model.AssetDefinition, error)
	Asset(id ident.AssetID) (model.Asset, error)
	Role(id ident.RoleID) (model.Role, error)
	Trigger(id ident.TriggerID) (model.Trigger, error)

	// Exists reports whether the referenced object is registered.
	Exists(ref model.Ref) bool

	// AccountPermissions returns the permissions granted directly to id.
	AccountPermissions(id ident.AccountID) model.PermissionSet
	// AccountRoles returns the roles id is a member of, sorted.
	AccountRoles(id ident.AccountID) []ident.RoleID

	Domains() iter.Seq[model.Domain]
	Accounts() iter.Seq[model.Account]
	AssetDefinitions() iter.Seq[model.AssetDefinition]
	Assets() iter.Seq[model.Asset]
	Roles() iter.Seq[model.Role]
	Triggers() iter.Seq[model.Trigger]
}

// state is the registry content. Role memberships are sorted slices that
// are replaced, never appended to in place.
type state struct {
	domains  map[ident.DomainID]model.Domain
	accounts map[ident.AccountID]model.Account
	grants   map[ident.AccountID]model.PermissionSet
	members  map[ident.AccountID][]ident.RoleID
	defs     map[ident.AssetDefinitionID]model.AssetDefinition
	assets   map[ident.AssetID]model.Asset
	roles    map[ident.RoleID]model.Role
	triggers map[ident.TriggerID]model.Trigger
}

func newState() *state {
	return &state{
		domains:  make(map[ident.DomainID]model.Domain),
		accounts: make(map[ident.AccountID]model.Account),
		grants:   make(map[ident.AccountID]model.PermissionSet),
		members:  make(map[ident.AccountID][]ident.RoleID),
		defs:     make(map[ident.AssetDefinitionID]model.AssetDefinition),
		assets:   make(map[ident.AssetID]model.Asset),
		roles:    make(map[ident.RoleID]model.Role),
		triggers: make(map[ident.TriggerID]model.Trigger),
	}
}

func (s *state) clone() *state {
	return &state{
		domains:  maps.Clone(s.domains),
		accounts: maps.Clone(s.accounts),
		grants:   maps.Clone(s.grants),
		members:  maps.Clone(s.members),
		defs:     maps.Clone(s.defs),
		assets:   maps.Clone(s.assets),
		roles:    maps.Clone(s.roles),
		triggers: maps.Clone(s.triggers),
	}
}

// World owns the live registry.
type World struct {
	mu    sync.RWMutex
	state *state
}

// New returns an empty world.
func New() *World {
	return &World{state: newState()}
}

// Begin opens a transaction. It blocks until any open transaction ends and
// holds the write lock until Commit or Rollback.
func (w *World) Begin() *Tx {
	w.mu.Lock()
	return &Tx{w: w, state: w.state}
}

// Snapshot returns a consistent read view of the last committed state.
func (w *World) Snapshot() *Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return &Snapshot{state: w.state.clone()}
}

// Snapshot is an immutable view of the world.
type Snapshot struct {
	*state
}

func (s *state) Domain(id ident.DomainID) (model.Domain, error) {
	d, ok := s.domains[id]
	if !ok {
		return model.Domain{}, ledgererr.NotFound(string(model.EntityDomain), id)
	}
	return d, nil
}

func (s *state) Account(id ident.AccountID) (model.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, ledgererr.NotFound(string(model.EntityAccount), id)
	}
	return a, nil
}

func (s *state) AssetDefinition(id ident.AssetDefinitionID) (model.AssetDefinition, error) {
	d, ok := s.defs[id]
	if !ok {
		return model.AssetDefinition{}, ledgererr.NotFound(string(model.EntityAssetDefinition), id)
	}
	return d, nil
}

func (s *state) Asset(id ident.AssetID) (model.Asset, error) {
	a, ok := s.assets[id]
	if !ok {
		return model.Asset{}, ledgererr.NotFound(string(model.EntityAsset), id)
	}
	return a, nil
}

func (s *state) Role(id ident.RoleID) (model.Role, error) {
	r, ok := s.roles[id]
	if !ok {
		return model.Role{}, ledgererr.NotFound(string(model.EntityRole), id)
	}
	return r, nil
}

func (s *state) Trigger(id ident.TriggerID) (model.Trigger, error) {
	t, ok := s.triggers[id]
	if !ok {
		return model.Trigger{}, ledgererr.NotFound(string(model.EntityTrigger), id)
	}
	return t, nil
}

func (s *state) Exists(ref model.Ref) bool {
	var ok bool
	switch ref.Kind {
	case model.EntityDomain:
		_, ok = s.domains[ref.Domain]
	case model.EntityAccount:
		_, ok = s.accounts[ref.Account]
	case model.EntityAssetDefinition:
		_, ok = s.defs[ref.AssetDefinition]
	case model.EntityAsset:
		_, ok = s.assets[ref.Asset]
	case model.EntityRole:
		_, ok = s.roles[ref.Role]
	case model.EntityTrigger:
		_, ok = s.triggers[ref.Trigger]
	}
	return ok
}

func (s *state) AccountPermissions(id ident.AccountID) model.PermissionSet {
	return s.grants[id]
}

func (s *state) AccountRoles(id ident.AccountID) []ident.RoleID {
	return slices.Clone(s.members[id])
}

func (s *state) Domains() iter.Seq[model.Domain]                   { return sorted(s.domains) }
func (s *state) Accounts() iter.Seq[model.Account]                 { return sorted(s.accounts) }
func (s *state) AssetDefinitions() iter.Seq[model.AssetDefinition] { return sorted(s.defs) }
func (s *state) Assets() iter.Seq[model.Asset]                     { return sorted(s.assets) }
func (s *state) Roles() iter.Seq[model.Role]                       { return sorted(s.roles) }
func (s *state) Triggers() iter.Seq[model.Trigger]                 { return sorted(s.triggers) }

// sorted yields the values of m ordered by the text form of their keys.
// The key set is captured up front; values are read as iteration proceeds.
func sorted[K interface {
	comparable
	String() string
}, V any](m map[K]V) iter.Seq[V] {
	keys := slices.SortedFunc(maps.Keys(m), func(a, b K) int {
		return cmp.Compare(a.String(), b.String())
	})
	return func(yield func(V) bool) {
		for _, k := range keys {
			v, ok := m[k]
			if !ok {
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}

func hasRole(roles []ident.RoleID, id ident.RoleID) bool {
	_, found := slices.BinarySearchFunc(roles, id, compareRole)
	return found
}

func compareRole(a, b ident.RoleID) int { return cmp.Compare(a.String(), b.String()) }
