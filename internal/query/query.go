// Package query answers read queries over a consistent snapshot of the
// registry.
//
// A Find function takes a world.Reader (normally an *world.Snapshot, which
// never changes after it is taken) and a predicate, and returns a Cursor
// over the matching entities in id order. Cursors are lazy: nothing is
// matched until Next is called. A cursor cannot be restarted; run the query
// again for a fresh one.
//
// Predicates compose with And, Or and Not:
//
//	cur := query.FindAssets(snap, query.And(
//	    query.AssetOfDefinition(rose),
//	    query.AssetInDomain(wonderland),
//	))
//	assets := cur.Collect()
package query

import (
	"iter"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/world"
)

// Predicate selects entities of type T. A nil Predicate selects everything.
type Predicate[T any] func(T) bool

func (p Predicate[T]) match(v T) bool { return p == nil || p(v) }

// All selects every entity.
func All[T any]() Predicate[T] { return nil }

// And selects entities every predicate selects.
func And[T any](ps ...Predicate[T]) Predicate[T] {
	return func(v T) bool {
		for _, p := range ps {
			if !p.match(v) {
				return false
			}
		}
		return true
	}
}

// Or selects entities at least one predicate selects. Or() selects nothing.
func Or[T any](ps ...Predicate[T]) Predicate[T] {
	return func(v T) bool {
		for _, p := range ps {
			if p.match(v) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not[T any](p Predicate[T]) Predicate[T] {
	return func(v T) bool { return !p.match(v) }
}

// Cursor is a lazy, finite sequence of query results. The first call to
// Next walks the underlying sequence once; the predicate runs per result
// as Next is called. A dropped cursor holds nothing beyond its buffer, so
// Close is optional.
type Cursor[T any] struct {
	entity string
	seq    iter.Seq[T]
	p      Predicate[T]
	items  []T
	pos    int
	done   bool
}

func newCursor[T any](entity string, seq iter.Seq[T], p Predicate[T]) *Cursor[T] {
	return &Cursor[T]{entity: entity, seq: seq, p: p}
}

// Next returns the next result. ok is false once the cursor is exhausted
// or closed.
func (c *Cursor[T]) Next() (v T, ok bool) {
	if c.done {
		return v, false
	}
	if c.seq != nil {
		for item := range c.seq {
			c.items = append(c.items, item)
		}
		c.seq = nil
	}
	for c.pos < len(c.items) {
		item := c.items[c.pos]
		c.pos++
		if c.p.match(item) {
			return item, true
		}
	}
	c.Close()
	return v, false
}

// Collect drains the remaining results. It returns an empty, non-nil slice
// when nothing is left.
func (c *Cursor[T]) Collect() []T {
	out := []T{}
	for {
		v, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// Single returns the only remaining result. It fails with NotFound when
// there is none and MultipleFound when there is more than one. The cursor
// is closed afterwards.
func (c *Cursor[T]) Single() (T, error) {
	defer c.Close()
	v, ok := c.Next()
	if !ok {
		var zero T
		return zero, ledgererr.New(ledgererr.CodeNotFound, "no %s matches the query", c.entity)
	}
	if _, more := c.Next(); more {
		var zero T
		return zero, ledgererr.New(ledgererr.CodeMultipleFound, "more than one %s matches the query", c.entity)
	}
	return v, nil
}

// Close releases the cursor's buffer. Safe to call more than once. Cursors
// that are drained through Next, Collect or Single close themselves.
func (c *Cursor[T]) Close() {
	if c.done {
		return
	}
	c.done = true
	c.seq = nil
	c.items = nil
}

func FindDomains(r world.Reader, p Predicate[model.Domain]) *Cursor[model.Domain] {
	return newCursor("domain", r.Domains(), p)
}

func FindAccounts(r world.Reader, p Predicate[model.Account]) *Cursor[model.Account] {
	return newCursor("account", r.Accounts(), p)
}

func FindAssetDefinitions(r world.Reader, p Predicate[model.AssetDefinition]) *Cursor[model.AssetDefinition] {
	return newCursor("asset definition", r.AssetDefinitions(), p)
}

func FindAssets(r world.Reader, p Predicate[model.Asset]) *Cursor[model.Asset] {
	return newCursor("asset", r.Assets(), p)
}

func FindRoles(r world.Reader, p Predicate[model.Role]) *Cursor[model.Role] {
	return newCursor("role", r.Roles(), p)
}

func FindTriggers(r world.Reader, p Predicate[model.Trigger]) *Cursor[model.Trigger] {
	return newCursor("trigger", r.Triggers(), p)
}

// DomainOwnedBy selects domains owned by account.
func DomainOwnedBy(account ident.AccountID) Predicate[model.Domain] {
	return func(d model.Domain) bool { return d.OwnedBy == account }
}

// AccountInDomain selects accounts of domain d.
func AccountInDomain(d ident.DomainID) Predicate[model.Account] {
	return func(a model.Account) bool { return a.ID.Domain == d }
}

// AccountHasMetadata selects accounts with a metadata entry under key.
func AccountHasMetadata(key ident.Name) Predicate[model.Account] {
	return func(a model.Account) bool {
		_, ok := a.Metadata.Get(key)
		return ok
	}
}

// DefinitionInDomain selects asset definitions of domain d.
func DefinitionInDomain(d ident.DomainID) Predicate[model.AssetDefinition] {
	return func(def model.AssetDefinition) bool { return def.ID.Domain == d }
}

// DefinitionOwnedBy selects asset definitions owned by account.
func DefinitionOwnedBy(account ident.AccountID) Predicate[model.AssetDefinition] {
	return func(def model.AssetDefinition) bool { return def.OwnedBy == account }
}

// AssetOfDefinition selects the assets of one definition.
func AssetOfDefinition(def ident.AssetDefinitionID) Predicate[model.Asset] {
	return func(a model.Asset) bool { return a.ID.Definition == def }
}

// AssetOfAccount selects the assets held by account.
func AssetOfAccount(account ident.AccountID) Predicate[model.Asset] {
	return func(a model.Asset) bool { return a.ID.Account == account }
}

// AssetInDomain selects assets whose holder lives in domain d.
func AssetInDomain(d ident.DomainID) Predicate[model.Asset] {
	return func(a model.Asset) bool { return a.ID.Account.Domain == d }
}

// RoleHasPermission selects roles that carry p.
func RoleHasPermission(p model.Permission) Predicate[model.Role] {
	return func(r model.Role) bool { return r.Permissions.Has(p) }
}

// TriggerOfAuthority selects triggers whose actions run as account.
func TriggerOfAuthority(account ident.AccountID) Predicate[model.Trigger] {
	return func(t model.Trigger) bool { return t.Action.Authority == account }
}
