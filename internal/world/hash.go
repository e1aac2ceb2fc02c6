package world

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/value"
)

type grantEntry struct {
	Account     ident.AccountID     `json:"account"`
	Permissions model.PermissionSet `json:"permissions"`
}

type memberEntry struct {
	Account ident.AccountID `json:"account"`
	Roles   []ident.RoleID  `json:"roles"`
}

type worldDoc struct {
	Domains          []model.Domain          `json:"domains"`
	Accounts         []model.Account         `json:"accounts"`
	AssetDefinitions []model.AssetDefinition `json:"asset_definitions"`
	Assets           []model.Asset           `json:"assets"`
	Roles            []model.Role            `json:"roles"`
	Triggers         []model.Trigger         `json:"triggers"`
	Grants           []grantEntry            `json:"grants"`
	Members          []memberEntry           `json:"members"`
}

// collect drains seq into a non-nil slice so empty kinds encode as [].
func collect[V any](seq iter.Seq[V]) []V {
	out := []V{}
	for v := range seq {
		out = append(out, v)
	}
	return out
}

// Hash returns the content hash of the registry: canonical JSON of every
// object, grant and membership in id order, hashed under DomainWorld. Two
// worlds with equal content have equal hashes regardless of history.
func (s *state) Hash() (string, error) {
	doc := worldDoc{
		Domains:          collect(s.Domains()),
		Accounts:         collect(s.Accounts()),
		AssetDefinitions: collect(s.AssetDefinitions()),
		Assets:           collect(s.Assets()),
		Roles:            collect(s.Roles()),
		Triggers:         collect(s.Triggers()),
		Grants:           []grantEntry{},
		Members:          []memberEntry{},
	}
	for acc := range s.Accounts() {
		if set := s.grants[acc.ID]; set.Len() > 0 {
			doc.Grants = append(doc.Grants, grantEntry{Account: acc.ID, Permissions: set})
		}
		if roles := s.members[acc.ID]; len(roles) > 0 {
			doc.Members = append(doc.Members, memberEntry{Account: acc.ID, Roles: slices.Clone(roles)})
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode world: %w", err)
	}
	canon, err := value.Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize world: %w", err)
	}
	return value.HashWithDomain(value.DomainWorld, canon), nil
}
