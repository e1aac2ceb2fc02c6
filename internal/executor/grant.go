package executor

import (
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/world"
)

func (e *Executor) grantPermission(tx *world.Tx, in model.GrantPermission) ([]model.Event, error) {
	if err := requireScope(tx, in.Permission); err != nil {
		return nil, err
	}
	if err := tx.GrantPermission(in.Account, in.Permission); err != nil {
		return nil, err
	}
	return []model.Event{{Kind: model.EventAccountPermissionAdded, Entity: model.AccountRef(in.Account), Permission: in.Permission}}, nil
}

func (e *Executor) grantRolePermission(tx *world.Tx, in model.GrantRolePermission) ([]model.Event, error) {
	if err := requireScope(tx, in.Permission); err != nil {
		return nil, err
	}
	if err := tx.GrantRolePermission(in.Role, in.Permission); err != nil {
		return nil, err
	}
	return []model.Event{{Kind: model.EventRolePermissionAdded, Entity: model.RoleRef(in.Role), Permission: in.Permission}}, nil
}
