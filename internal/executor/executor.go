// Package executor applies single instructions to an open world
// transaction.
//
// Apply runs the fixed pipeline for one instruction: authorize, validate
// against the current state, mutate, and return the events the mutation
// raised. It never commits or rolls back; the caller owns the Tx and rolls
// back the whole batch on the first error.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/ledger/internal/authz"
	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/world"
)

// Options configures an Executor.
type Options struct {
	// ImplicitAssetOnMint registers a missing asset when it is minted
	// instead of failing with NotFound.
	ImplicitAssetOnMint bool

	// Logger receives Log instructions. Defaults to slog.Default().
	Logger *slog.Logger
}

// Executor applies instructions.
type Executor struct {
	opts   Options
	logger *slog.Logger
}

// New creates an executor.
func New(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{opts: opts, logger: logger}
}

// Apply authorizes instr for authority and executes it.
func (e *Executor) Apply(tx *world.Tx, authority ident.AccountID, instr model.Instruction) ([]model.Event, error) {
	if instr == nil {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "nil instruction")
	}
	if err := authz.Authorize(tx, authority, instr); err != nil {
		return nil, err
	}
	return e.Execute(tx, authority, instr)
}

// Execute runs instr without authorization. Genesis batches use it to set
// up the initial owners.
func (e *Executor) Execute(tx *world.Tx, authority ident.AccountID, instr model.Instruction) ([]model.Event, error) {
	switch in := instr.(type) {
	case model.RegisterDomain:
		return e.registerDomain(tx, authority, in)
	case model.RegisterAccount:
		return e.registerAccount(tx, in)
	case model.RegisterAssetDefinition:
		return e.registerAssetDefinition(tx, authority, in)
	case model.RegisterAsset:
		return e.registerAsset(tx, in)
	case model.RegisterRole:
		return e.registerRole(tx, authority, in)
	case model.RegisterTrigger:
		return e.registerTrigger(tx, in)

	case model.UnregisterDomain:
		return deleted(tx.UnregisterDomain(in.ID))
	case model.UnregisterAccount:
		return deleted(tx.UnregisterAccount(in.ID))
	case model.UnregisterAssetDefinition:
		return deleted(tx.UnregisterAssetDefinition(in.ID))
	case model.UnregisterAsset:
		return deleted(tx.UnregisterAsset(in.ID))
	case model.UnregisterRole:
		return deleted(tx.UnregisterRole(in.ID))
	case model.UnregisterTrigger:
		return deleted(tx.UnregisterTrigger(in.ID))

	case model.MintAsset:
		return e.mintAsset(tx, in)
	case model.BurnAsset:
		return e.burnAsset(tx, in)
	case model.TransferAsset:
		return e.transferAsset(tx, in)
	case model.MintTriggerRepetitions:
		return e.mintRepetitions(tx, in)
	case model.BurnTriggerRepetitions:
		return e.burnRepetitions(tx, in)

	case model.TransferDomain:
		if err := tx.TransferDomain(in.Domain, in.From, in.To); err != nil {
			return nil, err
		}
		return []model.Event{{Kind: model.EventOwnerChanged, Entity: model.DomainRef(in.Domain), Owner: in.To}}, nil
	case model.TransferAssetDefinition:
		if err := tx.TransferAssetDefinition(in.Definition, in.From, in.To); err != nil {
			return nil, err
		}
		return []model.Event{{Kind: model.EventOwnerChanged, Entity: model.AssetDefinitionRef(in.Definition), Owner: in.To}}, nil

	case model.SetKeyValue:
		return e.setKeyValue(tx, in)
	case model.RemoveKeyValue:
		return e.removeKeyValue(tx, in)

	case model.GrantPermission:
		return e.grantPermission(tx, in)
	case model.RevokePermission:
		if in.Permission == nil {
			return nil, ledgererr.New(ledgererr.CodeInvalidValue, "missing permission")
		}
		if err := tx.RevokePermission(in.Account, in.Permission); err != nil {
			return nil, err
		}
		return []model.Event{{Kind: model.EventAccountPermissionRemoved, Entity: model.AccountRef(in.Account), Permission: in.Permission}}, nil
	case model.GrantRole:
		if err := tx.GrantRole(in.Account, in.Role); err != nil {
			return nil, err
		}
		return []model.Event{{Kind: model.EventAccountRoleGranted, Entity: model.AccountRef(in.Account), Role: in.Role}}, nil
	case model.RevokeRole:
		if err := tx.RevokeRole(in.Account, in.Role); err != nil {
			return nil, err
		}
		return []model.Event{{Kind: model.EventAccountRoleRevoked, Entity: model.AccountRef(in.Account), Role: in.Role}}, nil
	case model.GrantRolePermission:
		return e.grantRolePermission(tx, in)
	case model.RevokeRolePermission:
		if in.Permission == nil {
			return nil, ledgererr.New(ledgererr.CodeInvalidValue, "missing permission")
		}
		if err := tx.RevokeRolePermission(in.Role, in.Permission); err != nil {
			return nil, err
		}
		return []model.Event{{Kind: model.EventRolePermissionRemoved, Entity: model.RoleRef(in.Role), Permission: in.Permission}}, nil

	case model.ExecuteTrigger:
		if _, err := tx.Trigger(in.Trigger); err != nil {
			return nil, err
		}
		return []model.Event{{Kind: model.EventExecuteTrigger, Entity: model.TriggerRef(in.Trigger), Authority: authority}}, nil

	case model.Log:
		lvl, err := in.SlogLevel()
		if err != nil {
			return nil, ledgererr.New(ledgererr.CodeInvalidValue, "%v", err)
		}
		e.logger.Log(context.Background(), lvl, in.Message, "authority", authority.String())
		return nil, nil

	default:
		return nil, fmt.Errorf("execute: unsupported instruction %T", instr)
	}
}

// deleted turns the objects removed by an unregister into Deleted events.
func deleted(refs []model.Ref, err error) ([]model.Event, error) {
	if err != nil {
		return nil, err
	}
	events := make([]model.Event, len(refs))
	for i, ref := range refs {
		events[i] = model.Event{Kind: model.EventDeleted, Entity: ref}
	}
	return events, nil
}

func created(ref model.Ref) model.Event {
	return model.Event{Kind: model.EventCreated, Entity: ref}
}

// requireScope fails when p is scoped to an object that does not exist.
func requireScope(tx *world.Tx, p model.Permission) error {
	if p == nil {
		return ledgererr.New(ledgererr.CodeInvalidValue, "missing permission")
	}
	scope := p.Scope()
	if scope.Kind == "" || tx.Exists(scope) {
		return nil
	}
	return ledgererr.NotFound(string(scope.Kind), scope)
}
