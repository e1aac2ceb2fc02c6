package executor

import (
	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/numeric"
	"github.com/roach88/ledger/internal/world"
)

func (e *Executor) registerDomain(tx *world.Tx, authority ident.AccountID, in model.RegisterDomain) ([]model.Event, error) {
	d := model.Domain{ID: in.ID, OwnedBy: authority, Logo: in.Logo, Metadata: in.Metadata}
	if err := tx.RegisterDomain(d); err != nil {
		return nil, err
	}
	return []model.Event{created(model.DomainRef(in.ID))}, nil
}

func (e *Executor) registerAccount(tx *world.Tx, in model.RegisterAccount) ([]model.Event, error) {
	if err := tx.RegisterAccount(model.Account{ID: in.ID, Metadata: in.Metadata}); err != nil {
		return nil, err
	}
	return []model.Event{created(model.AccountRef(in.ID))}, nil
}

func (e *Executor) registerAssetDefinition(tx *world.Tx, authority ident.AccountID, in model.RegisterAssetDefinition) ([]model.Event, error) {
	typ := in.Type
	switch typ.Kind {
	case "":
		typ.Kind = model.AssetNumeric
	case model.AssetNumeric, model.AssetStore:
	default:
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "unknown asset type %q", typ.Kind)
	}
	mintable := in.Mintable
	if mintable == "" {
		mintable = model.MintableInfinitely
	}
	if !mintable.Valid() {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "unknown mintable policy %q", mintable)
	}

	def := model.AssetDefinition{
		ID:       in.ID,
		Type:     typ,
		Mintable: mintable,
		Logo:     in.Logo,
		Metadata: in.Metadata,
		OwnedBy:  authority,
	}
	if err := tx.RegisterAssetDefinition(def); err != nil {
		return nil, err
	}
	return []model.Event{created(model.AssetDefinitionRef(in.ID))}, nil
}

// registerAsset adds an asset. A non-zero initial quantity counts as a mint
// against its definition.
func (e *Executor) registerAsset(tx *world.Tx, in model.RegisterAsset) ([]model.Event, error) {
	def, err := tx.AssetDefinition(in.ID.Definition)
	if err != nil {
		return nil, err
	}
	val := in.Value
	if val.Kind == "" {
		val = model.NumericValue(numeric.Zero())
	}
	if val.Kind != def.Type.Kind {
		return nil, ledgererr.New(ledgererr.CodeWrongValueType,
			"asset %s: definition %s holds %s values, got %s", in.ID, def.ID, def.Type.Kind, val.Kind).
			With("expected", string(def.Type.Kind))
	}

	minting := val.Kind == model.AssetNumeric && !val.Numeric.IsZero()
	if val.Kind == model.AssetNumeric {
		if err := def.Type.Numeric.Check(val.Numeric); err != nil {
			return nil, err
		}
	}
	if minting {
		if err := checkMint(def); err != nil {
			return nil, err
		}
	}
	if err := tx.RegisterAsset(model.Asset{ID: in.ID, Value: val}); err != nil {
		return nil, err
	}
	events := []model.Event{created(model.AssetRef(in.ID))}
	if minting {
		if err := recordMint(tx, def, val.Numeric); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (e *Executor) registerRole(tx *world.Tx, authority ident.AccountID, in model.RegisterRole) ([]model.Event, error) {
	for _, p := range in.Permissions.List() {
		if err := requireScope(tx, p); err != nil {
			return nil, err
		}
	}
	role := model.Role{ID: in.ID, Owner: authority, Permissions: in.Permissions}
	if err := tx.RegisterRole(role); err != nil {
		return nil, err
	}
	return []model.Event{created(model.RoleRef(in.ID))}, nil
}

func (e *Executor) registerTrigger(tx *world.Tx, in model.RegisterTrigger) ([]model.Event, error) {
	t := in.Trigger
	if t.Action.Repeats.Exhausted() {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "trigger %s: zero repeats", t.ID)
	}
	t.NextFireMS = 0
	switch f := t.Action.Filter.(type) {
	case nil:
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "trigger %s: missing filter", t.ID)
	case model.TimeFilter:
		if (f.Schedule == nil) == !f.PreCommit {
			return nil, ledgererr.New(ledgererr.CodeInvalidValue, "trigger %s: time filter needs exactly one of schedule or pre_commit", t.ID)
		}
		if f.Schedule != nil {
			t.NextFireMS = f.Schedule.StartMS
		}
	}
	if err := tx.RegisterTrigger(t); err != nil {
		return nil, err
	}
	return []model.Event{created(model.TriggerRef(t.ID))}, nil
}
