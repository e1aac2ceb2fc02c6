package executor

import (
	"fmt"
	"math"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/numeric"
	"github.com/roach88/ledger/internal/world"
)

// numericDefinition returns the definition of a numeric asset after
// checking that amount fits its precision.
func numericDefinition(tx *world.Tx, asset ident.AssetID, amount numeric.Quantity) (model.AssetDefinition, error) {
	def, err := tx.AssetDefinition(asset.Definition)
	if err != nil {
		return def, err
	}
	if def.Type.Kind != model.AssetNumeric {
		return def, ledgererr.New(ledgererr.CodeWrongValueType, "asset %s holds a store, not a quantity", asset)
	}
	if err := def.Type.Numeric.Check(amount); err != nil {
		return def, err
	}
	return def, nil
}

// checkMint applies the mintable policy of def.
func checkMint(def model.AssetDefinition) error {
	switch def.Mintable {
	case model.MintableNot:
		return ledgererr.New(ledgererr.CodeUnmintable, "asset definition %s is not mintable", def.ID).
			With("mintable", string(def.Mintable))
	case model.MintableOnce:
		if def.Minted {
			return ledgererr.New(ledgererr.CodeUnmintable, "asset definition %s was already minted", def.ID).
				With("mintable", string(def.Mintable))
		}
	}
	return nil
}

// recordMint adds amount to the supply of def and marks it minted.
func recordMint(tx *world.Tx, def model.AssetDefinition, amount numeric.Quantity) error {
	total, err := def.TotalQuantity.Add(amount)
	if err != nil {
		return err
	}
	def.TotalQuantity = total
	def.Minted = true
	return tx.UpdateAssetDefinition(def)
}

// numericAsset looks up id and checks that it holds a quantity.
func numericAsset(tx *world.Tx, id ident.AssetID) (model.Asset, error) {
	a, err := tx.Asset(id)
	if err != nil {
		return a, err
	}
	if a.Value.Kind != model.AssetNumeric {
		return a, ledgererr.New(ledgererr.CodeWrongValueType, "asset %s holds a store, not a quantity", id)
	}
	return a, nil
}

func (e *Executor) mintAsset(tx *world.Tx, in model.MintAsset) ([]model.Event, error) {
	def, err := numericDefinition(tx, in.Asset, in.Amount)
	if err != nil {
		return nil, err
	}
	if err := checkMint(def); err != nil {
		return nil, err
	}
	// A zero mint would spend the single mint of the definition.
	if def.Mintable == model.MintableOnce && in.Amount.IsZero() {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "mint of asset definition %s must be positive", def.ID).
			With("mintable", string(def.Mintable))
	}

	var events []model.Event
	asset, err := numericAsset(tx, in.Asset)
	switch {
	case err == nil:
	case ledgererr.IsNotFound(err) && e.opts.ImplicitAssetOnMint:
		asset = model.Asset{ID: in.Asset, Value: model.NumericValue(numeric.Zero())}
		if err := tx.RegisterAsset(asset); err != nil {
			return nil, err
		}
		events = append(events, created(model.AssetRef(in.Asset)))
	default:
		return nil, err
	}

	sum, err := asset.Value.Numeric.Add(in.Amount)
	if err != nil {
		return nil, err
	}
	asset.Value = model.NumericValue(sum)
	if err := tx.UpdateAsset(asset); err != nil {
		return nil, err
	}
	if err := recordMint(tx, def, in.Amount); err != nil {
		return nil, err
	}
	events = append(events, model.Event{Kind: model.EventAmountIncreased, Entity: model.AssetRef(in.Asset), Amount: in.Amount})
	return events, nil
}

func (e *Executor) burnAsset(tx *world.Tx, in model.BurnAsset) ([]model.Event, error) {
	def, err := numericDefinition(tx, in.Asset, in.Amount)
	if err != nil {
		return nil, err
	}
	asset, err := numericAsset(tx, in.Asset)
	if err != nil {
		return nil, err
	}
	rest, err := asset.Value.Numeric.Sub(in.Amount)
	if err != nil {
		return nil, fmt.Errorf("burn %s: %w", in.Asset, err)
	}
	total, err := def.TotalQuantity.Sub(in.Amount)
	if err != nil {
		return nil, ledgererr.New(ledgererr.CodeInvariantViolation, "asset definition %s: supply below holdings", def.ID)
	}

	asset.Value = model.NumericValue(rest)
	if err := tx.UpdateAsset(asset); err != nil {
		return nil, err
	}
	def.TotalQuantity = total
	if err := tx.UpdateAssetDefinition(def); err != nil {
		return nil, err
	}
	return []model.Event{{Kind: model.EventAmountDecreased, Entity: model.AssetRef(in.Asset), Amount: in.Amount}}, nil
}

// transferAsset moves a quantity between two holders of one definition. A
// transfer back to the source changes nothing and raises no events.
func (e *Executor) transferAsset(tx *world.Tx, in model.TransferAsset) ([]model.Event, error) {
	if _, err := numericDefinition(tx, in.Source, in.Amount); err != nil {
		return nil, err
	}
	madeDestination, err := tx.TransferQuantity(in.Source, in.Amount, in.Destination)
	if err != nil {
		return nil, err
	}
	dst := ident.NewAssetID(in.Source.Definition, in.Destination)
	if dst == in.Source {
		return nil, nil
	}

	var events []model.Event
	if madeDestination {
		events = append(events, created(model.AssetRef(dst)))
	}
	return append(events,
		model.Event{Kind: model.EventAmountDecreased, Entity: model.AssetRef(in.Source), Amount: in.Amount},
		model.Event{Kind: model.EventAmountIncreased, Entity: model.AssetRef(dst), Amount: in.Amount},
	), nil
}

func (e *Executor) mintRepetitions(tx *world.Tx, in model.MintTriggerRepetitions) ([]model.Event, error) {
	if in.Count == 0 {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "trigger %s: zero repetitions", in.Trigger)
	}
	t, err := tx.Trigger(in.Trigger)
	if err != nil {
		return nil, err
	}
	if t.Action.Repeats.Indefinitely {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "trigger %s repeats indefinitely", in.Trigger)
	}
	if t.Action.Repeats.Count > math.MaxUint32-in.Count {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "trigger %s: repetitions overflow", in.Trigger)
	}
	t.Action.Repeats.Count += in.Count
	if err := tx.UpdateTrigger(t); err != nil {
		return nil, err
	}
	return []model.Event{{Kind: model.EventTriggerExtended, Entity: model.TriggerRef(in.Trigger), Count: in.Count}}, nil
}

// burnRepetitions removes repetitions. A trigger left with none is
// unregistered.
func (e *Executor) burnRepetitions(tx *world.Tx, in model.BurnTriggerRepetitions) ([]model.Event, error) {
	if in.Count == 0 {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "trigger %s: zero repetitions", in.Trigger)
	}
	t, err := tx.Trigger(in.Trigger)
	if err != nil {
		return nil, err
	}
	if t.Action.Repeats.Indefinitely {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "trigger %s repeats indefinitely", in.Trigger)
	}
	if in.Count > t.Action.Repeats.Count {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue,
			"trigger %s: cannot burn %d of %d repetitions", in.Trigger, in.Count, t.Action.Repeats.Count)
	}
	t.Action.Repeats.Count -= in.Count
	events := []model.Event{{Kind: model.EventTriggerShortened, Entity: model.TriggerRef(in.Trigger), Count: in.Count}}
	if t.Action.Repeats.Exhausted() {
		refs, err := tx.UnregisterTrigger(in.Trigger)
		if err != nil {
			return nil, err
		}
		gone, _ := deleted(refs, nil)
		return append(events, gone...), nil
	}
	if err := tx.UpdateTrigger(t); err != nil {
		return nil, err
	}
	return events, nil
}
