package executor

import (
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/value"
	"github.com/roach88/ledger/internal/world"
)

// editMetadata replaces the metadata of obj with edit(current). For assets
// the store value is edited.
func editMetadata(tx *world.Tx, obj model.Ref, edit func(value.Metadata) (value.Metadata, error)) error {
	switch obj.Kind {
	case model.EntityDomain:
		d, err := tx.Domain(obj.Domain)
		if err != nil {
			return err
		}
		if d.Metadata, err = edit(d.Metadata); err != nil {
			return err
		}
		return tx.UpdateDomain(d)
	case model.EntityAccount:
		a, err := tx.Account(obj.Account)
		if err != nil {
			return err
		}
		if a.Metadata, err = edit(a.Metadata); err != nil {
			return err
		}
		return tx.UpdateAccount(a)
	case model.EntityAssetDefinition:
		d, err := tx.AssetDefinition(obj.AssetDefinition)
		if err != nil {
			return err
		}
		if d.Metadata, err = edit(d.Metadata); err != nil {
			return err
		}
		return tx.UpdateAssetDefinition(d)
	case model.EntityAsset:
		a, err := tx.Asset(obj.Asset)
		if err != nil {
			return err
		}
		if a.Value.Kind != model.AssetStore {
			return ledgererr.New(ledgererr.CodeWrongValueType, "asset %s holds a quantity, not a store", obj.Asset)
		}
		store, err := edit(a.Value.Store)
		if err != nil {
			return err
		}
		a.Value = model.StoreValue(store)
		return tx.UpdateAsset(a)
	case model.EntityTrigger:
		t, err := tx.Trigger(obj.Trigger)
		if err != nil {
			return err
		}
		if t.Action.Metadata, err = edit(t.Action.Metadata); err != nil {
			return err
		}
		return tx.UpdateTrigger(t)
	default:
		return ledgererr.New(ledgererr.CodeInvalidValue, "%s objects carry no metadata", obj.Kind)
	}
}

func (e *Executor) setKeyValue(tx *world.Tx, in model.SetKeyValue) ([]model.Event, error) {
	if in.Value == nil {
		return nil, ledgererr.New(ledgererr.CodeInvalidValue, "set %s on %s: missing value", in.Key, in.Object)
	}
	err := editMetadata(tx, in.Object, func(md value.Metadata) (value.Metadata, error) {
		return md.Set(in.Key, in.Value), nil
	})
	if err != nil {
		return nil, err
	}
	return []model.Event{{Kind: model.EventMetadataInserted, Entity: in.Object, Key: in.Key, Value: in.Value}}, nil
}

func (e *Executor) removeKeyValue(tx *world.Tx, in model.RemoveKeyValue) ([]model.Event, error) {
	var removed value.Value
	err := editMetadata(tx, in.Object, func(md value.Metadata) (value.Metadata, error) {
		out, old, ok := md.Remove(in.Key)
		if !ok {
			return md, ledgererr.New(ledgererr.CodeNotFound, "%s has no metadata key %s", in.Object, in.Key).
				With("key", in.Key.String())
		}
		removed = old
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return []model.Event{{Kind: model.EventMetadataRemoved, Entity: in.Object, Key: in.Key, Value: removed}}, nil
}
