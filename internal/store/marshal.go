package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/value"
)

// marshalInstructions converts a batch's instructions to canonical JSON
// TEXT for storage.
func marshalInstructions(instrs []model.Instruction) (string, error) {
	data, err := model.MarshalInstructions(instrs)
	if err != nil {
		return "", fmt.Errorf("marshal instructions: %w", err)
	}
	return string(data), nil
}

func unmarshalInstructions(s string) ([]model.Instruction, error) {
	instrs, err := model.UnmarshalInstructions([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("unmarshal instructions: %w", err)
	}
	return instrs, nil
}

func marshalMetadata(md value.Metadata) (string, error) {
	data, err := md.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(s string) (value.Metadata, error) {
	var md value.Metadata
	if err := md.UnmarshalJSON([]byte(s)); err != nil {
		return value.Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return md, nil
}

// marshalEvent converts an event to canonical JSON TEXT.
func marshalEvent(ev model.Event) (string, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	canon, err := value.Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return string(canon), nil
}

func unmarshalEvent(s string) (model.Event, error) {
	var ev model.Event
	if err := json.Unmarshal([]byte(s), &ev); err != nil {
		return model.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
