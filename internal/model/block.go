package model

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/value"
)

// Batch is a list of instructions submitted under one authority. It
// commits or rolls back as a unit.
type Batch struct {
	Authority    ident.AccountID
	Instructions []Instruction
	Metadata     value.Metadata
}

type batchJSON struct {
	Authority    ident.AccountID `json:"authority"`
	Instructions json.RawMessage `json:"instructions"`
	Metadata     value.Metadata  `json:"metadata"`
}

// MarshalJSON encodes b with instructions in their envelope form.
func (b Batch) MarshalJSON() ([]byte, error) {
	instrs, err := MarshalInstructions(b.Instructions)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	return json.Marshal(batchJSON{Authority: b.Authority, Instructions: instrs, Metadata: b.Metadata})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Batch) UnmarshalJSON(data []byte) error {
	var raw batchJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	instrs := []Instruction{}
	if len(raw.Instructions) > 0 && string(raw.Instructions) != "null" {
		var err error
		if instrs, err = UnmarshalInstructions(raw.Instructions); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
	}
	*b = Batch{Authority: raw.Authority, Instructions: instrs, Metadata: raw.Metadata}
	return nil
}

// Hash returns the content hash of b: its canonical JSON hashed under
// value.DomainBatch. Equal batches hash equally whatever their batch id.
func (b Batch) Hash() (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	canon, err := value.Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize batch: %w", err)
	}
	return value.HashWithDomain(value.DomainBatch, canon), nil
}

// Block is a committed batch together with the events it raised and the
// world hash after it. Heights start at 1; the genesis block, if any, is
// block 1.
type Block struct {
	Height     uint64  `json:"height"`
	BatchID    string  `json:"batch_id"`
	BatchHash  string  `json:"batch_hash"`
	PrevHash   string  `json:"prev_hash"`
	WorldHash  string  `json:"world_hash"`
	Hash       string  `json:"hash"`
	TimeMS     uint64  `json:"time_ms"`
	PrevTimeMS uint64  `json:"prev_time_ms"`
	Genesis    bool    `json:"genesis"`
	Batch      Batch   `json:"batch"`
	Events     []Event `json:"events"`
}

// ComputeHash chains the block header under value.DomainBlock:
// height, previous block hash, batch hash, world hash and time.
func (b Block) ComputeHash() (string, error) {
	return value.Hash(value.DomainBlock, map[string]any{
		"height":     b.Height,
		"prev_hash":  b.PrevHash,
		"batch_hash": b.BatchHash,
		"world_hash": b.WorldHash,
		"time_ms":    b.TimeMS,
	})
}
