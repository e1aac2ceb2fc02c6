package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
)

var (
	// ErrStopped is returned for batches submitted to, or still queued in,
	// a stopped engine.
	ErrStopped = errors.New("engine stopped")

	// ErrGenesisNotFirst is returned by Genesis once any block exists.
	ErrGenesisNotFirst = errors.New("genesis must be the first block")
)

// PreCommit is the BatchError index of failures in the pre-commit time
// check.
const PreCommit = -1

// BatchError reports a rejected batch. The whole batch was rolled back.
type BatchError struct {
	// BatchID identifies the rejected batch.
	BatchID string

	// Index is the failing instruction, or PreCommit.
	Index int

	// Err is the underlying failure, usually a *ledgererr.Error.
	Err error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.Index == PreCommit {
		return fmt.Sprintf("batch %s rejected at pre-commit: %v", e.BatchID, e.Err)
	}
	return fmt.Sprintf("batch %s rejected at instruction %d: %v", e.BatchID, e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Code returns the ledger error code of the failure.
func (e *BatchError) Code() ledgererr.Code { return ledgererr.CodeOf(e.Err) }

// IsRejected returns true if err reports a rejected batch.
// Uses errors.As to handle wrapped errors.
func IsRejected(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// Rejection describes why a batch was rolled back.
type Rejection struct {
	Index  int            `json:"index"`
	Code   ledgererr.Code `json:"code"`
	Reason string         `json:"reason"`
}

// Outcome is the result of one batch.
type Outcome struct {
	BatchID string `json:"batch_id"`
	Hash    string `json:"hash"`

	// Committed is true when the batch produced a block.
	Committed bool `json:"committed"`

	// Rejected is set when Committed is false.
	Rejected *Rejection `json:"rejected,omitempty"`

	// Height is the block height of a committed batch.
	Height uint64 `json:"height,omitempty"`

	// Events are every event the batch raised, trigger effects included,
	// in raise order.
	Events []model.Event `json:"events,omitempty"`
}

func rejectedOutcome(id, hash string, be *BatchError) Outcome {
	return Outcome{
		BatchID: id,
		Hash:    hash,
		Rejected: &Rejection{
			Index:  be.Index,
			Code:   be.Code(),
			Reason: be.Err.Error(),
		},
	}
}
