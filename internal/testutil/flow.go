package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator generates numbered batch ids: prefix-0001,
// prefix-0002 and so on.
//
// This enables deterministic test execution and golden trace comparison.
// The same scenario with the same generator produces byte-identical traces.
//
// Thread-safety: SequentialIDGenerator is safe for concurrent use.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDGenerator creates a generator. If prefix is empty it
// defaults to "batch".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "batch"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next id.
//
// Implements engine.IDGenerator.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
