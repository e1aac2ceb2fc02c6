package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ledger/internal/genesis"
	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/model"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Genesis is the first block.
	Genesis GenesisStep `yaml:"genesis"`

	// Clock sets the block time source.
	Clock ClockConfig `yaml:"clock,omitempty"`

	// Engine tunes the engine the scenario runs on.
	Engine EngineConfig `yaml:"engine,omitempty"`

	// Setup batches establish state. Each must commit.
	Setup []BatchStep `yaml:"setup,omitempty"`

	// Flow batches are the scenario proper.
	Flow []BatchStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// VerifyReplay stores blocks in a temporary SQLite file and checks
	// that replaying them rebuilds the same world.
	VerifyReplay bool `yaml:"verify_replay,omitempty"`

	genesisBatch model.Batch
}

// GenesisStep names the genesis block. Exactly one of Default, File and
// Authority must be set.
type GenesisStep struct {
	Default      bool   `yaml:"default,omitempty"`
	File         string `yaml:"file,omitempty"`
	Authority    string `yaml:"authority,omitempty"`
	Instructions []any  `yaml:"instructions,omitempty"`
}

// ClockConfig is a deterministic clock: the first block is stamped
// StartMS and each later block StepMS after the previous one.
type ClockConfig struct {
	StartMS int64 `yaml:"start_ms"`
	StepMS  int64 `yaml:"step_ms"`
}

// EngineConfig overrides engine defaults. Zero fields keep the defaults.
type EngineConfig struct {
	MaxSteps            int  `yaml:"max_steps,omitempty"`
	MaxDepth            int  `yaml:"max_depth,omitempty"`
	ImplicitAssetOnMint bool `yaml:"implicit_asset_on_mint,omitempty"`
}

// BatchStep is one submitted batch.
type BatchStep struct {
	// Authority signs the batch.
	Authority string `yaml:"authority"`

	// Instructions are single-key instruction envelopes.
	Instructions []any `yaml:"instructions"`

	// Expect checks the outcome of a flow batch. If nil, no validation is
	// performed.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	batch model.Batch
}

// Batch returns the decoded batch. It is set once the scenario is loaded.
func (s BatchStep) Batch() model.Batch { return s.batch }

// ExpectClause specifies the expected outcome of a flow batch.
type ExpectClause struct {
	// Outcome is "committed" or "rejected".
	Outcome string `yaml:"outcome"`

	// Code is the expected ledger error code of a rejection.
	Code string `yaml:"code,omitempty"`

	// Index is the expected failing instruction of a rejection; -1 is the
	// pre-commit time check.
	Index *int `yaml:"index,omitempty"`

	// Events, when set, must equal the batch's events exactly.
	Events []string `yaml:"events,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_contains": Check an event appears in the trace
	// - "event_order": Check events appear in order
	// - "event_count": Check an event appears exactly N times
	// - "final_state": Check an object's fields or absence
	Type string `yaml:"type"`

	// Event is an event line (used by event_contains, event_count).
	Event string `yaml:"event,omitempty"`

	// Events is the expected event order (used by event_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (used by event_count).
	Count int `yaml:"count,omitempty"`

	// Entity and ID name the object (used by final_state).
	Entity string `yaml:"entity,omitempty"`
	ID     string `yaml:"id,omitempty"`

	// Expect contains expected fields of the object's JSON form. This is a
	// subset match: only the given fields are compared, recursively.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts the object does not exist.
	Absent bool `yaml:"absent,omitempty"`

	ref model.Ref
}

// Assertion type constants.
const (
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertEventCount    = "event_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A genesis file is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. basePath resolves a relative genesis
// file; it may be empty.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if f := scenario.Genesis.File; f != "" && !filepath.IsAbs(f) && basePath != "" {
		scenario.Genesis.File = filepath.Join(basePath, f)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid, and
// decodes every batch.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Clock.StepMS < 0 {
		return fmt.Errorf("clock.step_ms must be non-negative")
	}

	if err := decodeGenesis(s); err != nil {
		return err
	}

	for i := range s.Setup {
		if err := decodeBatch(fmt.Sprintf("setup[%d]", i), &s.Setup[i]); err != nil {
			return err
		}
		if s.Setup[i].Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed, setup batches must commit", i)
		}
	}

	for i := range s.Flow {
		if err := decodeBatch(fmt.Sprintf("flow[%d]", i), &s.Flow[i]); err != nil {
			return err
		}
		if err := validateExpect(i, s.Flow[i].Expect); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

func decodeGenesis(s *Scenario) error {
	g := s.Genesis
	set := 0
	for _, ok := range []bool{g.Default, g.File != "", g.Authority != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("genesis: exactly one of default, file or authority is required")
	}

	switch {
	case g.Default:
		if len(g.Instructions) > 0 {
			return fmt.Errorf("genesis: instructions need an authority")
		}
		s.genesisBatch = genesis.Default()
	case g.File != "":
		if len(g.Instructions) > 0 {
			return fmt.Errorf("genesis: instructions need an authority")
		}
		b, err := genesis.Load(g.File)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		s.genesisBatch = b
	default:
		step := BatchStep{Authority: g.Authority, Instructions: g.Instructions}
		if err := decodeBatch("genesis", &step); err != nil {
			return err
		}
		s.genesisBatch = step.batch
	}
	return nil
}

func decodeBatch(where string, step *BatchStep) error {
	if step.Authority == "" {
		return fmt.Errorf("%s: authority is required", where)
	}
	authority, err := ident.ParseAccountID(step.Authority)
	if err != nil {
		return fmt.Errorf("%s: authority: %w", where, err)
	}
	if step.Instructions == nil {
		return fmt.Errorf("%s: instructions is required (use an empty list for none)", where)
	}
	instrs, err := model.InstructionsFromAny(step.Instructions)
	if err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	step.batch = model.Batch{Authority: authority, Instructions: instrs}
	return nil
}

func validateExpect(i int, e *ExpectClause) error {
	if e == nil {
		return nil
	}
	switch e.Outcome {
	case OutcomeCommitted:
		if e.Code != "" || e.Index != nil {
			return fmt.Errorf("flow[%d].expect: code and index only apply to rejected batches", i)
		}
	case OutcomeRejected:
		if len(e.Events) > 0 {
			return fmt.Errorf("flow[%d].expect: a rejected batch raises no events", i)
		}
		if e.Index != nil && *e.Index < -1 {
			return fmt.Errorf("flow[%d].expect: index must be -1 or more", i)
		}
	case "":
		return fmt.Errorf("flow[%d].expect: outcome is required", i)
	default:
		return fmt.Errorf("flow[%d].expect: unknown outcome %q", i, e.Outcome)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_contains", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertFinalState:
		if a.Entity == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: entity and id are required for final_state", index)
		}
		ref, err := model.ParseRef(model.EntityKind(a.Entity), a.ID)
		if err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		a.ref = ref
		if a.Absent == (len(a.Expect) > 0) {
			return fmt.Errorf("assertions[%d]: final_state needs exactly one of expect or absent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
