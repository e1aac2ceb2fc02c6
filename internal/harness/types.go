package harness

// Phases of a scenario run, in execution order.
const (
	PhaseGenesis = "genesis"
	PhaseSetup   = "setup"
	PhaseFlow    = "flow"
)

// Outcomes of a batch.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
)

// TraceEvent records one processed batch.
type TraceEvent struct {
	Seq     int      `json:"seq"`
	Phase   string   `json:"phase"`
	BatchID string   `json:"batch_id"`
	Outcome string   `json:"outcome"`
	Height  uint64   `json:"height,omitempty"`
	Index   *int     `json:"index,omitempty"`
	Code    string   `json:"code,omitempty"`
	Events  []string `json:"events,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace holds every batch in processing order, genesis first.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Height is the height of the last committed block.
	Height uint64 `json:"height"`

	// WorldHash is the hash of the final world state.
	WorldHash string `json:"world_hash"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// events returns the event lines of every committed batch, in order.
func (r *Result) events() []string {
	var out []string
	for _, te := range r.Trace {
		out = append(out, te.Events...)
	}
	return out
}
