package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledger/internal/model"
)

const minimalScenario = `
name: minimal
description: one log instruction
genesis:
  default: true
flow:
  - authority: alice@wonderland
    instructions:
      - log: {message: hello}
assertions:
  - type: event_count
    event: domain wonderland Created
    count: 1
`

func TestLoadScenario_Chess(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/chess.yaml")
	require.NoError(t, err)

	assert.Equal(t, "chess", s.Name)
	assert.Len(t, s.Setup, 2)
	assert.Len(t, s.Flow, 4)
	assert.Len(t, s.Assertions, 5)
	assert.Equal(t, "alice@chess", s.genesisBatch.Authority.String())
	assert.Len(t, s.genesisBatch.Instructions, 4)

	mint := s.Flow[0].Batch()
	require.Len(t, mint.Instructions, 1)
	assert.IsType(t, model.MintAsset{}, mint.Instructions[0])

	require.NotNil(t, s.Flow[1].Expect)
	assert.Equal(t, OutcomeRejected, s.Flow[1].Expect.Outcome)
	assert.Equal(t, "Unmintable", s.Flow[1].Expect.Code)
	require.NotNil(t, s.Flow[1].Expect.Index)
	assert.Equal(t, 0, *s.Flow[1].Expect.Index)

	assert.Equal(t, model.EntityAssetDefinition, s.Assertions[4].ref.Kind)
}

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario), "")
	require.NoError(t, err)
	assert.Equal(t, "alice@wonderland", s.genesisBatch.Authority.String())
	assert.Len(t, s.genesisBatch.Instructions, 8)
	assert.Nil(t, s.Flow[0].Expect)
}

func TestLoadScenario_GenesisFileIsRelative(t *testing.T) {
	dir := t.TempDir()
	genesisYAML := `
authority: alice@chess
instructions:
  - register_domain: {id: chess}
  - register_account: {id: alice@chess}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "genesis.yaml"), []byte(genesisYAML), 0o644))

	scenario := `
name: from_file
description: genesis loaded from a sibling file
genesis:
  file: genesis.yaml
flow:
  - authority: alice@chess
    instructions: []
assertions:
  - type: event_contains
    event: domain chess Created
`
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "genesis.yaml"), s.Genesis.File)
	assert.Len(t, s.genesisBatch.Instructions, 2)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nonexistent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario+"assertion: []\n"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: []}]
assertions: [{type: event_contains, event: x}]
`,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: []}]
assertions: [{type: event_contains, event: x}]
`,
			want: "description is required",
		},
		{
			name: "empty flow",
			yaml: `
name: x
description: x
genesis: {default: true}
assertions: [{type: event_contains, event: x}]
`,
			want: "flow list is required",
		},
		{
			name: "empty assertions",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: []}]
`,
			want: "assertions list is required",
		},
		{
			name: "two genesis sources",
			yaml: `
name: x
description: x
genesis: {default: true, authority: alice@wonderland}
flow: [{authority: alice@wonderland, instructions: []}]
assertions: [{type: event_contains, event: x}]
`,
			want: "exactly one of default, file or authority",
		},
		{
			name: "negative step",
			yaml: `
name: x
description: x
genesis: {default: true}
clock: {start_ms: 0, step_ms: -1}
flow: [{authority: alice@wonderland, instructions: []}]
assertions: [{type: event_contains, event: x}]
`,
			want: "step_ms must be non-negative",
		},
		{
			name: "bad authority",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice, instructions: []}]
assertions: [{type: event_contains, event: x}]
`,
			want: "flow[0]: authority",
		},
		{
			name: "missing instructions",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland}]
assertions: [{type: event_contains, event: x}]
`,
			want: "flow[0]: instructions is required",
		},
		{
			name: "unknown instruction",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: [{teleport_asset: {}}]}]
assertions: [{type: event_contains, event: x}]
`,
			want: `unknown kind "teleport_asset"`,
		},
		{
			name: "expect on setup",
			yaml: `
name: x
description: x
genesis: {default: true}
setup: [{authority: alice@wonderland, instructions: [], expect: {outcome: committed}}]
flow: [{authority: alice@wonderland, instructions: []}]
assertions: [{type: event_contains, event: x}]
`,
			want: "setup[0]: expect is not allowed",
		},
		{
			name: "unknown outcome",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: [], expect: {outcome: maybe}}]
assertions: [{type: event_contains, event: x}]
`,
			want: `unknown outcome "maybe"`,
		},
		{
			name: "code on committed",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: [], expect: {outcome: committed, code: NotFound}}]
assertions: [{type: event_contains, event: x}]
`,
			want: "only apply to rejected batches",
		},
		{
			name: "events on rejected",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: [], expect: {outcome: rejected, events: [x]}}]
assertions: [{type: event_contains, event: x}]
`,
			want: "a rejected batch raises no events",
		},
		{
			name: "index below pre-commit",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: [], expect: {outcome: rejected, index: -2}}]
assertions: [{type: event_contains, event: x}]
`,
			want: "index must be -1 or more",
		},
		{
			name: "unknown assertion",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: []}]
assertions: [{type: trace_contains, event: x}]
`,
			want: `unknown assertion type "trace_contains"`,
		},
		{
			name: "event_order without events",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: []}]
assertions: [{type: event_order}]
`,
			want: "events list is required for event_order",
		},
		{
			name: "final_state bad id",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: []}]
assertions: [{type: final_state, entity: account, id: alice, absent: true}]
`,
			want: "assertions[0]",
		},
		{
			name: "final_state expect and absent",
			yaml: `
name: x
description: x
genesis: {default: true}
flow: [{authority: alice@wonderland, instructions: []}]
assertions: [{type: final_state, entity: domain, id: wonderland, absent: true, expect: {logo: x}}]
`,
			want: "exactly one of expect or absent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
