package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // golden file directory
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "matched", "updated" or "mismatch"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run conformance scenarios",
		Long: `Run scenario files through the harness.

Each scenario runs on a fresh in-memory ledger. Expectations and
assertions are checked, and the trace is compared with the scenario's
golden file when one exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  ledger test ./scenarios
  ledger test ./scenarios --filter "chess*"
  ledger test ./scenarios --update
  ledger test ./scenarios/atomicity.yaml --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden file directory (default: golden/ next to each scenario)")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}

	var files []string
	for _, p := range paths {
		found, err := harness.FindScenarios(p)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to find scenarios in %s", p), err)
		}
		for _, f := range found {
			if matchFilter(opts.Filter, f) {
				files = append(files, f)
			}
		}
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := runScenario(opts, file)
		opts.Logger.Debug("scenario finished", "file", file, "pass", sr.Pass)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	f := NewOutputFormatter(opts.RootOptions, cmd)
	if err := f.Emit(result, func(w io.Writer) { writeTestText(w, result) }); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func matchFilter(filter, file string) bool {
	if filter == "" {
		return true
	}
	base := filepath.Base(file)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	matched, _ := filepath.Match(filter, name)
	return matched
}

// runScenario executes a single scenario and checks its golden file.
func runScenario(opts *TestOptions, file string) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
		return sr
	}
	sr.Errors = result.Errors

	trace, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to marshal trace: %v", err))
		return sr
	}

	goldenPath := opts.goldenPath(file, scenario.Name)
	switch {
	case opts.Update:
		if err := writeGolden(goldenPath, trace); err != nil {
			sr.Errors = append(sr.Errors, err.Error())
			return sr
		}
		sr.Golden = "updated"
	default:
		want, err := os.ReadFile(goldenPath)
		switch {
		case os.IsNotExist(err):
			// No golden file: assertions alone decide.
		case err != nil:
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
			return sr
		case bytes.Equal(want, trace):
			sr.Golden = "matched"
		default:
			sr.Golden = "mismatch"
			sr.Errors = append(sr.Errors, fmt.Sprintf("trace does not match %s (run with --update to regenerate)", goldenPath))
		}
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

// goldenPath returns the golden file of the scenario called name in file.
func (o *TestOptions) goldenPath(file, name string) string {
	dir := o.GoldenDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(file), "golden")
	}
	return filepath.Join(dir, name+".golden")
}

func writeGolden(path string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, trace, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func writeTestText(w io.Writer, result TestResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, sr := range result.Scenarios {
		if sr.Pass {
			suffix := ""
			if sr.Golden == "updated" {
				suffix = " (golden updated)"
			}
			fmt.Fprintf(w, "✓ %s%s\n", sr.Name, suffix)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}
