package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ledger/internal/genesis"
	"github.com/roach88/ledger/internal/harness"
)

// File kinds recognized by validate.
const (
	KindScenario = "scenario"
	KindBatch    = "batch"
)

// FileValidation is the result for one file.
type FileValidation struct {
	Path         string `json:"path"`
	Kind         string `json:"kind"`
	Valid        bool   `json:"valid"`
	Instructions int    `json:"instructions,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate genesis, batch and scenario files",
		Long: `Validate files without touching the block store.

A YAML file with a top-level "flow" key is checked as a harness
scenario. Any other .yaml, .yml, .json or .cue file is checked as a
batch in the genesis format; batches without an authority are signed by
the configured authority.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts, cmd)

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return WrapExitError(ExitCommandError, "cannot read file", err)
		}
		formatter.VerboseLog("Validating %s", path)
		fv := validateFile(opts, path)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if err := formatter.Emit(result, func(w io.Writer) { writeValidateText(w, result) }); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func validateFile(opts *RootOptions, path string) FileValidation {
	fv := FileValidation{Path: path, Kind: KindBatch}

	isScenario, err := looksLikeScenario(path)
	if err != nil {
		fv.Error = err.Error()
		return fv
	}

	if isScenario {
		fv.Kind = KindScenario
		if _, err := harness.LoadScenario(path); err != nil {
			fv.Error = err.Error()
			return fv
		}
		fv.Valid = true
		return fv
	}

	b, err := genesis.LoadBatch(path, opts.Config.AuthorityID())
	if err != nil {
		fv.Error = err.Error()
		return fv
	}
	fv.Valid = true
	fv.Instructions = len(b.Instructions)
	return fv
}

// looksLikeScenario reports whether path is YAML with a top-level flow key.
func looksLikeScenario(path string) (bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var top map[string]any
	if err := yaml.Unmarshal(data, &top); err != nil {
		return false, fmt.Errorf("parse yaml: %w", err)
	}
	_, ok := top["flow"]
	return ok, nil
}

func writeValidateText(w io.Writer, result ValidationResult) {
	for _, fv := range result.Files {
		if fv.Valid {
			detail := ""
			if fv.Kind == KindBatch {
				detail = fmt.Sprintf(", %d instructions", fv.Instructions)
			}
			fmt.Fprintf(w, "✓ %s (%s%s)\n", fv.Path, fv.Kind, detail)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%s)\n", fv.Path, fv.Kind)
		fmt.Fprintf(w, "  %s\n", fv.Error)
	}
	if result.Valid {
		fmt.Fprintln(w, "✓ All files valid")
	}
}
