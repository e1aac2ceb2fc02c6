// Package genesis loads the batch that bootstraps an empty ledger.
//
// A genesis file names the authority that owns everything it registers and
// lists instructions in their single-key envelope form:
//
//	authority: alice@wonderland
//	instructions:
//	  - register_domain: {id: wonderland}
//	  - register_account: {id: alice@wonderland}
//
// Files ending in .cue are evaluated with CUE and checked against the
// #Genesis schema; .yaml, .yml and .json files are read as YAML.
package genesis

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/value"
)

// Format selects the genesis file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("genesis %s: unsupported file extension", path)
	}
}

// Load reads and decodes the genesis file at path.
func Load(path string) (model.Batch, error) {
	format, err := FormatOf(path)
	if err != nil {
		return model.Batch{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Batch{}, fmt.Errorf("genesis: %w", err)
	}
	b, err := Parse(data, format, path)
	if err != nil {
		return model.Batch{}, fmt.Errorf("genesis %s: %w", path, err)
	}
	return b, nil
}

// Parse decodes genesis source. name is used in CUE positions.
func Parse(data []byte, format Format, name string) (model.Batch, error) {
	var raw map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return model.Batch{}, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatCUE:
		var err error
		if raw, err = evalCUE(data, name); err != nil {
			return model.Batch{}, err
		}
	default:
		return model.Batch{}, fmt.Errorf("unknown genesis format %q", format)
	}
	return fromRaw(raw)
}

// LoadBatch reads a batch file in the genesis format, as submitted by the
// command line. A YAML file without an authority is signed by fallback;
// CUE files must name their authority.
func LoadBatch(path string, fallback ident.AccountID) (model.Batch, error) {
	format, err := FormatOf(path)
	if err != nil {
		return model.Batch{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Batch{}, fmt.Errorf("batch: %w", err)
	}
	if format == FormatCUE {
		b, err := Parse(data, format, path)
		if err != nil {
			return model.Batch{}, fmt.Errorf("batch %s: %w", path, err)
		}
		return b, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return model.Batch{}, fmt.Errorf("batch %s: parse yaml: %w", path, err)
	}
	b, err := batchFromRaw(raw, fallback)
	if err != nil {
		return model.Batch{}, fmt.Errorf("batch %s: %w", path, err)
	}
	return b, nil
}

// ReadBatches decodes a stream of YAML batch documents separated by "---"
// and calls fn for each, in order. Documents without an authority are
// signed by fallback. It stops at the first error fn returns.
func ReadBatches(r io.Reader, fallback ident.AccountID, fn func(model.Batch) error) error {
	dec := yaml.NewDecoder(r)
	for n := 1; ; n++ {
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("batch #%d: parse yaml: %w", n, err)
		}
		if raw == nil {
			continue
		}
		b, err := batchFromRaw(raw, fallback)
		if err != nil {
			return fmt.Errorf("batch #%d: %w", n, err)
		}
		if err := fn(b); err != nil {
			return err
		}
	}
}

func batchFromRaw(raw map[string]any, fallback ident.AccountID) (model.Batch, error) {
	if raw != nil {
		if _, ok := raw["authority"]; !ok {
			raw["authority"] = fallback.String()
		}
	}
	return fromRaw(raw)
}

// fromRaw builds the batch from decoded YAML or CUE data.
func fromRaw(raw map[string]any) (model.Batch, error) {
	if raw == nil {
		return model.Batch{}, fmt.Errorf("empty genesis")
	}
	for key := range raw {
		switch key {
		case "authority", "metadata", "instructions":
		default:
			return model.Batch{}, fmt.Errorf("unknown field %q", key)
		}
	}

	s, ok := raw["authority"].(string)
	if !ok {
		return model.Batch{}, fmt.Errorf("authority: expected an account id")
	}
	authority, err := ident.ParseAccountID(s)
	if err != nil {
		return model.Batch{}, fmt.Errorf("authority: %w", err)
	}

	var md value.Metadata
	if m, ok := raw["metadata"]; ok && m != nil {
		obj, err := value.FromAny(value.ToStringMaps(m))
		if err != nil {
			return model.Batch{}, fmt.Errorf("metadata: %w", err)
		}
		o, ok := obj.(value.Object)
		if !ok {
			return model.Batch{}, fmt.Errorf("metadata: expected a mapping")
		}
		if md, err = value.MetadataFromObject(o); err != nil {
			return model.Batch{}, fmt.Errorf("metadata: %w", err)
		}
	}

	list, ok := raw["instructions"]
	if !ok || list == nil {
		list = []any{}
	}
	if _, ok := list.([]any); !ok {
		return model.Batch{}, fmt.Errorf("instructions: expected a list")
	}
	instrs, err := model.InstructionsFromAny(list)
	if err != nil {
		return model.Batch{}, err
	}
	return model.Batch{Authority: authority, Instructions: instrs, Metadata: md}, nil
}
