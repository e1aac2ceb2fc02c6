package genesis

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource []byte

// evalCUE evaluates src, checks it against #Genesis and returns the
// concrete result as generic data. Numbers come back as json.Number.
func evalCUE(src []byte, name string) (map[string]any, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("genesis schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, cueError("compile", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Genesis")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError("validate", err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return nil, cueError("export", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return raw, nil
}

// cueError flattens a CUE error list into one message with positions.
func cueError(stage string, err error) error {
	return fmt.Errorf("%s: %s", stage, bytes.TrimSpace([]byte(cueerrors.Details(err, nil))))
}
