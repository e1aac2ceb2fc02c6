package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledger/internal/ledgererr"
)

func TestOutputFormatter_JSONEmit(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Emit(data, func(w io.Writer) { t.Fatal("text renderer called in json mode") })
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"result": "success"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextEmit(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Emit("ignored", func(w io.Writer) { fmt.Fprint(w, "rendered") })
	require.NoError(t, err)
	assert.Equal(t, "rendered", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Emit("plain", nil))
	assert.Equal(t, "plain\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("NotPermitted", "batch rejected", map[string]int{"index": 0})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NotPermitted", resp.Error.Code)
	assert.Equal(t, "batch rejected", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("E_COMMAND", "no database", "detail"))
	assert.Equal(t, "Error [E_COMMAND]: no database\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E_COMMAND", "no database", "detail"))
	assert.Contains(t, buf.String(), "Details: detail")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	formatter.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String(), "verbose output must not corrupt stdout")

	formatter.ErrWriter = nil
	assert.Equal(t, out, formatter.GetErrWriter())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("cause")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestExitError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", cause)
	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "bad", NewExitError(ExitFailure, "bad").Error())
}

func TestErrorCode(t *testing.T) {
	rejected := WrapExitError(ExitFailure, "rejected", ledgererr.New(ledgererr.CodeInsufficientFunds, "not enough"))
	assert.Equal(t, "InsufficientFunds", ErrorCode(rejected))
	assert.Equal(t, "E_COMMAND", ErrorCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, "E_FAILED", ErrorCode(NewExitError(ExitFailure, "failed")))
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{Status: "ok", Data: []int{1}}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":[1]}`, string(data))

	resp = CLIResponse{Status: "error", Error: &CLIError{Code: "E_FAILED", Message: "m"}}
	data, err = json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","error":{"code":"E_FAILED","message":"m"}}`, string(data))
}
