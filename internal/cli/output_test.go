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
)

func TestGetExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "plain_error", err: errors.New("boom"), want: ExitFailure},
		{name: "exit_error", err: NewExitError(ExitCommandError, "bad flag"), want: ExitCommandError},
		{name: "wrapped_exit_error", err: fmt.Errorf("run: %w", NewExitError(ExitSuccess, "ok")), want: ExitSuccess},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "open ledger", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "open ledger: disk full", err.Error())
}

func TestOutputFormatter(t *testing.T) {
	t.Parallel()

	t.Run("json_envelope", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		f := &OutputFormatter{Format: "json", Writer: &buf}

		require.NoError(t, f.Success(map[string]int{"balance": 7}, nil))

		var resp struct {
			Status string         `json:"status"`
			Data   map[string]int `json:"data"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, 7, resp.Data["balance"])
	})

	t.Run("json_error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		f := &OutputFormatter{Format: "json", Writer: &buf}

		require.NoError(t, f.Error(errors.New("nope")))
		assert.JSONEq(t, `{"status":"error","error":"nope"}`, buf.String())
	})

	t.Run("text_render", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf}

		err := f.Success(nil, func(w io.Writer) error {
			_, err := io.WriteString(w, "rendered\n")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, "rendered\n", buf.String())
	})
}
