package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agentregistry/internal/registry"
	"github.com/roach88/agentregistry/internal/store"
)

func initDB(t *testing.T) string {
	t.Helper()
	db := isolate(t)
	_, err := execute(t, "init", "--as", "owner.test", "--db", db)
	require.NoError(t, err)
	return db
}

func TestInitCommand(t *testing.T) {
	db := isolate(t)

	resp, data, err := executeJSON(t, "init", "--as", "owner.test", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "new", data["method"])
	assert.Equal(t, "success", data["status"])
	assert.Equal(t, "owner.test", data["caller"])
	assert.EqualValues(t, 1, data["seq"])
}

func TestInitTwice(t *testing.T) {
	db := initDB(t)

	resp, _, err := executeJSON(t, "init", "--as", "owner.test", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ALREADY_INITIALIZED", resp.Error.Code)
}

func TestInitBlankCaller(t *testing.T) {
	db := isolate(t)

	_, err := execute(t, "init", "--as", "  ", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--as")
}

func TestCallerUsedVerbatim(t *testing.T) {
	db := initDB(t)

	_, err := execute(t, "set", "bafyx", "--as", " alice.test", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "surrounding whitespace")

	_, data, err := executeJSON(t, "get", "alice.test", "--db", db)
	require.NoError(t, err)
	assert.Nil(t, data["cid"])

	resp, _, err := executeJSON(t, "set", "bafyx", "--as", "alice\xff.test", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "INVALID_ARGS", resp.Error.Code)

	_, err = execute(t, "set", "bafy\xfe", "--as", "alice.test", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "not valid UTF-8")

	// Nothing above consumed a seq.
	_, data, err = executeJSON(t, "events", "--db", db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, data["last_seq"])
}

func TestSetBeforeInit(t *testing.T) {
	db := isolate(t)

	resp, _, err := executeJSON(t, "set", "bafyx", "--as", "alice.test", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_INITIALIZED", resp.Error.Code)
}

func TestSetCommand(t *testing.T) {
	db := initDB(t)

	resp, data, err := executeJSON(t, "set", "bafyx", "--as", "alice.test", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "set_persona", data["method"])
	assert.Equal(t, "success", data["status"])
	assert.Equal(t, map[string]any{"cid": "bafyx"}, data["args"])
	assert.Equal(t, []any{`EVENT_JSON:{"account_id":"alice.test","cid":"bafyx"}`}, data["logs"])
}

func TestSetRejectedCID(t *testing.T) {
	db := initDB(t)

	resp, data, err := executeJSON(t, "set", "", "--as", "alice.test", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeCallFailed, resp.Error.Code)
	assert.Equal(t, registry.InvalidCIDMessage, resp.Error.Message)
	assert.Equal(t, "failure", data["status"])
	assert.Empty(t, data["logs"])

	// The failure is committed but the mapping is untouched.
	_, got, err := executeJSON(t, "get", "alice.test", "--db", db)
	require.NoError(t, err)
	assert.Nil(t, got["cid"])
}

func TestSetText(t *testing.T) {
	db := initDB(t)

	out, err := execute(t, "set", "bafyx", "--as", "alice.test", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ set_persona")
	assert.Contains(t, out, "caller alice.test")
	assert.Contains(t, out, `Log: EVENT_JSON:{"account_id":"alice.test","cid":"bafyx"}`)
}

func TestCallCommand(t *testing.T) {
	db := initDB(t)

	_, data, err := executeJSON(t, "call", "set_persona", "--as", "bob.test", "--args", `{"cid":"bafyy"}`, "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "success", data["status"])

	t.Run("wrong argument name", func(t *testing.T) {
		resp, _, err := executeJSON(t, "call", "set_persona", "--as", "bob.test", "--args", `{"persona":"bafyy"}`, "--db", db)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Equal(t, "INVALID_ARGS", resp.Error.Code)
	})

	t.Run("unknown method", func(t *testing.T) {
		resp, _, err := executeJSON(t, "call", "delete_persona", "--as", "bob.test", "--db", db)
		require.Error(t, err)
		assert.Equal(t, "UNKNOWN_METHOD", resp.Error.Code)
	})

	t.Run("init through call", func(t *testing.T) {
		resp, _, err := executeJSON(t, "call", "new", "--as", "bob.test", "--db", db)
		require.Error(t, err)
		assert.Equal(t, "NOT_A_CALL", resp.Error.Code)
	})
}

func TestGetCommand(t *testing.T) {
	db := initDB(t)
	_, err := execute(t, "set", "bafyx", "--as", "alice.test", "--db", db)
	require.NoError(t, err)

	_, data, err := executeJSON(t, "get", "alice.test", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "alice.test", data["account_id"])
	assert.Equal(t, "bafyx", data["cid"])

	out, err := execute(t, "get", "alice.test", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "alice.test -> bafyx\n", out)

	out, err = execute(t, "get", "carol.test", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "carol.test: no persona registered\n", out)
}

func TestGetBeforeInit(t *testing.T) {
	db := isolate(t)

	_, err := execute(t, "get", "alice.test", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "NOT_INITIALIZED")
}

func TestEventsCommand(t *testing.T) {
	db := initDB(t)
	for _, args := range [][]string{
		{"set", "bafyx", "--as", "alice.test"},
		{"set", "bafyy", "--as", "bob.test"},
		{"set", "bafyz", "--as", "alice.test"},
	} {
		_, err := execute(t, append(args, "--db", db)...)
		require.NoError(t, err)
	}
	_, err := execute(t, "set", "", "--as", "alice.test", "--db", db)
	require.Error(t, err)

	_, data, err := executeJSON(t, "events", "--db", db)
	require.NoError(t, err)
	assert.EqualValues(t, 3, data["count"])
	assert.EqualValues(t, 2, data["accounts"])
	assert.EqualValues(t, 5, data["last_seq"])

	events := data["events"].([]any)
	require.Len(t, events, 3)
	first := events[0].(map[string]any)
	assert.EqualValues(t, 2, first["seq"])
	assert.Equal(t, "alice.test", first["account_id"])
	assert.Equal(t, "bafyx", first["cid"])

	t.Run("account filter", func(t *testing.T) {
		_, data, err := executeJSON(t, "events", "--account", "alice.test", "--db", db)
		require.NoError(t, err)
		assert.EqualValues(t, 2, data["count"])
		assert.EqualValues(t, 1, data["accounts"])
	})

	t.Run("since", func(t *testing.T) {
		_, data, err := executeJSON(t, "events", "--since", "3", "--db", db)
		require.NoError(t, err)
		assert.EqualValues(t, 1, data["count"])
		last := data["events"].([]any)[0].(map[string]any)
		assert.Equal(t, "bafyz", last["cid"])
	})

	t.Run("negative since", func(t *testing.T) {
		_, err := execute(t, "events", "--since", "-1", "--db", db)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, "events", "--db", db)
		require.NoError(t, err)
		assert.Contains(t, out, "[2] alice.test -> bafyx")
		assert.Contains(t, out, "3 event(s), 2 account(s)")
	})
}

func TestEventsEmpty(t *testing.T) {
	db := initDB(t)

	out, err := execute(t, "events", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No events found.")
}

func TestReplayCommand(t *testing.T) {
	db := initDB(t)
	_, err := execute(t, "set", "bafyx", "--as", "alice.test", "--db", db)
	require.NoError(t, err)
	_, err = execute(t, "set", "bafyy", "--as", "alice.test", "--db", db)
	require.NoError(t, err)

	_, data, err := executeJSON(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, true, data["consistent"])
	assert.EqualValues(t, 3, data["receipts"])
	assert.EqualValues(t, 2, data["events"])
	assert.EqualValues(t, 1, data["accounts"])

	out, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Event log reproduces stored state")
}

func TestReplayDetectsTampering(t *testing.T) {
	db := initDB(t)
	_, err := execute(t, "set", "bafyx", "--as", "alice.test", "--db", db)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().ExecContext(context.Background(),
		"UPDATE personas SET cid = ? WHERE account_id = ?", "bafyevil", "alice.test")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	resp, data, err := executeJSON(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, CodeReplayMismatch, resp.Error.Code)
	assert.Equal(t, false, data["consistent"])

	mismatches := data["mismatches"].([]any)
	require.Len(t, mismatches, 1)
	m := mismatches[0].(map[string]any)
	assert.Equal(t, "alice.test", m["account_id"])
	assert.Equal(t, "bafyx", m["projected"])
	assert.Equal(t, "bafyevil", m["stored"])
}

func TestABICommand(t *testing.T) {
	isolate(t)

	_, data, err := executeJSON(t, "abi")
	require.NoError(t, err)
	assert.Equal(t, "AgentRegistry", data["name"])
	assert.Len(t, data["methods"], 3)

	out, err := execute(t, "abi")
	require.NoError(t, err)
	assert.Contains(t, out, "Contract AgentRegistry")
	assert.Contains(t, out, "set_persona(cid: string)")
	assert.Contains(t, out, "get_persona(account_id: string)")

	out, err = execute(t, "abi", "--source")
	require.NoError(t, err)
	assert.Contains(t, out, "AgentRegistry")
	assert.Contains(t, out, "set_persona")
}

func TestStdoutTracing(t *testing.T) {
	db := initDB(t)

	spans := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(spans)
	cmd.SetArgs([]string{"get", "alice.test", "--db", db, "--trace", "stdout"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, spans.String(), "ledger.view")
}
