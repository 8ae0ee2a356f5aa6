package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"giftmatch/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{dir: dir, config: filepath.Join(dir, "giftmatch.yaml")}
	cfg := fmt.Sprintf(`storage:
  driver: sqlite
  sqlite_path: %s
blob:
  driver: fs
  fs_root: %s
metrics:
  textfile: %s
  trace_file: %s
`, ws.path("gifts.db"), ws.path("exports"), ws.path("metrics.prom"), ws.path("trace.jsonl"))
	require.NoError(t, os.WriteFile(ws.config, []byte(cfg), 0o644))
	return ws
}

func (ws workspace) path(name string) string { return filepath.Join(ws.dir, name) }

func (ws workspace) roster(t *testing.T, body string) string {
	t.Helper()
	path := ws.path("roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func (ws workspace) run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", ws.config}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

const family = `table: Family
people:
  - name: Ann
  - name: Ben
  - name: Cat
  - name: Dan
`

func TestEndToEnd(t *testing.T) {
	ws := newWorkspace(t)

	out, _, err := ws.run("import", ws.roster(t, family), "--save")
	require.NoError(t, err)
	assert.Contains(t, out, `Imported 4 people into "Family"`)
	assert.Contains(t, out, "Saved settings to "+ws.config)

	out, _, err = ws.run("validate")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "There are 8 issues")
	assert.Contains(t, out, "  - Ann isn't assigned to give to anyone")
	assert.Contains(t, out, "  - Nobody is assigned to give to Dan")

	out, _, err = ws.run("match", "--seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Found a match after 1 attempt.")
	assert.Contains(t, out, "Success! A perfect gift assignment is stored in the Giftee field!")

	out, _, err = ws.run("validate")
	require.NoError(t, err)
	assert.Equal(t, "Success! A perfect gift assignment is stored in the Giftee field!\n", out)

	_, _, err = ws.run("match")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, core.ErrMatchAlreadyValid))

	out, _, err = ws.run("--format", "json", "match", "--force", "--strategy", "interleave")
	require.NoError(t, err)
	var matchResp struct {
		Status string
		Data   MatchOutput
	}
	require.NoError(t, json.Unmarshal([]byte(out), &matchResp))
	assert.Equal(t, "ok", matchResp.Status)
	assert.True(t, matchResp.Data.Outcome.Valid)
	assert.Len(t, matchResp.Data.Outcome.Edges, 4)
	assert.Equal(t, "interleave", matchResp.Data.Outcome.Attempts[0].Strategy)

	out, _, err = ws.run("--format", "json", "graph")
	require.NoError(t, err)
	var graphResp struct {
		Status string
		Data   core.Graph
	}
	require.NoError(t, json.Unmarshal([]byte(out), &graphResp))
	assert.Len(t, graphResp.Data.Nodes, 4)
	assert.Len(t, graphResp.Data.Edges, 4)

	out, _, err = ws.run("export", "--prefix", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported to runs/")
	dirs, err := os.ReadDir(ws.path("exports/runs"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	_, err = os.Stat(filepath.Join(ws.path("exports/runs"), dirs[0].Name(), "report.json"))
	require.NoError(t, err)

	metrics, err := os.ReadFile(ws.path("metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `giftmatch_operations_total{operation="validate",status="success"}`)

	trace, err := os.ReadFile(ws.path("trace.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(trace), `"operation":"make_match"`)
}

func TestReimportKeepsSavedSettings(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := ws.run("import", ws.roster(t, family), "--save")
	require.NoError(t, err)
	_, _, err = ws.run("match", "--seed", "3")
	require.NoError(t, err)

	out, _, err := ws.run("--format", "json", "import", ws.roster(t, family+"  - name: Eve\n"))
	require.NoError(t, err)
	var resp struct {
		Status string
		Data   ImportResult
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Replaced)
	assert.Equal(t, 5, resp.Data.People)

	out, _, err = ws.run("validate")
	require.Error(t, err)
	assert.Contains(t, out, "There are 10 issues")

	out, _, err = ws.run("match")
	require.NoError(t, err)
	assert.Contains(t, out, "Success!")
}

func TestGroupedRosterReportsSameGroup(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := ws.run("import", ws.roster(t, `table: Office
group_field: Team
people:
  - name: Ann
    group: Sales
    giftee: Ben
  - name: Ben
    group: Sales
    giftee: Ann
`), "--save")
	require.NoError(t, err)

	out, _, err := ws.run("validate")
	require.Error(t, err)
	assert.Contains(t, out, "There are 2 issues")
	assert.Contains(t, out, "  - Ann is assigned to Ben but they're both in group Sales")

	out, _, err = ws.run("--format", "json", "validate")
	require.Error(t, err)
	assert.Contains(t, out, `"status": "error"`)
	assert.Contains(t, out, `"kind": "same_group_assignment"`)
}

func TestMatchTooFewParticipants(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := ws.run("import", ws.roster(t, "table: Solo\npeople:\n  - name: Ann\n"), "--save")
	require.NoError(t, err)

	_, _, err = ws.run("match")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingSettings(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := ws.run("validate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "Pick the table with the people you want to assign")
}

func TestImportErrors(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := ws.run("import", ws.path("missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "open roster")

	_, _, err = ws.run("import", ws.roster(t, "table: T\npeople: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roster lists nobody")
}

func TestInvalidFormat(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := ws.run("--format", "xml", "graph")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `format "xml"`)
}

func TestBadConfig(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, os.WriteFile(ws.config, []byte("storage:\n  driver: mongo\n"), 0o644))
	_, _, err := ws.run("graph")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "load config")
}

func TestVerboseLogsToStderr(t *testing.T) {
	ws := newWorkspace(t)
	_, stderr, err := ws.run("-v", "import", ws.roster(t, family))
	require.NoError(t, err)
	assert.Contains(t, stderr, "level=DEBUG")
	assert.Contains(t, stderr, "roster imported")
	assert.False(t, strings.Contains(stderr, "level=ERROR"))
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"import", "match", "validate", "graph", "export"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	match, _, err := cmd.Find([]string{"match"})
	require.NoError(t, err)
	for _, flag := range []string{"force", "seed", "strategy", "attempts"} {
		assert.NotNil(t, match.Flags().Lookup(flag), flag)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("plain")))
	wrapped := fmt.Errorf("outer: %w", NewExitError(ExitFailure, "invalid"))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	err := WrapExitError(ExitCommandError, "open", errors.New("denied"))
	assert.Equal(t, "open: denied", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "denied")
}
