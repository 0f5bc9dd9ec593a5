package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenariosDir = filepath.Join("..", "harness", "testdata", "scenarios")

const inlineScenario = `name: append_team
schema_source: |
  relationship: teams: {
    parent: "person"
    child:  "team"
  }
relationship: teams
records:
  - {key: pat, kind: person, name: pat}
  - {key: alpha, kind: team, name: alpha}
parent: pat
steps:
  - op: append
    records: [alpha]
  - op: save
expect:
  members: [alpha]
  persisted: [%s]
`

// writeScenario writes an inline scenario whose persisted expectation is
// persisted, into dir/scenarios.
func writeScenario(t *testing.T, dir, persisted string) string {
	t.Helper()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0755))
	src := []byte(fmt.Sprintf(inlineScenario, persisted))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "append_team.yaml"), src, 0644))
	return scenarios
}

func executeTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeTest(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := executeTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandInvalidFilter(t *testing.T) {
	_, err := executeTest(t, "text", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := executeTest(t, "json", t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestTestCommandRunsHarnessScenarios(t *testing.T) {
	out, err := executeTest(t, "text", scenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ replace_teams")
	assert.Contains(t, out, "✓ nested_attributes")
	assert.Contains(t, out, "Test Summary: 6 passed, 0 failed, 6 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandJSONIncludesMetrics(t *testing.T) {
	out, err := executeTest(t, "json", scenariosDir)
	require.NoError(t, err, out)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 6, resp.Data.Passed)

	totals := make(map[string]float64)
	for _, s := range resp.Data.Metrics {
		totals[s.Name] = s.Value
	}
	assert.Positive(t, totals["deferring_loads_total"])
	assert.Positive(t, totals["deferring_reconciliations_total"])
}

func TestTestCommandFilter(t *testing.T) {
	out, err := executeTest(t, "text", scenariosDir, "--filter", "nested_*")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ nested_attributes")
	assert.NotContains(t, out, "replace_teams")
	assert.Contains(t, out, "1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	scenarios := writeScenario(t, t.TempDir(), "beta")

	out, err := executeTest(t, "text", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ append_team")
	assert.Contains(t, out, "persisted")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandFailingScenarioJSON(t *testing.T) {
	scenarios := writeScenario(t, t.TempDir(), "beta")

	out, err := executeTest(t, "json", scenarios)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	root := t.TempDir()
	scenarios := writeScenario(t, root, "alpha")
	goldenPath := filepath.Join(root, "golden", "append_team.golden")

	out, err := executeTest(t, "text", scenarios, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ append_team (golden updated)")
	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"append_team"`)

	out, err = executeTest(t, "text", scenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ append_team")

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario_name":"append_team","trace":[]}`), 0644))
	out, err = executeTest(t, "text", scenarios)
	require.Error(t, err)
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandGoldenDirFlag(t *testing.T) {
	root := t.TempDir()
	scenarios := writeScenario(t, root, "alpha")
	golden := filepath.Join(root, "elsewhere")

	_, err := executeTest(t, "text", scenarios, "--update", "--golden", golden)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(golden, "append_team.golden"))
	assert.NoFileExists(t, filepath.Join(root, "golden", "append_team.golden"))
}
