package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	scenarioDir = "../harness/testdata/scenarios"
	goldenDir   = "../harness/testdata/golden"
)

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runCLI(t, "", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	_, err := runCLI(t, "", "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandRunsScenarios(t *testing.T) {
	out, err := runCLI(t, "", "test", scenarioDir, "--golden", goldenDir, "--format", "json")
	require.NoError(t, err, out)

	result := decodeData[TestResult](t, out)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed)
	assert.Zero(t, result.Failed)
}

func TestTestCommandFilter(t *testing.T) {
	out, err := runCLI(t, "", "test", scenarioDir, "--filter", "transfer_*", "--format", "json")
	require.NoError(t, err, out)
	result := decodeData[TestResult](t, out)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "transfer_reject", result.Scenarios[0].Name)
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	golden := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(golden, "transfer_reject.golden"), []byte("stale\n"), 0o644))

	out, err := runCLI(t, "", "test", scenarioDir, "--filter", "transfer_*", "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL transfer_reject")
	assert.Contains(t, out, "trace differs")
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	golden := filepath.Join(t.TempDir(), "golden")
	_, err := runCLI(t, "", "test", scenarioDir, "--filter", "contact_*", "--golden", golden, "--update")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(golden, "contact_recreate.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(goldenDir, "contact_recreate.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}
