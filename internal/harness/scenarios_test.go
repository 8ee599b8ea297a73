package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios and compares
// its trace with the golden file of the same name. They double as:
//  1. end-to-end checks of the offline queue against an in-memory backend
//  2. worked examples of the scenario format
//  3. regression fixtures for the replay order
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths, "no scenarios found")

	for _, path := range paths {
		name := filepath.Base(path[:len(path)-len(filepath.Ext(path))])
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err, "failed to load %s", path)
			assert.Equal(t, name, scenario.Name, "file name and scenario name differ")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)
		})
	}
}

func TestScenarios_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/offline_product_reconciled.yaml")
	require.NoError(t, err)

	var first []byte
	for i := 0; i < 5; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		data, err := (&TraceSnapshot{ScenarioName: scenario.Name, Trace: result.Trace}).Marshal()
		require.NoError(t, err)
		if first == nil {
			first = data
			continue
		}
		assert.Equal(t, string(first), string(data), "run %d differs", i)
	}
}
