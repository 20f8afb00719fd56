package sim

import (
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })
	return dir
}

func sampleRuns() []TestRun {
	return []TestRun{
		{
			{Label: "CPUMapping", Objective: 100, Runtime: 2 * time.Millisecond},
			{Label: "HEFTMapping", Objective: 80, Runtime: 4 * time.Millisecond},
			{Label: "NSGAIIMapping", Objective: 120, Runtime: 40 * time.Millisecond},
		},
		{
			{Label: "CPUMapping", Objective: 200, Runtime: 2 * time.Millisecond},
			{Label: "HEFTMapping", Objective: 100, Runtime: 6 * time.Millisecond},
			{Label: "NSGAIIMapping", Objective: math.Inf(1), Runtime: 0, Timeout: true},
		},
	}
}

func TestCreateStatistics_Aggregates(t *testing.T) {
	stats := CreateStatistics(sampleRuns())
	require.Len(t, stats, 3)

	heft := stats[1]
	assert.Equal(t, "HEFTMapping", heft.Label)
	assert.Equal(t, 2, heft.TotalRuns)
	assert.Equal(t, 2, heft.NbrImpr)
	assert.Equal(t, 2, heft.NbrWinner)
	assert.Equal(t, 0, heft.NbrWorsen)
	// Improvements: (100-80)/100 = 0.2 and (200-100)/200 = 0.5.
	assert.InDelta(t, 0.35, heft.AvgPositiveImpr(), 1e-9)
	assert.InDelta(t, 0.2, heft.MinImpr(), 1e-9)
	assert.InDelta(t, 0.5, heft.MaxImpr(), 1e-9)
	assert.InDelta(t, 5.0, heft.AvgTimeMs(), 1e-9)

	cpu := stats[0]
	assert.Equal(t, 2, cpu.NbrEqual)
	assert.Equal(t, 0, cpu.NbrWinner)

	genetic := stats[2]
	assert.Equal(t, 1, genetic.NbrTimeout)
	assert.Equal(t, 1, genetic.TotalRuns, "timed-out runs are not aggregated")
	assert.Equal(t, 1, genetic.NbrWorsen)
}

func TestResultsToFile_SemicolonSeparated(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, PrepareFiles())

	require.NoError(t, ResultsToFile(sampleRuns(), "statistics.txt", "CGF", true))

	data, err := os.ReadFile("results/statistics.txt")
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "Configuration: CGF")
	assert.Contains(t, content, "HEFTMapping")
	line := ""
	for _, l := range strings.Split(content, "\n") {
		if strings.Contains(l, "HEFTMapping") {
			line = l
			break
		}
	}
	require.NotEmpty(t, line)
	assert.Equal(t, 8, strings.Count(line, ";"), "label plus eight aggregate columns")
}

func TestWriteSeedLog_AppendsTimestampedLine(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, PrepareFiles())

	require.NoError(t, WriteSeedLog(4711))
	require.NoError(t, WriteSeedLog(4712))

	data, err := os.ReadFile("results/seeds.log")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} Seed: 4711$`, lines[0])
	assert.Contains(t, lines[1], "Seed: 4712")
}

func TestPrepareFiles_CreatesLayoutAndClearsStatistics(t *testing.T) {
	chdirTemp(t)

	require.NoError(t, os.MkdirAll("results", 0o755))
	require.NoError(t, os.WriteFile("results/statistics.txt", []byte("stale"), 0o644))

	require.NoError(t, PrepareFiles())

	for _, dir := range []string{"results", "export", "export/kernels"} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	_, err := os.Stat("results/statistics.txt")
	assert.True(t, os.IsNotExist(err))
}

func TestCreatePlot_EmitsCoordinateBlocks(t *testing.T) {
	var b strings.Builder
	CreatePlot([]SizedRuns{
		{Size: 10, Runs: sampleRuns()},
		{Size: 20, Runs: sampleRuns()},
	}, &b)

	out := b.String()
	assert.Contains(t, out, "=== Execution Time ===")
	assert.Contains(t, out, "\\addlegendentry{HEFTMapping}")
	assert.Contains(t, out, "\\addplot coordinates{(10,")
	assert.Contains(t, out, "(20,")
	assert.Contains(t, out, "=== Total ===")
}

func TestPrintResults_OrderLine(t *testing.T) {
	var b strings.Builder
	PrintResults(sampleRuns()[0], &b)

	out := b.String()
	assert.Contains(t, out, "CPUMapping finished.")
	assert.Contains(t, out, "Order: HEFTMapping CPUMapping NSGAIIMapping")
}
