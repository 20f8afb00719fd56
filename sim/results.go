package sim

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TestResult is the outcome of one mapper on one graph.
type TestResult struct {
	Label     string
	Objective Time
	Runtime   time.Duration
	Timeout   bool
}

// TestRun collects the results of all mappers on one graph.
type TestRun []TestResult

// Statistic aggregates one mapper's results over a series of runs,
// relative to the CPU reference mapping.
type Statistic struct {
	Label      string
	NbrWinner  int
	NbrImpr    int
	NbrWorsen  int
	NbrEqual   int
	NbrTimeout int
	TotalRuns  int

	TotalTimeMs    float64
	relImprs       []float64
	positiveImprs  []float64
	totalObjective float64
	totalReference float64
}

func (s *Statistic) update(result, refResult float64) {
	impr := refResult - result
	switch {
	case impr > 0:
		s.NbrImpr++
	case impr == 0:
		s.NbrEqual++
	default:
		s.NbrWorsen++
	}

	s.relImprs = append(s.relImprs, impr/refResult)
	if impr > 0 {
		s.positiveImprs = append(s.positiveImprs, impr/refResult)
	}

	s.totalObjective += result
	s.totalReference += refResult
	s.TotalRuns++
}

// AvgPositiveImpr is the mean relative improvement over the reference,
// counting only improving runs (non-improving runs contribute 0).
func (s *Statistic) AvgPositiveImpr() float64 {
	if s.TotalRuns == 0 {
		return 0
	}
	return floats.Sum(s.positiveImprs) / float64(s.TotalRuns)
}

// AvgRelImpr is the mean relative improvement over the reference.
func (s *Statistic) AvgRelImpr() float64 {
	if len(s.relImprs) == 0 {
		return 0
	}
	return stat.Mean(s.relImprs, nil)
}

// MinImpr is the worst relative improvement seen.
func (s *Statistic) MinImpr() float64 {
	if len(s.relImprs) == 0 {
		return math.Inf(1)
	}
	return floats.Min(s.relImprs)
}

// MaxImpr is the best relative improvement seen.
func (s *Statistic) MaxImpr() float64 {
	if len(s.relImprs) == 0 {
		return math.Inf(-1)
	}
	return floats.Max(s.relImprs)
}

// AvgTimeMs is the mean mapper runtime in milliseconds.
func (s *Statistic) AvgTimeMs() float64 {
	if s.TotalRuns == 0 {
		return 0
	}
	return s.TotalTimeMs / float64(s.TotalRuns)
}

// PrintResults writes the per-mapper objective table and the resulting
// order of one run.
func PrintResults(testRun TestRun, out io.Writer) {
	for _, result := range testRun {
		fmt.Fprintf(out, "%-35sTime spent : %4d ms, Objective value : %vs\n",
			result.Label+" finished.", result.Runtime.Milliseconds(), result.Objective/1000)
	}

	sorted := append(TestRun(nil), testRun...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Objective < sorted[j].Objective })

	fmt.Fprintf(out, "\nOrder:")
	for _, result := range sorted {
		fmt.Fprintf(out, " %s", result.Label)
	}
	fmt.Fprintf(out, "\n\n")
}

// PrepareFiles creates the output directory layout and clears a previous
// statistics file.
func PrepareFiles() error {
	if err := os.MkdirAll("results", 0o755); err != nil {
		return err
	}
	os.Remove("results/statistics.txt")

	if err := os.MkdirAll("export", 0o755); err != nil {
		return err
	}
	return os.MkdirAll("export/kernels", 0o755)
}

// WriteSeedLog appends the seed of this invocation to results/seeds.log.
func WriteSeedLog(seed int64) error {
	f, err := os.OpenFile("results/seeds.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s Seed: %d\n", time.Now().Format("2006-01-02 15:04:05"), seed)
	return err
}

// CreateStatistics aggregates a series of runs per mapper. The reference
// is the CPUMapping column; every run is expected to carry the same
// mapper sequence.
func CreateStatistics(results []TestRun) []Statistic {
	if len(results) == 0 {
		return nil
	}

	statistics := make([]Statistic, len(results[0]))
	cpuIdx := -1
	for i, res := range results[0] {
		statistics[i].Label = res.Label
		if res.Label == "CPUMapping" {
			cpuIdx = i
		}
	}

	for _, run := range results {
		minObj := math.Inf(1)
		for _, res := range run {
			minObj = min(minObj, res.Objective)
		}

		for i, res := range run {
			st := &statistics[i]
			if res.Timeout {
				st.NbrTimeout++
				continue
			}

			if res.Objective == minObj {
				st.NbrWinner++
			}

			st.update(res.Objective, run[cpuIdx].Objective)
			st.TotalTimeMs += float64(res.Runtime.Milliseconds())
		}
	}

	return statistics
}

// ResultsToFile appends the semicolon-separated per-mapper aggregates to
// results/<filename>.
func ResultsToFile(results []TestRun, filename, configName string, appendFile bool) error {
	if len(results) == 0 {
		return nil
	}

	statistics := CreateStatistics(results)

	flags := os.O_CREATE | os.O_WRONLY
	if appendFile {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile("results/"+filename, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "Configuration: %s\n", configName)
	for i := range statistics {
		st := &statistics[i]
		if st.TotalRuns == 0 {
			continue
		}
		fmt.Fprintf(f, "%-25s;%10g;%10g;%10g;%3d;%10g;%3d;%3d;%3d\n",
			st.Label, st.AvgPositiveImpr(), st.MinImpr(), st.MaxImpr(),
			st.NbrImpr, st.AvgTimeMs(), st.NbrWinner, st.NbrWorsen, st.NbrEqual)
	}
	fmt.Fprintf(f, "\n")
	return nil
}

// SizedRuns pairs a series parameter (graph size, generation count) with
// the runs recorded at that value.
type SizedRuns struct {
	Size int
	Runs []TestRun
}

// CreatePlot writes pgfplots coordinate blocks for every aggregate
// measure over a parameter series.
func CreatePlot(results []SizedRuns, out io.Writer) {
	if len(results) == 0 {
		return
	}

	type sizedStat struct {
		size int
		stat Statistic
	}
	statMap := make(map[string][]sizedStat)
	var labels []string
	for _, runsWithSize := range results {
		for _, st := range CreateStatistics(runsWithSize.Runs) {
			if _, ok := statMap[st.Label]; !ok {
				labels = append(labels, st.Label)
			}
			statMap[st.Label] = append(statMap[st.Label], sizedStat{size: runsWithSize.Size, stat: st})
		}
	}

	printPlot := func(name string, measure func(*Statistic) float64) {
		fmt.Fprintf(out, "\n=== %s ===\n", name)
		for _, label := range labels {
			fmt.Fprintf(out, "\n\\addlegendentry{%s}\n", label)
			fmt.Fprintf(out, "\\addplot coordinates{")
			for _, pair := range statMap[label] {
				if pair.stat.TotalRuns > 0 {
					fmt.Fprintf(out, "(%d,%g) ", pair.size, measure(&pair.stat))
				}
			}
			fmt.Fprintf(out, "};\n")
		}
	}

	printPlot("Execution Time", (*Statistic).AvgTimeMs)
	printPlot("Positive Improvement", (*Statistic).AvgPositiveImpr)
	printPlot("RelImpr", (*Statistic).AvgRelImpr)
	printPlot("MinImpr", (*Statistic).MinImpr)
	printPlot("MaxImpr", (*Statistic).MaxImpr)
	printPlot("NbrImpr", func(s *Statistic) float64 { return float64(s.NbrImpr) })
	printPlot("NbrWinner", func(s *Statistic) float64 { return float64(s.NbrWinner) })
	printPlot("Timeouts", func(s *Statistic) float64 { return float64(s.NbrTimeout) })

	fmt.Fprintf(out, "\n=== Total ===\n")
	for _, label := range labels {
		var totalTime, totalRelPosImpr float64
		totalRuns := 0
		for _, pair := range statMap[label] {
			if pair.stat.TotalRuns > 0 {
				totalTime += pair.stat.AvgTimeMs()
				totalRelPosImpr += pair.stat.AvgPositiveImpr()
				totalRuns++
			}
		}
		fmt.Fprintf(out, "%-20s Avg. Impr: %-10g Time: %g ms\n", label, totalRelPosImpr/float64(totalRuns), totalTime)
	}
}
