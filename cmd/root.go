// cmd/root.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/HTI-OVGU/task-mapping-evaluator/sim"
)

const (
	defaultGraphSize = 100
	defaultRuns      = 100
	defaultDataInMB  = 100
)

var (
	graphSize    int
	runs         int
	seed         int64
	logLevel     string
	configLabels []string
	drawResults  bool
	enableExport bool
	platformSpec string
	looseEdges   int
	selection    []string
)

var rootCmd = &cobra.Command{
	Use:   "task-mapping-evaluator",
	Short: "Task-to-device mapping engine for heterogeneous compute platforms",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Map random series-parallel graphs and collect per-mapper statistics",
	Run: func(cmd *cobra.Command, args []string) {
		validateArgs()
		logrus.Infof("Starting benchmark with size=%d, runs=%d, seed=%d", graphSize, runs, seed)

		if err := sim.PrepareFiles(); err != nil {
			logrus.Fatalf("Cannot prepare output directories: %v", err)
		}
		if err := sim.WriteSeedLog(seed); err != nil {
			logrus.Warnf("Cannot write seed log: %v", err)
		}

		rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed))
		runner := sim.NewRunner(rng, drawResults || runs == 1, enableExport)

		for _, configLabel := range configLabels {
			platform, config, err := buildPlatform(configLabel)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			fmt.Printf("Executing configuration %s with Seed %d\n", config, seed)

			system := sim.NewComputationBasedSystem(sim.NewTaskGraph(), platform)
			sim.DrawHardwareGraph(platform, "hardware_graph_"+config)

			var results []sim.TestRun
			for i := 0; i < runs; i++ {
				fmt.Printf("Run %d of %d...\n", i+1, runs)
				system.ReplaceGraph(generateGraph(rng))

				var testRun sim.TestRun
				runner.RunMappings(system, &testRun, mappingSelection())
				results = append(results, testRun)

				if runs == 1 {
					sim.PrintResults(testRun, os.Stdout)
				}
			}

			if err := sim.ResultsToFile(results, "statistics.txt", config, true); err != nil {
				logrus.Errorf("Cannot write statistics: %v", err)
			}
		}
	},
}

var benchCmd = &cobra.Command{
	Use:   "bench [workflow-folder ...]",
	Short: "Map JSON workflow benchmarks from the configured benchmark folder",
	Run: func(cmd *cobra.Command, args []string) {
		validateArgs()

		if err := sim.PrepareFiles(); err != nil {
			logrus.Fatalf("Cannot prepare output directories: %v", err)
		}
		if err := sim.WriteSeedLog(seed); err != nil {
			logrus.Warnf("Cannot write seed log: %v", err)
		}

		basefolder, err := sim.BenchmarkFolder()
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed))
		runner := sim.NewRunner(rng, false, enableExport)

		for _, configLabel := range configLabels {
			platform, config, err := buildPlatform(configLabel)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			fmt.Printf("Executing configuration %s with Seed %d\n", config, seed)

			system := sim.NewComputationBasedSystem(sim.NewTaskGraph(), platform)
			for _, folder := range args {
				fmt.Printf("Processing %s\n", folder)

				folderName := folder
				if idx := strings.LastIndex(folderName, "/"); idx >= 0 {
					folderName = folderName[idx+1:]
				}
				out, err := os.OpenFile("results/"+folderName+"_out.txt", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					logrus.Errorf("Cannot open output for %s: %v", folder, err)
					continue
				}

				entries, err := os.ReadDir(filepath.Join(basefolder, folder))
				if err != nil {
					fmt.Printf("Folder %s not found.\n", folder)
					out.Close()
					continue
				}

				var testRuns []sim.SizedRuns
				for _, entry := range entries {
					path := filepath.Join(basefolder, folder, entry.Name())
					size := sim.SizeFromJSON(path)

					var results []sim.TestRun
					for i := 0; i < runs; i++ {
						fmt.Printf("%-50sRun %d of %d\n", entry.Name(), i+1, runs)
						system.ReplaceGraph(sim.BuildFromJSON(path, rng.ForSubsystem(sim.SubsystemGenerator)))

						var testRun sim.TestRun
						runner.RunMappings(system, &testRun, mappingSelection())
						results = append(results, testRun)

						if runs == 1 {
							sim.PrintResults(testRun, os.Stdout)
						}
					}
					testRuns = append(testRuns, sim.SizedRuns{Size: size, Runs: results})
				}

				sim.CreatePlot(testRuns, out)
				out.Close()
			}
		}
	},
}

func validateArgs() {
	if graphSize < 1 || graphSize > 1000 {
		graphSize = defaultGraphSize
	}
	if runs < 1 || runs > 1000 {
		runs = defaultRuns
	}
	if seed <= 0 {
		seed = time.Now().Unix()
	}
}

func buildPlatform(configLabel string) (*sim.Platform, string, error) {
	if platformSpec != "" {
		platform, err := sim.LoadPlatformSpec(platformSpec)
		if err != nil {
			return nil, "", err
		}
		return platform, strings.TrimSuffix(filepath.Base(platformSpec), filepath.Ext(platformSpec)), nil
	}

	config, err := sim.ParsePlatformConfiguration(configLabel)
	if err != nil {
		return nil, "", err
	}
	return sim.CreatePlatform(config.NbrFPGAs()), config.String(), nil
}

func generateGraph(rng *sim.PartitionedRNG) *sim.TaskGraph {
	genRNG := rng.ForSubsystem(sim.SubsystemGenerator)
	if looseEdges > 0 {
		return sim.GenerateRandomAlmostSeriesParallelGraph(graphSize, defaultDataInMB, looseEdges, genRNG)
	}
	return sim.GenerateRandomSeriesParallelGraph(graphSize, defaultDataInMB, genRNG)
}

func mappingSelection() []sim.MappingType {
	if len(selection) == 0 {
		return sim.DefaultMappingSelection
	}
	types := make([]sim.MappingType, 0, len(selection))
	for _, s := range selection {
		types = append(types, sim.MappingType(s))
	}
	return types
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&graphSize, "graph-size", defaultGraphSize, "Number of tasks per generated graph [1,1000]")
	rootCmd.PersistentFlags().IntVar(&runs, "runs", defaultRuns, "Number of benchmark runs [1,1000]")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 0, "Random seed (0 = derive from current time)")
	rootCmd.PersistentFlags().StringSliceVar(&configLabels, "config", []string{"CGF"}, "Platform configurations (CG, CGF, CGFF)")
	rootCmd.PersistentFlags().StringVar(&platformSpec, "platform", "", "YAML platform spec overriding the built-in catalogue")
	rootCmd.PersistentFlags().BoolVar(&drawResults, "draw", false, "Dump Graphviz renderings of every mapping")
	rootCmd.PersistentFlags().BoolVar(&enableExport, "export", false, "Export mapped graphs and OpenCL kernel templates")
	rootCmd.PersistentFlags().StringSliceVar(&selection, "mappers", nil, "Mapper selection (default: full benchmark suite)")
	runCmd.Flags().IntVar(&looseEdges, "loose-edges", 0, "Extra non-SP edges per generated graph")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(benchCmd)
}
