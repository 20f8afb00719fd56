package sim

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// MappingType selects a mapper in a benchmark run.
type MappingType string

const (
	MappingCPU  MappingType = "CPU"
	MappingGPU  MappingType = "GPU"
	MappingFPGA MappingType = "FPGA"

	MappingSingleNode  MappingType = "SingleNode"
	MappingSNThreshold MappingType = "SNThreshold"
	MappingSNFirstFit  MappingType = "SNFirstFit"

	MappingSeriesParallel MappingType = "SeriesParallel"
	MappingSPThreshold    MappingType = "SPThreshold"
	MappingSPFirstFit     MappingType = "SPFirstFit"

	MappingSimulatedAnnealing MappingType = "SimulatedAnnealing"
	MappingGenetic            MappingType = "NSGAII"
	MappingGeneticSummed      MappingType = "NSGAIISimple"

	MappingHEFT MappingType = "HEFT"
	MappingPEFT MappingType = "PEFT"

	MappingPathBased MappingType = "PathBased"
)

// DefaultMappingSelection is the benchmark suite run when no explicit
// selection is given.
var DefaultMappingSelection = []MappingType{
	MappingCPU, MappingSeriesParallel, MappingSPFirstFit, MappingSingleNode,
	MappingSNFirstFit, MappingSimulatedAnnealing, MappingGenetic,
	MappingHEFT, MappingPEFT,
}

// evaluationRuns is the number of orderings EvaluateWithCheck tries per
// result, keeping the reported makespan independent of one linearisation.
const evaluationRuns = 100

// Runner executes mappers against a system and records timed results.
type Runner struct {
	rng          *PartitionedRNG
	draw         bool
	enableExport bool

	defaultGeneticGenerations int
}

// NewRunner creates a benchmark runner.
func NewRunner(rng *PartitionedRNG, draw, enableExport bool) *Runner {
	return &Runner{rng: rng, draw: draw, enableExport: enableExport, defaultGeneticGenerations: 500}
}

// RunMapping executes one mapper, validates and costs the result and
// appends it to the test run. A failed validation is logged and skipped;
// an empty mapping is recorded as a timeout.
func (r *Runner) RunMapping(label string, system System, mapper Mapper, testRun *TestRun) {
	logrus.Infof("Computing %s...", label)

	begin := time.Now()
	mapping := mapper.TaskMapping(system)
	elapsed := time.Since(begin)

	logrus.Infof("%s finished!", label)

	if mapping.Empty() {
		*testRun = append(*testRun, TestResult{Label: label, Objective: math.Inf(1), Runtime: elapsed, Timeout: true})
		return
	}

	eval := NewMappingEvaluator(system, true)
	eval.SetRand(r.rng.ForSubsystem(SubsystemSorting))
	result := eval.EvaluateWithCheck(mapping, evaluationRuns)

	if result == -1 {
		logrus.Errorf("No mapping found for %s", label)
		return
	}

	if r.draw {
		DrawGraph(system.TaskGraph(), mapping, label, eval.Log())
	}
	if r.enableExport {
		if err := ExportGraph(system.TaskGraph(), mapping, label); err != nil {
			logrus.Errorf("Export of %s failed: %v", label, err)
		}
	}
	*testRun = append(*testRun, TestResult{Label: label, Objective: result, Runtime: elapsed})
}

// RunMappingWithSchedule costs a list scheduler under its own planned
// linearisation instead of a fresh topological order.
func (r *Runner) RunMappingWithSchedule(label string, system System, mapper ScheduleMapper, testRun *TestRun) {
	logrus.Infof("Computing %s...", label)

	begin := time.Now()
	mapping := mapper.TaskMapping(system)
	elapsed := time.Since(begin)

	logrus.Infof("%s finished!", label)

	eval := NewMappingEvaluator(system, true)
	if ok, task := eval.IsComplete(mapping); !ok {
		logrus.Errorf("Mapping incomplete. Missing value for task %s", task.Label())
		return
	}
	if ok, task := eval.IsCompatible(mapping); !ok {
		logrus.Errorf("Mapping invalid. Incompatible processor for task %s", task.Label())
		return
	}
	if ok, proc := eval.SatisfiesCapacityConstraint(mapping); !ok {
		logrus.Errorf("Mapping invalid. Not enough capacity for %s", proc.Label())
		return
	}

	sortedTasks := make([]*Task, 0, len(system.TaskGraph().Tasks()))
	for _, scheduled := range mapper.Schedule() {
		sortedTasks = append(sortedTasks, scheduled.Task)
	}

	scheduleSorting := NewScheduleSorting(sortedTasks)
	result := eval.ComputeCostWithSorting(mapping, scheduleSorting)

	if r.draw {
		DrawGraph(system.TaskGraph(), mapping, label, eval.Log())
	}
	if r.enableExport {
		if err := ExportGraph(system.TaskGraph(), mapping, label); err != nil {
			logrus.Errorf("Export of %s failed: %v", label, err)
		}
	}
	*testRun = append(*testRun, TestResult{Label: label, Objective: result, Runtime: elapsed})
}

// RunMappings executes the selected mappers against the system.
func (r *Runner) RunMappings(system System, testRun *TestRun, selection []MappingType) {
	for _, mptype := range selection {
		switch mptype {
		case MappingCPU:
			r.RunMapping("CPUMapping", system, NewCPUMapper(), testRun)
		case MappingGPU:
			r.RunMapping("OnlyGPUMapping", system, NewGreedyMapper("GPU", "GPU_RAM", "CPU", "Main_RAM"), testRun)
		case MappingFPGA:
			r.RunMapping("OnlyFPGAMapping", system, NewGreedyMapper("FPGA", "FPGA_RAM", "CPU", "Main_RAM"), testRun)
		case MappingSeriesParallel:
			r.RunMapping("SeriesParallelMapping", system, NewSeriesParallelDecompositionMapper(GreedyBase{}, EvaluateAll{}, true), testRun)
		case MappingSingleNode:
			r.RunMapping("SingleNodeMapping", system, NewSingleNodeDecompositionMapper(GreedyBase{}, EvaluateAll{}), testRun)
		case MappingSPThreshold:
			r.RunMapping("SPThresholdMapping", system, NewSeriesParallelDecompositionMapper(GreedyBase{}, EvaluateThreshold{ThresholdTimesTen: 15}, true), testRun)
		case MappingSNThreshold:
			r.RunMapping("SNThresholdMapping", system, NewSingleNodeDecompositionMapper(GreedyBase{}, EvaluateThreshold{ThresholdTimesTen: 15}), testRun)
		case MappingSPFirstFit:
			r.RunMapping("SPFirstFitMapping", system, NewSeriesParallelDecompositionMapper(GreedyBase{}, EvaluateThreshold{ThresholdTimesTen: 10}, true), testRun)
		case MappingSNFirstFit:
			r.RunMapping("SNFirstFitMapping", system, NewSingleNodeDecompositionMapper(GreedyBase{}, EvaluateThreshold{ThresholdTimesTen: 10}), testRun)
		case MappingSimulatedAnnealing:
			r.RunMapping("SimulatedAnnealingMapping", system, NewSimulatedAnnealingMapper(r.rng.ForSubsystem(SubsystemAnnealing)), testRun)
		case MappingGenetic:
			r.RunMapping("NSGAIIMapping", system, NewGeneticMapper(r.defaultGeneticGenerations, FullEvaluation{}, r.rng.ForSubsystem(SubsystemGenetic)), testRun)
		case MappingGeneticSummed:
			r.RunMapping("NSGAIIMappingSummed", system, NewGeneticMapper(r.defaultGeneticGenerations, SummedEvaluation{}, r.rng.ForSubsystem(SubsystemGenetic)), testRun)
		case MappingHEFT:
			r.RunMapping("HEFTMapping", system, NewHEFTMapper(), testRun)
		case MappingPEFT:
			r.RunMapping("PEFTMapping", system, NewPEFTMapper(), testRun)
		case MappingPathBased:
			r.RunMapping("PathBasedMapping", system, NewPathBasedMapper(), testRun)
		default:
			logrus.Warnf("Unknown mapping type %q skipped", mptype)
		}
	}
}

// RunGeneticMapping runs the genetic mapper with an explicit generation
// count, used by the generation-series benchmark.
func (r *Runner) RunGeneticMapping(system System, testRun *TestRun, generations int) {
	r.RunMapping("NSGAIIMapping", system, NewGeneticMapper(generations, FullEvaluation{}, r.rng.ForSubsystem(SubsystemGenetic)), testRun)
}
