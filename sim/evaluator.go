package sim

import (
	"math/rand"

	"github.com/sirupsen/logrus"
)

// SortingMode selects the linearisation the evaluator simulates.
type SortingMode int

const (
	SortingTaskFirstBFS SortingMode = iota
	SortingBFS
	SortingRandom
	SortingMappingBased
)

// TimeRange is one logged interval of the simulated schedule.
type TimeRange struct {
	StartTimeMs Time
	EndTimeMs   Time
}

// EvaluationLog records the simulated start and end of every task and
// edge transfer; it is consumed only by the renderers.
type EvaluationLog struct {
	computationTimes map[*Task]TimeRange
	transferTimes    map[*Edge]TimeRange
}

// NewEvaluationLog creates an empty log.
func NewEvaluationLog() *EvaluationLog {
	return &EvaluationLog{
		computationTimes: make(map[*Task]TimeRange),
		transferTimes:    make(map[*Edge]TimeRange),
	}
}

func (l *EvaluationLog) LogTask(task *Task, startMs, endMs Time) {
	l.computationTimes[task] = TimeRange{StartTimeMs: startMs, EndTimeMs: endMs}
}

func (l *EvaluationLog) LogEdge(edge *Edge, startMs, endMs Time) {
	l.transferTimes[edge] = TimeRange{StartTimeMs: startMs, EndTimeMs: endMs}
}

func (l *EvaluationLog) ContainsTask(task *Task) bool {
	_, ok := l.computationTimes[task]
	return ok
}

func (l *EvaluationLog) ContainsEdge(edge *Edge) bool {
	_, ok := l.transferTimes[edge]
	return ok
}

// TaskRange returns the logged interval of a task, (-1,-1) when absent.
func (l *EvaluationLog) TaskRange(task *Task) TimeRange {
	if r, ok := l.computationTimes[task]; ok {
		return r
	}
	return TimeRange{StartTimeMs: -1, EndTimeMs: -1}
}

// EdgeRange returns the logged interval of an edge, (-1,-1) when absent.
func (l *EvaluationLog) EdgeRange(edge *Edge) TimeRange {
	if r, ok := l.transferTimes[edge]; ok {
		return r
	}
	return TimeRange{StartTimeMs: -1, EndTimeMs: -1}
}

// MappingEvaluator predicts the makespan of a mapping by simulating a
// non-preemptive schedule over a topologically sorted element stream.
// One evaluator per mapping attempt is cheap; the cached sorting is the
// only state shared between calls.
type MappingEvaluator struct {
	sys        System
	log        *EvaluationLog
	logResults bool

	cachedSorting *TopologicalSorting
	cachedMode    SortingMode

	rng *rand.Rand
}

// NewMappingEvaluator creates an evaluator. With logResults, every
// simulation records per-task and per-edge intervals into Log.
func NewMappingEvaluator(sys System, logResults bool) *MappingEvaluator {
	return &MappingEvaluator{
		sys:        sys,
		log:        NewEvaluationLog(),
		logResults: logResults,
		cachedMode: SortingTaskFirstBFS,
	}
}

// SetRand injects the RNG used for random-order re-evaluation runs.
func (e *MappingEvaluator) SetRand(rng *rand.Rand) { e.rng = rng }

func (e *MappingEvaluator) Log() *EvaluationLog { return e.log }
func (e *MappingEvaluator) Sys() System         { return e.sys }

// IsCompatible verifies every task sits on a device it may run on,
// returning the first offender.
func (e *MappingEvaluator) IsCompatible(mapping MappingReader) (bool, *Task) {
	for _, task := range e.sys.TaskGraph().Tasks() {
		if !e.sys.IsCompatible(task, mapping.Processor(task)) {
			return false, task
		}
	}
	return true, nil
}

// IsComplete verifies every task carries a full device triplet.
func (e *MappingEvaluator) IsComplete(mapping MappingReader) (bool, *Task) {
	for _, task := range e.sys.TaskGraph().Tasks() {
		if mapping.Processor(task) == nil || mapping.MemIn(task) == nil || mapping.MemOut(task) == nil {
			return false, task
		}
	}
	return true, nil
}

// SatisfiesCapacityConstraint verifies no area-bounded processor is
// oversubscribed, returning the first offender.
func (e *MappingEvaluator) SatisfiesCapacityConstraint(mapping MappingReader) (bool, *Processor) {
	for _, proc := range e.sys.Platform().Processors() {
		if !proc.HasMaximumCapacity() {
			continue
		}
		capacity := proc.MaximumCapacity()
		for _, task := range e.sys.TaskGraph().Tasks() {
			if mapping.Processor(task) == proc {
				capacity -= task.AreaRequirement()
			}
		}
		if capacity < 0 {
			return false, proc
		}
	}
	return true, nil
}

func (e *MappingEvaluator) setCache(sorting *TopologicalSorting, mode SortingMode) {
	e.cachedSorting = NewCachedSorting(sorting)
	e.cachedMode = mode
}

// ComputeCost simulates the mapping under the given sorting mode. When
// any task sits on a streaming processor, the compression pass rewrites
// the ordering before simulation.
func (e *MappingEvaluator) ComputeCost(mapping MappingReader, mode SortingMode) Time {
	var sorting *TopologicalSorting

	if e.cachedSorting != nil && e.cachedMode == mode {
		sorting = NewCachedSorting(e.cachedSorting)
	} else {
		switch mode {
		case SortingRandom:
			rng := e.rng
			if rng == nil {
				rng = rand.New(rand.NewSource(0))
				e.rng = rng
			}
			sorting = NewRandomSorting(e.sys.TaskGraph(), true, rng)
		case SortingTaskFirstBFS:
			sorting = NewTaskFirstBFSSorting(e.sys.TaskGraph(), true)
			e.setCache(sorting, mode)
		case SortingMappingBased:
			sorting = NewMappingBasedSorting(e.sys, mapping, true)
		default:
			sorting = NewBFSSorting(e.sys.TaskGraph(), true)
			e.setCache(sorting, mode)
		}
	}

	for _, proc := range e.sys.Platform().Processors() {
		if !proc.IsStreamingDevice() {
			continue
		}
		for _, task := range e.sys.TaskGraph().Tasks() {
			if mapping.Processor(task) == proc {
				sorting.CompressStreamableSubtrees(mapping, proc)
				break
			}
		}
	}

	return e.ComputeCostWithSorting(mapping, sorting)
}

// ComputeCostWithSorting simulates the mapping over one concrete
// linearisation and returns the predicted makespan.
func (e *MappingEvaluator) ComputeCostWithSorting(mapping MappingReader, sorting *TopologicalSorting) Time {
	time := make(map[Device]Time)
	for _, proc := range e.sys.Platform().Processors() {
		time[proc] = 0
	}
	for _, mem := range e.sys.Platform().Memories() {
		time[mem] = 0
	}

	for _, element := range sorting.SortedElements() {
		if task := element.Task(); task != nil {
			proc := mapping.Processor(task)
			memIn := mapping.MemIn(task)
			memOut := mapping.MemOut(task)

			tStart := max(time[proc], time[memIn], time[memOut])
			tEnd := tStart +
				e.sys.ComputationTimeMs(task, proc) +
				e.sys.TransactionTimeMs(task.InputSize(), memIn, proc) +
				e.sys.TransactionTimeMs(task.OutputSize(), proc, memOut)
			time[proc] = tEnd
			time[memIn] = tEnd
			time[memOut] = tEnd

			if e.logResults {
				e.log.LogTask(task, tStart, tEnd)
			}
		}

		if edge := element.Edge(); edge != nil {
			memOut := mapping.MemOut(edge.Src())
			memIn := mapping.MemIn(edge.Snk())

			tStart := max(time[memOut], time[memIn])
			tEnd := tStart + e.sys.TransactionTimeMs(edge.Src().OutputSize(), memOut, memIn)
			time[memOut] = tEnd
			time[memIn] = tEnd

			if e.logResults {
				e.log.LogEdge(edge, tStart, tEnd)
			}
		}

		if sub := element.SubGraph(); sub != nil {
			var tStart Time
			for device := range sub.Devices() {
				tStart = max(tStart, time[device])
			}

			// The pipeline runs at the pace of its slowest stage.
			var executionTime Time
			for _, task := range sub.Tasks() {
				executionTime = max(executionTime, e.sys.ComputationTimeMs(task, mapping.Processor(task)))
				executionTime = max(executionTime, e.sys.TransactionTimeMs(task.InputSize(), mapping.MemIn(task), mapping.Processor(task)))
				executionTime = max(executionTime, e.sys.TransactionTimeMs(task.OutputSize(), mapping.Processor(task), mapping.MemOut(task)))
			}
			for _, edge := range sub.Edges() {
				executionTime = max(executionTime, e.sys.TransactionTimeMs(edge.Src().OutputSize(), mapping.MemOut(edge.Src()), mapping.MemIn(edge.Snk())))
			}

			tEnd := tStart + executionTime
			for device := range sub.Devices() {
				time[device] = tEnd
			}

			if e.logResults {
				for _, task := range sub.Tasks() {
					e.log.LogTask(task, tStart, tEnd)
				}
				for _, edge := range sub.Edges() {
					e.log.LogEdge(edge, tStart, tEnd)
				}
			}
		}
	}

	var result Time
	for _, t := range time {
		result = max(result, t)
	}
	return result
}

// EvaluateWithCheck validates the mapping, then simulates it up to runs
// times — once with the default ordering, the rest with random orderings —
// and returns the minimum cost, keeping the matching log. Returns -1 when
// the mapping fails validation.
func (e *MappingEvaluator) EvaluateWithCheck(mapping MappingReader, runs int) Time {
	if ok, task := e.IsComplete(mapping); !ok {
		logrus.Errorf("Mapping incomplete. Missing value for task %s", task.Label())
		return -1
	}
	if ok, task := e.IsCompatible(mapping); !ok {
		logrus.Errorf("Mapping invalid. Incompatible processor for task %s", task.Label())
		return -1
	}
	if ok, proc := e.SatisfiesCapacityConstraint(mapping); !ok {
		logrus.Errorf("Mapping invalid. Not enough capacity for %s", proc.Label())
		return -1
	}

	if runs > 1 {
		minCost := e.ComputeCost(mapping, SortingTaskFirstBFS)
		minLog := e.log

		for i := 1; i < runs; i++ {
			e.log = NewEvaluationLog()
			cost := e.ComputeCost(mapping, SortingRandom)
			if cost < minCost {
				minCost = cost
				minLog = e.log
			}
		}
		e.log = minLog
		return minCost
	}

	return e.ComputeCost(mapping, SortingTaskFirstBFS)
}
