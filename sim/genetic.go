package sim

import (
	"math/rand"
	"sort"
)

// GeneticCostPolicy scores a candidate mapping. FullEvaluation runs the
// real simulator; SummedEvaluation is a cheap per-processor-load lower
// bound for large populations.
type GeneticCostPolicy interface {
	ComputeCost(mapping MappingReader, eval *MappingEvaluator) Time
}

// FullEvaluation scores candidates with the makespan simulator.
type FullEvaluation struct{}

func (FullEvaluation) ComputeCost(mapping MappingReader, eval *MappingEvaluator) Time {
	return eval.ComputeCost(mapping, SortingTaskFirstBFS)
}

// SummedEvaluation scores candidates by the largest per-processor sum of
// computation and incident transfer times, a lower-bound proxy for the
// makespan.
type SummedEvaluation struct{}

func (SummedEvaluation) ComputeCost(mapping MappingReader, eval *MappingEvaluator) Time {
	sys := eval.Sys()
	summedTime := make(map[*Processor]Time)
	for _, proc := range sys.Platform().Processors() {
		summedTime[proc] = 0
	}
	for _, task := range sys.TaskGraph().Tasks() {
		proc := mapping.Processor(task)
		summedTime[proc] += sys.ComputationTimeMs(task, proc)
	}
	for _, edge := range sys.TaskGraph().Edges() {
		inProc := mapping.Processor(edge.Src())
		outProc := mapping.Processor(edge.Snk())

		transferTime := sys.TransactionTimeMs(edge.Src().OutputSize(), inProc, outProc)
		summedTime[inProc] += transferTime
		summedTime[outProc] += transferTime
	}
	var maxTime Time
	for _, proc := range sys.Platform().Processors() {
		maxTime = max(maxTime, summedTime[proc])
	}
	return maxTime
}

const geneticPopulationSize = 100

type individual struct {
	mapping *Mapping
	cost    Time
}

// GeneticMapper is a scalar-cost genetic optimiser: binary-tournament
// selection, per-task mutation with probability 1/n, single-point
// crossover along the BFS task order, and repair of incompatible or
// over-capacity offspring. The population always contains the greedy
// baseline, so the result is never worse than it.
type GeneticMapper struct {
	generations int
	costPolicy  GeneticCostPolicy
	rng         *rand.Rand

	defaultProc *Processor
}

// NewGeneticMapper creates the mapper; costPolicy nil defaults to
// FullEvaluation.
func NewGeneticMapper(generations int, costPolicy GeneticCostPolicy, rng *rand.Rand) *GeneticMapper {
	if costPolicy == nil {
		costPolicy = FullEvaluation{}
	}
	return &GeneticMapper{generations: generations, costPolicy: costPolicy, rng: rng}
}

func (m *GeneticMapper) TaskMapping(sys System) *Mapping {
	m.defaultProc = sys.Platform().ProcessorByLabel("CPU")

	greedyMapping := NewCPUMapper().TaskMapping(sys)

	eval := NewMappingEvaluator(sys, false)
	population := make([]individual, 0, geneticPopulationSize*2)

	// Guaranteed to be at least as good as the base mapping.
	population = append(population, individual{mapping: greedyMapping, cost: m.costPolicy.ComputeCost(greedyMapping, eval)})
	for i := 1; i < geneticPopulationSize; i++ {
		population = append(population, m.createValidRandomMapping(eval))
	}

	sorting := NewBFSSorting(sys.TaskGraph(), false)
	for i := 0; i < m.generations; i++ {
		parentSelection := m.selectParents(population, geneticPopulationSize*2)
		m.mutate(parentSelection, sys)
		newMappings := m.crossover(parentSelection, sorting.SortedElements(), eval)
		population = append(population, newMappings...)
		sort.SliceStable(population, func(a, b int) bool { return population[a].cost < population[b].cost })
		population = population[:geneticPopulationSize]
	}

	return population[0].mapping
}

func (m *GeneticMapper) selectParents(population []individual, parentPopulationSize int) []*MappingView {
	parents := make([]*MappingView, 0, parentPopulationSize)
	for i := 0; i < parentPopulationSize; i++ {
		firstIdx := m.rng.Intn(len(population))
		secondIdx := m.rng.Intn(len(population))

		winner := secondIdx
		if population[firstIdx].cost < population[secondIdx].cost {
			winner = firstIdx
		}
		parents = append(parents, NewMappingView(population[winner].mapping))
	}
	return parents
}

func (m *GeneticMapper) mutate(parentSelection []*MappingView, sys System) {
	tasks := sys.TaskGraph().Tasks()
	processors := sys.Platform().Processors()
	for _, parent := range parentSelection {
		for _, task := range tasks {
			// Mutation probability of 1/n.
			if m.rng.Intn(len(tasks)) == 0 {
				parent.MapToProcessor(task, processors[m.rng.Intn(len(processors))])
			}
		}
	}
}

func (m *GeneticMapper) crossover(parentSelection []*MappingView, sortedTasks []GraphElement, eval *MappingEvaluator) []individual {
	var newMappings []individual

	for j := 1; j < len(parentSelection); j += 2 {
		firstParent := parentSelection[j-1]
		secondParent := parentSelection[j]

		var crossoverPoint int
		// 0.1 probability to not have a crossover.
		if m.rng.Intn(10) == 0 {
			crossoverPoint = m.rng.Intn(2) * len(sortedTasks)
		} else {
			crossoverPoint = m.rng.Intn(len(sortedTasks))
		}

		newMapping := NewMapping()
		for i, elem := range sortedTasks {
			task := elem.Task()
			if i < crossoverPoint {
				newMapping.MapToProcessor(task, firstParent.Processor(task))
			} else {
				newMapping.MapToProcessor(task, secondParent.Processor(task))
			}
		}

		newMappings = append(newMappings, m.evaluateAndRepair(newMapping, eval))
	}

	return newMappings
}

// evaluateAndRepair moves incompatibly placed tasks to the CPU, then
// randomly evicts tasks from over-capacity processors until every bound
// is met, and scores the result.
func (m *GeneticMapper) evaluateAndRepair(mapping *Mapping, eval *MappingEvaluator) individual {
	tasks := eval.Sys().TaskGraph().Tasks()
	for _, task := range tasks {
		if !eval.Sys().IsCompatible(task, mapping.Processor(task)) {
			mapping.MapToProcessor(task, m.defaultProc)
		}
	}

	for {
		ok, conflictingProc := eval.SatisfiesCapacityConstraint(mapping)
		if ok {
			break
		}

		var conflictingTasks []*Task
		var totalArea Area
		for _, task := range tasks {
			if mapping.Processor(task) == conflictingProc {
				totalArea += task.AreaRequirement()
				conflictingTasks = append(conflictingTasks, task)
			}
		}

		for totalArea > conflictingProc.MaximumCapacity() {
			swapIdx := m.rng.Intn(len(conflictingTasks))
			totalArea -= conflictingTasks[swapIdx].AreaRequirement()
			mapping.MapToProcessor(conflictingTasks[swapIdx], m.defaultProc)
			conflictingTasks[swapIdx] = conflictingTasks[len(conflictingTasks)-1]
			conflictingTasks = conflictingTasks[:len(conflictingTasks)-1]
		}
	}

	return individual{mapping: mapping, cost: m.costPolicy.ComputeCost(mapping, eval)}
}

func (m *GeneticMapper) createValidRandomMapping(eval *MappingEvaluator) individual {
	processors := eval.Sys().Platform().Processors()

	mapping := NewMapping()
	for _, task := range eval.Sys().TaskGraph().Tasks() {
		mapping.MapToProcessor(task, processors[m.rng.Intn(len(processors))])
	}

	return m.evaluateAndRepair(mapping, eval)
}
