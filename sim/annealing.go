package sim

import (
	"math"
	"math/rand"
)

// Temperature steers the acceptance probability of worsening moves.
type Temperature = float64

// SimulatedAnnealingMapper improves the greedy CPU baseline by repeated
// single-task random reassignment under a geometrically decaying
// temperature schedule. The final temperature is normalised from the
// per-task extremes of compatible computation time, so the schedule
// terminates regardless of graph size.
type SimulatedAnnealingMapper struct {
	annealingRuns            int
	iterationsPerTemperature int
	rng                      *rand.Rand
}

// NewSimulatedAnnealingMapper creates the mapper with the default
// schedule (10 runs, 50 iterations per temperature level).
func NewSimulatedAnnealingMapper(rng *rand.Rand) *SimulatedAnnealingMapper {
	return &SimulatedAnnealingMapper{
		annealingRuns:            10,
		iterationsPerTemperature: 50,
		rng:                      rng,
	}
}

func (m *SimulatedAnnealingMapper) TaskMapping(sys System) *Mapping {
	finalTemperature := m.normalizedFinalTemperature(sys)

	baseMapper := NewCPUMapper()
	var bestMapping *Mapping
	bestCost := InfTime()

	for run := 0; run < m.annealingRuns; run++ {
		currentBestMapping := baseMapper.TaskMapping(sys)

		eval := NewMappingEvaluator(sys, false)
		initialCost := eval.ComputeCost(currentBestMapping, SortingTaskFirstBFS)
		currentBestCost := initialCost

		temperature := Temperature(1)
		currMapping := NewMappingView(currentBestMapping)
		for temperature > finalTemperature {
			for i := 0; i < m.iterationsPerTemperature; i++ {
				newMapping := m.iterate(currMapping, sys)
				if ok, _ := eval.SatisfiesCapacityConstraint(newMapping); !ok {
					continue
				}
				currCost := eval.ComputeCost(newMapping, SortingTaskFirstBFS)
				if currCost < currentBestCost || m.accept(currCost-currentBestCost, initialCost, temperature) {
					newMapping.ApplyToView(currMapping)
					if currCost < currentBestCost {
						currMapping.Apply(currentBestMapping)
						currMapping.Reset(currentBestMapping)
						currentBestCost = currCost
					}
				}
			}
			temperature *= 0.95
		}

		if currentBestCost < bestCost {
			bestCost = currentBestCost
			bestMapping = currentBestMapping
		}
	}

	if bestMapping == nil {
		return NewMapping()
	}
	return bestMapping
}

// iterate proposes one move: a random task reassigned to a random other
// processor. Incompatible picks yield an empty delta.
func (m *SimulatedAnnealingMapper) iterate(currMapping *MappingView, sys System) *MappingView {
	tasks := sys.TaskGraph().Tasks()
	processors := sys.Platform().Processors()

	randTask := tasks[m.rng.Intn(len(tasks))]

	procIdx := m.rng.Intn(len(processors))
	randProc := processors[procIdx]

	if randProc == currMapping.Processor(randTask) && len(processors) > 1 {
		newIdx := m.rng.Intn(len(processors) - 1)
		if newIdx >= procIdx {
			newIdx++
		}
		randProc = processors[newIdx]
	}

	newMapping := NewMappingView(currMapping)
	if sys.IsCompatible(randTask, randProc) {
		newMapping.MapToProcessor(randTask, randProc)
	}
	return newMapping
}

func (m *SimulatedAnnealingMapper) accept(costDiff, initialCost Time, temperature Temperature) bool {
	acceptThreshold := math.Exp(-2 * costDiff / (temperature * initialCost))
	return m.rng.Float64() < acceptThreshold
}

// normalizedFinalTemperature derives the stopping temperature from the
// ratio of the cheapest to the most expensive compatible execution,
// per task and in total, with a safety margin factor of 2.
func (m *SimulatedAnnealingMapper) normalizedFinalTemperature(sys System) Temperature {
	const safetyMarginFactor = 2

	var totalMinCost, totalMaxCost Time

	minCost := math.MaxFloat64
	var maxCost Time

	processors := sys.Platform().Processors()
	for _, task := range sys.TaskGraph().Tasks() {
		currMinCost := math.MaxFloat64
		var currMaxCost Time
		for _, proc := range processors {
			if !sys.IsCompatible(task, proc) {
				continue
			}
			cost := sys.ComputationTimeMs(task, proc)
			if cost <= 0 || cost >= math.MaxFloat64 {
				continue
			}
			currMinCost = min(currMinCost, cost)
			currMaxCost = max(currMaxCost, cost)
		}

		if currMinCost == math.MaxFloat64 {
			continue
		}

		minCost = min(minCost, currMinCost)
		maxCost = max(maxCost, currMaxCost)

		totalMinCost += currMinCost
		totalMaxCost += currMaxCost
	}

	// Rearranged final/initial temperature ratio, numerically stable.
	return minCost / maxCost * totalMinCost / totalMaxCost * 1 / (safetyMarginFactor * safetyMarginFactor)
}
