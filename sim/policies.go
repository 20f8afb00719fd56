package sim

import (
	"container/heap"
	"math"
)

// GreedyBase seeds improvement with the everything-on-CPU baseline.
type GreedyBase struct{}

func (GreedyBase) CreateBaseMapping(sys System) *Mapping {
	return NewCPUMapper().TaskMapping(sys)
}

// SPDBase seeds improvement with the result of an inner series-parallel
// decomposition mapper (subgraph moves only, no singletons).
type SPDBase struct {
	Eval EvaluationPolicy
}

func (b SPDBase) CreateBaseMapping(sys System) *Mapping {
	mapper := NewSeriesParallelDecompositionMapper(GreedyBase{}, b.Eval, false)
	return mapper.TaskMapping(sys)
}

// mapSubgraph retargets every compatible task of the subgraph onto the
// device pair, reporting whether anything changed.
func mapSubgraph(sys System, subgraph SubGraphSet, pair DevicePair, view *MappingView) bool {
	change := false
	for _, task := range subgraph {
		if view.Processor(task) != pair.Proc() && sys.IsCompatible(task, pair.Proc()) {
			view.Map(task, pair.Proc(), pair.Mem(), pair.Mem())
			change = true
		}
	}
	return change
}

func subgraphAreas(decomposition Decomposition) []Area {
	areas := make([]Area, len(decomposition))
	for i, subgraph := range decomposition {
		for _, task := range subgraph {
			areas[i] += task.AreaRequirement()
		}
	}
	return areas
}

func remainingAreas(devicePairs []DevicePair) map[*Processor]Area {
	remaining := make(map[*Processor]Area)
	for _, pair := range devicePairs {
		if pair.Proc().HasMaximumCapacity() {
			remaining[pair.Proc()] = pair.Proc().MaximumCapacity()
		}
	}
	return remaining
}

// EvaluateAll scores every (subgraph, device-pair) combination per pass,
// applies the single best improving move and repeats until no move
// improves the cost. Area consumed on a capacity-bounded processor is
// never returned: assignment is monotonic per processor.
type EvaluateAll struct{}

func (EvaluateAll) AdaptMapping(mapping *Mapping, sys System, devicePairs []DevicePair, decomposition Decomposition) {
	eval := NewMappingEvaluator(sys, false)
	cost := eval.ComputeCost(mapping, SortingTaskFirstBFS)

	areas := subgraphAreas(decomposition)
	remaining := remainingAreas(devicePairs)

	for {
		change := false
		var bestMapping *MappingView
		bestCost := cost
		var bestProc *Processor
		var bestArea Area

		for _, pair := range devicePairs {
			for si, subgraph := range decomposition {
				if pair.Proc().HasMaximumCapacity() && areas[si] >= remaining[pair.Proc()] {
					continue
				}
				view := NewMappingView(mapping)
				if !mapSubgraph(sys, subgraph, pair, view) {
					continue
				}
				currCost := eval.ComputeCost(view, SortingTaskFirstBFS)
				if currCost < bestCost {
					bestCost = currCost
					bestMapping = view
					bestProc = pair.Proc()
					bestArea = areas[si]
					change = true
				}
			}
		}

		if !change {
			return
		}

		bestMapping.Apply(mapping)
		cost = bestCost

		if bestProc.HasMaximumCapacity() {
			// One-way assignment, area is never freed once committed.
			remaining[bestProc] -= bestArea
		}
	}
}

// staleGain marks a queue element whose last evaluation failed the
// capacity check.
const staleGain = math.SmallestNonzeroFloat64

type thresholdElement struct {
	timeDiff Time
	pair     int
	subgraph int
}

// thresholdQueue is a max-heap over the improvement recorded when the
// element was last evaluated.
type thresholdQueue []thresholdElement

func (q thresholdQueue) Len() int           { return len(q) }
func (q thresholdQueue) Less(i, j int) bool { return q[i].timeDiff > q[j].timeDiff }
func (q thresholdQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *thresholdQueue) Push(x any)        { *q = append(*q, x.(thresholdElement)) }
func (q *thresholdQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// EvaluateThreshold scores all combinations once into a priority queue,
// then repeatedly re-evaluates the most promising candidates against the
// current mapping, stopping a scan once the remaining queued gains cannot
// plausibly beat the best one found. ThresholdTimesTen = 10 yields
// first-fit behaviour; higher values approach exhaustive search.
type EvaluateThreshold struct {
	ThresholdTimesTen int
}

func (p EvaluateThreshold) AdaptMapping(mapping *Mapping, sys System, devicePairs []DevicePair, decomposition Decomposition) {
	eval := NewMappingEvaluator(sys, false)
	cost := eval.ComputeCost(mapping, SortingTaskFirstBFS)

	effectQueue := &thresholdQueue{}
	areas := subgraphAreas(decomposition)

	var bestMapping *MappingView
	var bestProc *Processor
	var bestArea Area
	bestCost := cost

	for si, subgraph := range decomposition {
		for pi, pair := range devicePairs {
			if pair.Proc().HasMaximumCapacity() && areas[si] > pair.Proc().MaximumCapacity() {
				continue
			}
			view := NewMappingView(mapping)
			if mapSubgraph(sys, subgraph, pair, view) {
				currCost := eval.ComputeCost(view, SortingTaskFirstBFS)
				costDiff := cost - currCost

				if currCost < bestCost {
					bestCost = currCost
					bestMapping = view
					bestProc = pair.Proc()
					bestArea = areas[si]
				}
				heap.Push(effectQueue, thresholdElement{timeDiff: costDiff, pair: pi, subgraph: si})
			} else {
				heap.Push(effectQueue, thresholdElement{timeDiff: 0, pair: pi, subgraph: si})
			}
		}
	}

	remaining := remainingAreas(devicePairs)

	var updatedElements []thresholdElement
	for bestCost < cost {
		bestMapping.Apply(mapping)
		cost = bestCost
		if bestProc.HasMaximumCapacity() {
			// One-way assignment, area is never freed once committed.
			remaining[bestProc] -= bestArea
		}

		for _, element := range updatedElements {
			heap.Push(effectQueue, element)
		}
		updatedElements = updatedElements[:0]

		for effectQueue.Len() > 0 {
			element := (*effectQueue)[0]

			if cost != bestCost && (element.timeDiff == staleGain ||
				cost-bestCost > Time(p.ThresholdTimesTen)/10*element.timeDiff) {
				break
			}

			costDiff := Time(staleGain)
			pair := devicePairs[element.pair]
			if !pair.Proc().HasMaximumCapacity() || areas[element.subgraph] <= remaining[pair.Proc()] {
				view := NewMappingView(mapping)
				mapSubgraph(sys, decomposition[element.subgraph], pair, view)

				currCost := eval.ComputeCost(view, SortingTaskFirstBFS)
				costDiff = cost - currCost

				if currCost < bestCost {
					bestCost = currCost
					bestMapping = view
					bestProc = pair.Proc()
					bestArea = areas[element.subgraph]
				}
			}

			updatedElements = append(updatedElements, thresholdElement{timeDiff: costDiff, pair: element.pair, subgraph: element.subgraph})
			heap.Pop(effectQueue)
		}
	}
}
