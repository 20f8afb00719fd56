package sim

// SubGraphSet is the task set of one candidate move.
type SubGraphSet []*Task

// Decomposition enumerates the subgraphs an iterative mapper may move as
// a unit.
type Decomposition []SubGraphSet

// BaseMappingPolicy yields the initial complete mapping an evaluation
// policy improves on.
type BaseMappingPolicy interface {
	CreateBaseMapping(sys System) *Mapping
}

// EvaluationPolicy iteratively improves a mapping by committing
// cost-reducing (subgraph, device-pair) moves.
type EvaluationPolicy interface {
	AdaptMapping(mapping *Mapping, sys System, devicePairs []DevicePair, decomposition Decomposition)
}

// DecompositionMapper enumerates candidate moves over a decomposition of
// the task graph and delegates improvement to its policies.
type DecompositionMapper struct {
	decompose func(g *TaskGraph) Decomposition
	base      BaseMappingPolicy
	eval      EvaluationPolicy
}

func (m *DecompositionMapper) TaskMapping(sys System) *Mapping {
	devicePairs := DevicePairsFromPlatform(sys.Platform())
	decomposition := m.decompose(sys.TaskGraph())

	mapping := m.base.CreateBaseMapping(sys)
	m.eval.AdaptMapping(mapping, sys, devicePairs, decomposition)

	return mapping
}

// NewSingleNodeDecompositionMapper moves one task at a time.
func NewSingleNodeDecompositionMapper(base BaseMappingPolicy, eval EvaluationPolicy) *DecompositionMapper {
	return &DecompositionMapper{
		decompose: func(g *TaskGraph) Decomposition {
			decomposition := make(Decomposition, 0, len(g.Tasks()))
			for _, task := range g.Tasks() {
				decomposition = append(decomposition, SubGraphSet{task})
			}
			return decomposition
		},
		base: base,
		eval: eval,
	}
}

// NewSeriesParallelDecompositionMapper moves the task set of each inner
// SP-tree node as a unit; with mapSingleTasks every task is additionally
// available as a singleton move.
func NewSeriesParallelDecompositionMapper(base BaseMappingPolicy, eval EvaluationPolicy, mapSingleTasks bool) *DecompositionMapper {
	return &DecompositionMapper{
		decompose: func(g *TaskGraph) Decomposition {
			var decomposition Decomposition
			spdtree := NewSeriesParallelDecomposition(g)

			existing := make(map[uint64]struct{})
			for _, op := range spdtree.InnerNodes() {
				subgraphID, subgraph := subgraphFromOperation(op)
				if len(subgraph) > 1 {
					if _, ok := existing[subgraphID]; !ok {
						existing[subgraphID] = struct{}{}
						decomposition = append(decomposition, subgraph)
					}
				}
			}

			if mapSingleTasks {
				for _, task := range g.Tasks() {
					decomposition = append(decomposition, SubGraphSet{task})
				}
			}
			return decomposition
		},
		base: base,
		eval: eval,
	}
}

// subgraphFromOperation collects the interior task set of an SP-tree node
// together with an order-independent fingerprint used for deduplication.
func subgraphFromOperation(op *SPOperation) (uint64, SubGraphSet) {
	var subgraph SubGraphSet
	var subgraphID uint64

	add := func(task *Task) {
		if task == nil {
			return
		}
		subgraph = append(subgraph, task)
		subgraphID ^= task.guid * 0x9e3779b97f4a7c15
	}

	queue := []*SPOperation{op}

	if op.Type() == SPParallel {
		// Map outer tasks.
		add(op.Front())
		add(op.Back())
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		if curr.Type() == SPEdge {
			continue
		}

		// Map inner tasks.
		front := curr.Front()
		back := curr.Back()
		for _, inner := range curr.Elements() {
			if inner.Front() != front {
				add(inner.Front())
			}
			if inner.Back() != back {
				add(inner.Back())
			}
			queue = append(queue, inner)
		}
	}

	return subgraphID, subgraph
}
