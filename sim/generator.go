package sim

import (
	"math"
	"math/rand"
)

// TaskPropertyProducer draws the computational characteristics of
// generated tasks: lognormal(2.0, 0.5) complexity and streamability,
// and parallelizability that is 100% half of the time and uniform
// otherwise.
type TaskPropertyProducer struct {
	rng *rand.Rand
}

// TaskProperties is one draw of generated task characteristics.
type TaskProperties struct {
	Complexity        ScaleFactor
	Parallelizability Percent
	Streamability     ScaleFactor
}

// NewTaskPropertyProducer derives its own generator from the given one.
func NewTaskPropertyProducer(rng *rand.Rand) *TaskPropertyProducer {
	return &TaskPropertyProducer{rng: rand.New(rand.NewSource(int64(rng.Intn(1000))))}
}

func (p *TaskPropertyProducer) lognormal(mu, sigma float64) float64 {
	return math.Exp(p.rng.NormFloat64()*sigma + mu)
}

// Properties draws one task characteristic triple.
func (p *TaskPropertyProducer) Properties() TaskProperties {
	parallelizability := Percent(100)
	if p.rng.Intn(2) != 0 {
		parallelizability = Percent(p.rng.Intn(101))
	}
	return TaskProperties{
		Complexity:        math.Ceil(p.lognormal(2.0, 0.5)),
		Parallelizability: parallelizability,
		Streamability:     math.Ceil(p.lognormal(2.0, 0.5)),
	}
}

// GenerateRandomSeriesParallelGraph grows a strictly series-parallel DAG
// of the given size by repeated series and parallel edge substitution,
// starting from a single source → sink edge feeding dataInMB.
func GenerateRandomSeriesParallelGraph(size int, dataInMB DataSize, rng *rand.Rand) *TaskGraph {
	g := NewTaskGraph()

	src := g.AddNode(NodeSpec{Complexity: 1, Parallelizability: 100, SizeFunc: ConstantSize(dataInMB)})
	g.AddNode(NodeSpec{Complexity: 1, Parallelizability: 100, SizeFunc: DataSnk, Predecessors: []*Task{src}})

	duplicateEdges := make(map[*Edge]int)
	tpprod := NewTaskPropertyProducer(rng)

	for i := 0; i < size-2; i++ {
		edges := g.Edges()

		for rng.Intn(3) < 2 {
			// Parallel operation.
			randEdge := edges[rng.Intn(len(edges))]
			duplicateEdges[randEdge]++
		}

		// Series operation.
		randEdge := edges[rng.Intn(len(edges))]

		properties := tpprod.Properties()
		g.AddNode(NodeSpec{
			Complexity:        properties.Complexity,
			Parallelizability: properties.Parallelizability,
			Streamability:     properties.Streamability,
			SizeFunc:          MaxPropagation,
			Predecessors:      []*Task{randEdge.Src()},
			Successors:        []*Task{randEdge.Snk()},
		})

		if duplicateEdges[randEdge] > 0 {
			duplicateEdges[randEdge]--
		} else {
			g.DeleteEdge(randEdge.Src(), randEdge.Snk())
		}
	}

	return g
}

// GenerateRandomAlmostSeriesParallelGraph relaxes a generated SP graph by
// inserting up to looseEdges extra forward edges over a random
// topological order. Insertion gives up after 10×looseEdges attempts in
// total and then returns the SP graph without any of the extra edges.
func GenerateRandomAlmostSeriesParallelGraph(size int, dataInMB DataSize, looseEdges int, rng *rand.Rand) *TaskGraph {
	g := GenerateRandomSeriesParallelGraph(size, dataInMB, rng)
	topsort := NewRandomSorting(g, false, rng)
	sortedElements := topsort.SortedElements()

	timeout := looseEdges * 10

	type edgePick struct {
		src *Task
		snk *Task
	}
	var newEdges []edgePick

	for i := 0; i < looseEdges; i++ {
		var src, snk *Task
		invalid := true
		for invalid {
			if timeout == 0 {
				// Stop if no further insertable edge can be found.
				return g
			}
			timeout--

			idx1 := rng.Intn(len(sortedElements))
			idx2 := rng.Intn(len(sortedElements))
			if idx1 == idx2 {
				continue
			}
			if idx1 > idx2 {
				idx1, idx2 = idx2, idx1
			}

			src = sortedElements[idx1].Task()
			snk = sortedElements[idx2].Task()

			invalid = false
			for _, edge := range src.EdgesOut() {
				if edge.Snk() == snk {
					// Edge already exists.
					invalid = true
					break
				}
			}
			if !invalid {
				for _, pick := range newEdges {
					if pick.src == src && pick.snk == snk {
						// Edge is already queued for insertion.
						invalid = true
						break
					}
				}
			}
		}

		newEdges = append(newEdges, edgePick{src: src, snk: snk})
	}

	for _, pick := range newEdges {
		g.AddEdge(pick.src, pick.snk)
	}

	return g
}
