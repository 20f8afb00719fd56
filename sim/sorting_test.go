package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond builds src -> {left, right} -> snk.
func diamond(t *testing.T) (*TaskGraph, [4]*Task) {
	t.Helper()
	g := NewTaskGraph()
	src := g.AddNode(NodeSpec{})
	left := g.AddNode(NodeSpec{Predecessors: []*Task{src}})
	right := g.AddNode(NodeSpec{Predecessors: []*Task{src}})
	snk := g.AddNode(NodeSpec{Predecessors: []*Task{left, right}})
	return g, [4]*Task{src, left, right, snk}
}

// assertTopologicalRespect checks that for every edge (u,v) both u and,
// when present, the edge itself precede v in the sorted stream.
func assertTopologicalRespect(t *testing.T, g *TaskGraph, sorting *TopologicalSorting) {
	t.Helper()

	position := make(map[any]int)
	for i, elem := range sorting.SortedElements() {
		position[elem.key()] = i
	}

	taskCount := 0
	for _, elem := range sorting.SortedElements() {
		if elem.Task() != nil {
			taskCount++
		}
	}
	require.Equal(t, len(g.Tasks()), taskCount, "every task appears exactly once")

	for _, edge := range g.Edges() {
		u, okU := position[edge.Src()]
		v, okV := position[edge.Snk()]
		require.True(t, okU && okV)
		assert.Less(t, u, v, "src before snk")

		if sorting.ContainsEdges() {
			e, okE := position[edge]
			require.True(t, okE, "edge present in edge-inserting sort")
			assert.LessOrEqual(t, u, e)
			assert.LessOrEqual(t, e, v)
		}
	}
}

func TestSortings_TopologicalRespect(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := GenerateRandomAlmostSeriesParallelGraph(40, 1, 5, rng)

	platform := CreatePlatform(1)
	sys := NewComputationBasedSystem(g, platform)
	mapping := NewCPUMapper().TaskMapping(sys)

	sortings := map[string]*TopologicalSorting{
		"bfs":              NewBFSSorting(g, true),
		"bfsNoEdges":       NewBFSSorting(g, false),
		"taskFirst":        NewTaskFirstBFSSorting(g, true),
		"taskFirstNoEdges": NewTaskFirstBFSSorting(g, false),
		"random":           NewRandomSorting(g, true, rng),
		"mappingBased":     NewMappingBasedSorting(sys, mapping, true),
	}

	for name, sorting := range sortings {
		t.Run(name, func(t *testing.T) {
			assertTopologicalRespect(t, g, sorting)
		})
	}
}

func TestTaskFirstBFS_EmitsIncomingEdgesDirectlyBeforeTask(t *testing.T) {
	g, tasks := diamond(t)
	sorting := NewTaskFirstBFSSorting(g, true)
	elements := sorting.SortedElements()

	// The sink is the last element, preceded immediately by its two
	// incoming edges.
	last := elements[len(elements)-1]
	require.Equal(t, tasks[3], last.Task())
	for i := 1; i <= 2; i++ {
		edge := elements[len(elements)-1-i].Edge()
		require.NotNil(t, edge)
		assert.Equal(t, tasks[3], edge.Snk())
	}
}

func TestRandomSorting_DeterministicForFixedSeed(t *testing.T) {
	g, _ := diamond(t)

	first := NewRandomSorting(g, true, rand.New(rand.NewSource(42)))
	second := NewRandomSorting(g, true, rand.New(rand.NewSource(42)))

	require.Equal(t, len(first.SortedElements()), len(second.SortedElements()))
	for i := range first.SortedElements() {
		assert.Equal(t, first.SortedElements()[i].key(), second.SortedElements()[i].key())
	}
}

func TestCachedSorting_ReproducesElements(t *testing.T) {
	g, _ := diamond(t)
	sorting := NewTaskFirstBFSSorting(g, true)
	cached := NewCachedSorting(sorting)

	require.Equal(t, len(sorting.SortedElements()), len(cached.SortedElements()))
	for i := range sorting.SortedElements() {
		assert.Equal(t, sorting.SortedElements()[i].key(), cached.SortedElements()[i].key())
	}
	assert.Equal(t, sorting.ContainsEdges(), cached.ContainsEdges())
}

func TestScheduleSorting_TasksFollowedByOutgoingEdges(t *testing.T) {
	g, tasks := diamond(t)
	_ = g

	sorting := NewScheduleSorting([]*Task{tasks[0], tasks[1], tasks[2], tasks[3]})
	elements := sorting.SortedElements()

	require.Equal(t, tasks[0], elements[0].Task())
	assert.NotNil(t, elements[1].Edge())
	assert.NotNil(t, elements[2].Edge())
	assert.Equal(t, tasks[0], elements[1].Edge().Src())
}

func TestMappingBasedSorting_CoversHeterogeneousMapping(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := GenerateRandomSeriesParallelGraph(20, 1, rng)
	platform := CreatePlatform(1)
	sys := NewComputationBasedSystem(g, platform)

	// Spread the interior tasks over all processors.
	mapping := NewCPUMapper().TaskMapping(sys)
	procs := platform.Processors()
	i := 0
	for _, task := range g.Tasks() {
		if len(task.EdgesIn()) > 0 && len(task.EdgesOut()) > 0 {
			mapping.MapToProcessor(task, procs[i%len(procs)])
			i++
		}
	}

	sorting := NewMappingBasedSorting(sys, mapping, true)
	assertTopologicalRespect(t, g, sorting)
}
