package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamableChain builds src -> t1 -> t2 -> t3 -> t4 -> snk where the
// interior tasks are streamable, on the CGF catalogue platform.
func streamableChain() (*ComputationBasedSystem, []*Task) {
	g := NewTaskGraph()
	src := g.AddNode(NodeSpec{Complexity: 1, Parallelizability: 100, SizeFunc: ConstantSize(1)})
	prev := src
	tasks := []*Task{src}
	for i := 0; i < 4; i++ {
		task := g.AddNode(NodeSpec{Complexity: ScaleFactor(i + 1), Streamability: 4, SizeFunc: MaxPropagation, Predecessors: []*Task{prev}})
		tasks = append(tasks, task)
		prev = task
	}
	snk := g.AddNode(NodeSpec{Complexity: 1, Parallelizability: 100, SizeFunc: DataSnk, Predecessors: []*Task{prev}})
	tasks = append(tasks, snk)

	return NewComputationBasedSystem(g, CreatePlatform(1)), tasks
}

// fpgaChainMapping pins the interior tasks to the FPGA and the boundary
// tasks to the CPU.
func fpgaChainMapping(sys *ComputationBasedSystem, tasks []*Task) *Mapping {
	cpu := sys.Platform().ProcessorByLabel("CPU")
	fpga := sys.Platform().ProcessorByLabel("FPGA")

	mapping := NewMapping()
	mapping.MapToProcessor(tasks[0], cpu)
	for _, task := range tasks[1 : len(tasks)-1] {
		mapping.MapToProcessor(task, fpga)
	}
	mapping.MapToProcessor(tasks[len(tasks)-1], cpu)
	return mapping
}

func TestCompress_LinearStreamableChainCollapsesToOneSubGraph(t *testing.T) {
	// GIVEN four streamable tasks pipelined on the FPGA
	sys, tasks := streamableChain()
	mapping := fpgaChainMapping(sys, tasks)
	fpga := sys.Platform().ProcessorByLabel("FPGA")

	sorting := NewTaskFirstBFSSorting(sys.TaskGraph(), true)
	before := len(sorting.SortedElements())

	// WHEN the compression pass runs
	sorting.CompressStreamableSubtrees(mapping, fpga)

	// THEN exactly one SubGraph replaces the pipeline
	require.Len(t, sorting.Subgraphs(), 1)
	sub := sorting.Subgraphs()[0]
	assert.ElementsMatch(t, tasks[1:5], sub.Tasks())
	assert.Len(t, sub.Edges(), 3)
	assert.Less(t, len(sorting.SortedElements()), before)

	// Every compressed task sits on the streaming processor.
	for _, task := range sub.Tasks() {
		assert.Equal(t, fpga, mapping.Processor(task))
	}

	// The rewritten ordering still respects dependencies: the SubGraph
	// sits between the source side and the sink side.
	var subIdx, srcIdx, snkIdx int
	for i, elem := range sorting.SortedElements() {
		switch {
		case elem.SubGraph() != nil:
			subIdx = i
		case elem.Task() == tasks[0]:
			srcIdx = i
		case elem.Task() == tasks[len(tasks)-1]:
			snkIdx = i
		}
	}
	assert.Less(t, srcIdx, subIdx)
	assert.Less(t, subIdx, snkIdx)
}

func TestCompress_StreamingMakespanIsSlowestStage(t *testing.T) {
	// GIVEN the compressed FPGA pipeline
	sys, tasks := streamableChain()
	mapping := fpgaChainMapping(sys, tasks)
	platform := sys.Platform()
	cpu := platform.ProcessorByLabel("CPU")
	fpga := platform.ProcessorByLabel("FPGA")
	mainRAM := platform.MemoryByLabel("Main_RAM")
	fpgaRAM := platform.MemoryByLabel("FPGA_RAM")

	// WHEN the cost is computed (compression runs implicitly)
	eval := NewMappingEvaluator(sys, false)
	cost := eval.ComputeCost(mapping, SortingTaskFirstBFS)

	// THEN the pipeline contributes its slowest stage, not the stage sum
	var slowestStage Time
	for _, task := range tasks[1:5] {
		slowestStage = max(slowestStage, sys.ComputationTimeMs(task, fpga))
		slowestStage = max(slowestStage, sys.TransactionTimeMs(task.InputSize(), fpgaRAM, fpga))
		slowestStage = max(slowestStage, sys.TransactionTimeMs(task.OutputSize(), fpga, fpgaRAM))
	}
	// Internal edges stage through the same memory and are free.

	src, snk := tasks[0], tasks[len(tasks)-1]
	expected := sys.ComputationTimeMs(src, cpu) + sys.TransactionTimeMs(src.OutputSize(), cpu, mainRAM) +
		sys.TransactionTimeMs(src.OutputSize(), mainRAM, fpgaRAM) +
		slowestStage +
		sys.TransactionTimeMs(tasks[4].OutputSize(), fpgaRAM, mainRAM) +
		sys.ComputationTimeMs(snk, cpu) + sys.TransactionTimeMs(snk.InputSize(), mainRAM, cpu)

	assert.InDelta(t, expected, cost, 1e-9)

	var stageSum Time
	for _, task := range tasks[1:5] {
		stageSum += sys.ComputationTimeMs(task, fpga)
	}
	assert.Less(t, cost, sys.ComputationTimeMs(src, cpu)+stageSum+sys.ComputationTimeMs(snk, cpu)+
		sys.TransactionTimeMs(src.OutputSize(), mainRAM, fpgaRAM)+sys.TransactionTimeMs(tasks[4].OutputSize(), fpgaRAM, mainRAM))
}

func TestCompress_NonStreamableTaskStaysOutside(t *testing.T) {
	// GIVEN a chain whose middle task is not streamable
	g := NewTaskGraph()
	src := g.AddNode(NodeSpec{SizeFunc: ConstantSize(1)})
	s1 := g.AddNode(NodeSpec{Streamability: 4, SizeFunc: MaxPropagation, Predecessors: []*Task{src}})
	blocker := g.AddNode(NodeSpec{SizeFunc: MaxPropagation, Predecessors: []*Task{s1}})
	s2 := g.AddNode(NodeSpec{Streamability: 4, SizeFunc: MaxPropagation, Predecessors: []*Task{blocker}})
	g.AddNode(NodeSpec{SizeFunc: DataSnk, Predecessors: []*Task{s2}})

	sys := NewComputationBasedSystem(g, CreatePlatform(1))
	cpu := sys.Platform().ProcessorByLabel("CPU")
	fpga := sys.Platform().ProcessorByLabel("FPGA")

	mapping := NewCPUMapper().TaskMapping(sys)
	mapping.MapToProcessor(s1, fpga)
	mapping.MapToProcessor(blocker, fpga)
	mapping.MapToProcessor(s2, fpga)
	mapping.MapToProcessor(src, cpu)

	sorting := NewTaskFirstBFSSorting(g, true)
	sorting.CompressStreamableSubtrees(mapping, fpga)

	// THEN no subgraph contains the non-streamable task
	for _, sub := range sorting.Subgraphs() {
		for _, task := range sub.Tasks() {
			assert.NotEqual(t, blocker, task)
			assert.True(t, task.IsStreamable())
		}
	}
}
