package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singleTaskSystem is the trivial scenario: one 1 MB producer on a CPU
// clocked at 2900 MHz x 4 byte words, its RAM attached at the same rate.
func singleTaskSystem() (*ComputationBasedSystem, *Task) {
	g := NewTaskGraph()
	task := g.AddNode(NodeSpec{Complexity: 1, Parallelizability: 100, SizeFunc: ConstantSize(1)})

	p := NewPlatform()
	cpu := p.CreateProcessor("CPU", false)
	cpu.SetProcessingRate(2900 * 4)
	ram := p.CreateMemory("Main_RAM")
	ram.SetDataRate(2900 * 4)
	cpu.SetDefaultMemory(ram)
	p.SetDataConnection(cpu, ram, 2900*4)

	return NewComputationBasedSystem(g, p), task
}

func TestComputeCost_Trivial(t *testing.T) {
	// GIVEN the single-task system
	sys, task := singleTaskSystem()
	mapping := NewMapping()
	mapping.MapToProcessor(task, sys.Platform().Processors()[0])

	// WHEN the makespan is computed
	eval := NewMappingEvaluator(sys, false)
	cost := eval.ComputeCost(mapping, SortingTaskFirstBFS)

	// THEN it is the time to move 1 MB at 11600 MB/s
	assert.InDelta(t, 1000.0/11600.0, cost, 1e-6)
}

func TestAllMappers_AgreeOnTrivialSystem(t *testing.T) {
	expected := 1000.0 / 11600.0

	mappers := map[string]func() Mapper{
		"greedy":         func() Mapper { return NewCPUMapper() },
		"singleNode":     func() Mapper { return NewSingleNodeDecompositionMapper(GreedyBase{}, EvaluateAll{}) },
		"seriesParallel": func() Mapper { return NewSeriesParallelDecompositionMapper(GreedyBase{}, EvaluateAll{}, true) },
		"snFirstFit": func() Mapper {
			return NewSingleNodeDecompositionMapper(GreedyBase{}, EvaluateThreshold{ThresholdTimesTen: 10})
		},
		"annealing": func() Mapper { return NewSimulatedAnnealingMapper(rand.New(rand.NewSource(1))) },
		"genetic":   func() Mapper { return NewGeneticMapper(5, FullEvaluation{}, rand.New(rand.NewSource(1))) },
		"heft":      func() Mapper { return NewHEFTMapper() },
		"peft":      func() Mapper { return NewPEFTMapper() },
		"pathBased": func() Mapper { return NewPathBasedMapper() },
	}

	for name, newMapper := range mappers {
		t.Run(name, func(t *testing.T) {
			sys, _ := singleTaskSystem()
			mapping := newMapper().TaskMapping(sys)
			require.False(t, mapping.Empty())

			eval := NewMappingEvaluator(sys, false)
			cost := eval.EvaluateWithCheck(mapping, 1)
			assert.InDelta(t, expected, cost, 1e-6)
		})
	}
}

func TestComputeCost_TwoTaskChain(t *testing.T) {
	// GIVEN a chain A(1 MB) -> B on the catalogue platform
	g := NewTaskGraph()
	a := g.AddNode(NodeSpec{Complexity: 1, Parallelizability: 100, SizeFunc: ConstantSize(1)})
	b := g.AddNode(NodeSpec{Complexity: 10, Parallelizability: 100, SizeFunc: DataSnk, Predecessors: []*Task{a}})

	platform := CreatePlatform(0)
	sys := NewComputationBasedSystem(g, platform)
	cpu := platform.ProcessorByLabel("CPU")
	gpu := platform.ProcessorByLabel("GPU")
	mainRAM := platform.MemoryByLabel("Main_RAM")
	gpuRAM := platform.MemoryByLabel("GPU_RAM")

	eval := NewMappingEvaluator(sys, false)

	// WHEN both run on the CPU
	mapping := NewMapping()
	mapping.MapToProcessor(a, cpu)
	mapping.MapToProcessor(b, cpu)

	// THEN the edge transfer is free (Main_RAM to itself) and the
	// makespan is the sum of both stage times
	expected := sys.ComputationTimeMs(a, cpu) + sys.TransactionTimeMs(a.OutputSize(), cpu, mainRAM) +
		sys.ComputationTimeMs(b, cpu) + sys.TransactionTimeMs(b.InputSize(), mainRAM, cpu)
	assert.InDelta(t, expected, eval.ComputeCost(mapping, SortingTaskFirstBFS), 1e-9)

	// WHEN B moves to the GPU
	mapping.MapToProcessor(b, gpu)

	// THEN the Main_RAM -> GPU_RAM transfer joins the critical path
	expectedGPU := sys.ComputationTimeMs(a, cpu) + sys.TransactionTimeMs(a.OutputSize(), cpu, mainRAM) +
		sys.TransactionTimeMs(a.OutputSize(), mainRAM, gpuRAM) +
		sys.ComputationTimeMs(b, gpu) + sys.TransactionTimeMs(b.InputSize(), gpuRAM, gpu)
	assert.InDelta(t, expectedGPU, eval.ComputeCost(mapping, SortingTaskFirstBFS), 1e-9)
}

// fanOutSystem builds src -> {t1,t2,t3} -> snk on a platform whose links
// are all infinitely fast, isolating computation times.
func fanOutSystem() (*ComputationBasedSystem, [5]*Task) {
	g := NewTaskGraph()
	src := g.AddNode(NodeSpec{Complexity: 1, Parallelizability: 100, SizeFunc: ConstantSize(1)})
	t1 := g.AddNode(NodeSpec{Complexity: 5, Predecessors: []*Task{src}})
	t2 := g.AddNode(NodeSpec{Complexity: 9, Predecessors: []*Task{src}})
	t3 := g.AddNode(NodeSpec{Complexity: 2, Predecessors: []*Task{src}})
	snk := g.AddNode(NodeSpec{Complexity: 1, Parallelizability: 100, SizeFunc: DataSnk, Predecessors: []*Task{t1, t2, t3}})

	p := NewPlatform()
	cpu := p.CreateProcessor("CPU", false)
	cpu.SetProcessingRate(11600)
	gpu := p.CreateProcessor("GPU", false)
	gpu.SetProcessingRate(4000)
	fpga := p.CreateProcessor("FPGA", false)
	fpga.SetProcessingRate(1600)

	mainRAM := p.CreateMemory("Main_RAM")
	gpuRAM := p.CreateMemory("GPU_RAM")
	fpgaRAM := p.CreateMemory("FPGA_RAM")
	cpu.SetDefaultMemory(mainRAM)
	gpu.SetDefaultMemory(gpuRAM)
	fpga.SetDefaultMemory(fpgaRAM)

	for _, proc := range p.Processors() {
		p.SetDataConnection(proc, proc.DefaultMemory(), InfRate())
	}
	p.SetDataConnection(mainRAM, gpuRAM, InfRate())
	p.SetDataConnection(mainRAM, fpgaRAM, InfRate())

	return NewComputationBasedSystem(g, p), [5]*Task{src, t1, t2, t3, snk}
}

func TestComputeCost_ParallelFanOut(t *testing.T) {
	// GIVEN three equal-fan tasks on three distinct processors
	sys, tasks := fanOutSystem()
	platform := sys.Platform()
	cpu := platform.ProcessorByLabel("CPU")
	gpu := platform.ProcessorByLabel("GPU")
	fpga := platform.ProcessorByLabel("FPGA")

	mapping := NewMapping()
	mapping.MapToProcessor(tasks[0], cpu)
	mapping.MapToProcessor(tasks[1], cpu)
	mapping.MapToProcessor(tasks[2], gpu)
	mapping.MapToProcessor(tasks[3], fpga)
	mapping.MapToProcessor(tasks[4], cpu)

	// WHEN the makespan is computed under the breadth-first order
	eval := NewMappingEvaluator(sys, false)
	cost := eval.ComputeCost(mapping, SortingBFS)

	// THEN the middle stages overlap: source + slowest stage + sink
	stageCPU := sys.ComputationTimeMs(tasks[1], cpu)
	stageGPU := sys.ComputationTimeMs(tasks[2], gpu)
	stageFPGA := sys.ComputationTimeMs(tasks[3], fpga)
	expected := sys.ComputationTimeMs(tasks[0], cpu) + max(stageCPU, stageGPU, stageFPGA) + sys.ComputationTimeMs(tasks[4], cpu)
	assert.InDelta(t, expected, cost, 1e-9)
	assert.Less(t, cost, sys.ComputationTimeMs(tasks[0], cpu)+stageCPU+stageGPU+stageFPGA+sys.ComputationTimeMs(tasks[4], cpu))
}

func TestComputeCost_SelfMemoryTransferIsFree(t *testing.T) {
	sys, task := singleTaskSystem()
	cpu := sys.Platform().Processors()[0]
	ram := sys.Platform().Memories()[0]

	mapping := NewMapping()
	mapping.Map(task, cpu, ram, ram)

	eval := NewMappingEvaluator(sys, true)
	cost := eval.ComputeCost(mapping, SortingTaskFirstBFS)

	// mem_in == mem_out: the edge-free single task pays only its own
	// input/output staging, and ram-to-ram movement is free.
	assert.InDelta(t, sys.TransactionTimeMs(task.OutputSize(), cpu, ram), cost, 1e-9)
	assert.Equal(t, Time(0), sys.TransactionTimeMs(5, ram, ram))
}

func TestComputeCost_NonNegativeAndMonotone(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	g := GenerateRandomSeriesParallelGraph(20, 1, rng)
	platform := CreatePlatform(1)
	sys := NewComputationBasedSystem(g, platform)

	mapping := NewCPUMapper().TaskMapping(sys)
	eval := NewMappingEvaluator(sys, false)
	cost := eval.ComputeCost(mapping, SortingTaskFirstBFS)
	require.GreaterOrEqual(t, cost, Time(0))

	// Increasing any task's complexity never decreases the cost.
	var inner *Task
	for _, task := range g.Tasks() {
		if len(task.EdgesIn()) > 0 && len(task.EdgesOut()) > 0 {
			inner = task
			break
		}
	}
	require.NotNil(t, inner)
	inner.complexity *= 4

	evalAfter := NewMappingEvaluator(sys, false)
	costAfter := evalAfter.ComputeCost(mapping, SortingTaskFirstBFS)
	assert.GreaterOrEqual(t, costAfter, cost)

	// Adding a dependency never decreases the cost.
	g.AddEdge(g.Sources()[0], g.Sinks()[0])
	evalEdge := NewMappingEvaluator(sys, false)
	assert.GreaterOrEqual(t, evalEdge.ComputeCost(mapping, SortingTaskFirstBFS), costAfter)
}

func TestEvaluateWithCheck_RejectsInvalidMappings(t *testing.T) {
	g := NewTaskGraph()
	a := g.AddNode(NodeSpec{SizeFunc: ConstantSize(1)})
	b := g.AddNode(NodeSpec{SizeFunc: DataSnk, Predecessors: []*Task{a}})

	platform := CreatePlatform(1)
	sys := NewComputationBasedSystem(g, platform)
	eval := NewMappingEvaluator(sys, false)

	// Incomplete: nothing mapped.
	assert.Equal(t, Time(-1), eval.EvaluateWithCheck(NewMapping(), 1))

	// Incompatible: a source task on the GPU.
	incompatible := NewMapping()
	incompatible.MapToProcessor(a, platform.ProcessorByLabel("GPU"))
	incompatible.MapToProcessor(b, platform.ProcessorByLabel("CPU"))
	assert.Equal(t, Time(-1), eval.EvaluateWithCheck(incompatible, 1))

	// Capacity: an oversized task on the bounded FPGA.
	huge := g.AddNode(NodeSpec{Complexity: 1, Predecessors: []*Task{a}, Successors: []*Task{b}})
	huge.SetArea(fpgaCapacity + 1)
	overCapacity := NewCPUMapper().TaskMapping(sys)
	overCapacity.MapToProcessor(huge, platform.ProcessorByLabel("FPGA"))
	assert.Equal(t, Time(-1), eval.EvaluateWithCheck(overCapacity, 1))
}

func TestEvaluateWithCheck_MultiRunReturnsMinimum(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	g := GenerateRandomSeriesParallelGraph(15, 1, rng)
	platform := CreatePlatform(0)
	sys := NewComputationBasedSystem(g, platform)

	mapping := NewCPUMapper().TaskMapping(sys)

	evalSingle := NewMappingEvaluator(sys, false)
	single := evalSingle.EvaluateWithCheck(mapping, 1)

	evalMulti := NewMappingEvaluator(sys, true)
	evalMulti.SetRand(rand.New(rand.NewSource(9)))
	multi := evalMulti.EvaluateWithCheck(mapping, 10)

	require.Greater(t, single, Time(0))
	assert.LessOrEqual(t, multi, single)
}
