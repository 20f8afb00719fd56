package sim

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKernel_FullyParallel(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, PrepareFiles())

	name, err := GenerateKernel(5, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, "dummy_5_100_2", name)

	data, err := os.ReadFile("export/kernels/dummy_5_100_2.cl")
	require.NoError(t, err)
	kernel := string(data)

	assert.Contains(t, kernel, "__kernel void dummy_5_100_2(")
	// Two inputs produce two parameters and two accumulation steps.
	assert.Contains(t, kernel, "__global unsigned int const* a")
	assert.Contains(t, kernel, "__global unsigned int const* b")
	assert.Contains(t, kernel, "result = (result + va) % 47;")
	assert.Contains(t, kernel, "result = (result + vb) % 47;")
	// Fully parallel kernels disable the serial branch.
	assert.Contains(t, kernel, "if(false && get_global_id(0) == 0)")
	assert.Contains(t, kernel, "i < 500;")
	assert.Contains(t, kernel, "i < 0;")
}

func TestGenerateKernel_ExistingFileIsKept(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, PrepareFiles())

	require.NoError(t, os.WriteFile("export/kernels/dummy_1_0_1.cl", []byte("sentinel"), 0o644))

	name, err := GenerateKernel(1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "dummy_1_0_1", name)

	data, err := os.ReadFile("export/kernels/dummy_1_0_1.cl")
	require.NoError(t, err)
	assert.Equal(t, "sentinel", string(data))
}

func TestExportGraph_Format(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, PrepareFiles())

	g := NewTaskGraph()
	src := g.AddNode(NodeSpec{Complexity: 2, Parallelizability: 50, SizeFunc: ConstantSize(1)})
	snk := g.AddNode(NodeSpec{Complexity: 3, SizeFunc: DataSnk, Predecessors: []*Task{src}})

	platform := CreatePlatform(0)
	sys := NewComputationBasedSystem(g, platform)
	mapping := NewCPUMapper().TaskMapping(sys)

	require.NoError(t, ExportGraph(g, mapping, "TestMapping"))

	data, err := os.ReadFile("export/TestMapping.graph")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "262144", lines[0])

	srcFields := strings.Split(lines[1], ",")
	require.Len(t, srcFields, 5)
	assert.Equal(t, src.Label(), srcFields[0])
	assert.Equal(t, "dummy_2_50_1", srcFields[1])
	assert.Equal(t, "CPU", srcFields[2])
	assert.Equal(t, "0", srcFields[3])
	assert.Equal(t, snk.Label(), srcFields[4])

	snkFields := strings.Split(lines[2], ",")
	require.Len(t, snkFields, 4)
	assert.Equal(t, snk.Label(), snkFields[0])
}

func TestDrawGraph_WritesGraphvizFile(t *testing.T) {
	chdirTemp(t)

	g := NewTaskGraph()
	src := g.AddNode(NodeSpec{SizeFunc: ConstantSize(1)})
	g.AddNode(NodeSpec{SizeFunc: DataSnk, Predecessors: []*Task{src}})

	platform := CreatePlatform(0)
	sys := NewComputationBasedSystem(g, platform)
	mapping := NewCPUMapper().TaskMapping(sys)

	eval := NewMappingEvaluator(sys, true)
	eval.ComputeCost(mapping, SortingTaskFirstBFS)

	DrawGraph(g, mapping, "graph_dump", eval.Log())

	data, err := os.ReadFile("results/graph_dump.gv")
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "digraph G {"))
	assert.Contains(t, content, "CPU")
	assert.Contains(t, content, "0->1")
}

func TestDrawHardwareGraph_ListsDevicesAndLinks(t *testing.T) {
	chdirTemp(t)

	DrawHardwareGraph(CreatePlatform(1), "hardware")

	data, err := os.ReadFile("results/hardware.gv")
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "graph G {"))
	for _, label := range []string{"CPU", "GPU", "FPGA", "Main_RAM", "GPU_RAM", "FPGA_RAM"} {
		assert.Contains(t, content, label)
	}
	assert.Contains(t, content, "--")
}
