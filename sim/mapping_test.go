package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoProcSystem() (*Platform, *Processor, *Processor) {
	p := NewPlatform()
	cpu := p.CreateProcessor("CPU", false)
	cpu.SetProcessingRate(1000)
	ram := p.CreateMemory("Main_RAM")
	cpu.SetDefaultMemory(ram)

	gpu := p.CreateProcessor("GPU", false)
	gpu.SetProcessingRate(500)
	gpuRAM := p.CreateMemory("GPU_RAM")
	gpu.SetDefaultMemory(gpuRAM)
	return p, cpu, gpu
}

func TestMappingView_WritesStayLocalUntilApply(t *testing.T) {
	// GIVEN a base mapping of one task to the CPU
	_, cpu, gpu := twoProcSystem()
	g := NewTaskGraph()
	task := g.AddNode(NodeSpec{})

	base := NewMapping()
	base.MapToProcessor(task, cpu)

	// WHEN a view remaps the task to the GPU
	view := NewMappingView(base)
	view.MapToProcessor(task, gpu)

	// THEN the view sees the delta, the base is untouched
	assert.Equal(t, gpu, view.Processor(task))
	assert.Equal(t, cpu, base.Processor(task))
	assert.Equal(t, gpu.DefaultMemory(), view.MemIn(task))

	// WHEN the view is applied
	view.Apply(base)

	// THEN the base carries the delta
	assert.Equal(t, gpu, base.Processor(task))
}

func TestMappingView_FallsThroughToBase(t *testing.T) {
	_, cpu, _ := twoProcSystem()
	g := NewTaskGraph()
	mapped := g.AddNode(NodeSpec{})
	unmapped := g.AddNode(NodeSpec{})

	base := NewMapping()
	base.MapToProcessor(mapped, cpu)

	view := NewMappingView(base)
	assert.True(t, view.Contains(mapped))
	assert.False(t, view.Contains(unmapped))
	assert.Equal(t, cpu, view.Processor(mapped))
	assert.Nil(t, view.Processor(unmapped))
}

func TestMappingView_ResetRebindsAndClears(t *testing.T) {
	_, cpu, gpu := twoProcSystem()
	g := NewTaskGraph()
	task := g.AddNode(NodeSpec{})

	first := NewMapping()
	first.MapToProcessor(task, cpu)
	second := NewMapping()
	second.MapToProcessor(task, gpu)

	view := NewMappingView(first)
	view.MapToProcessor(task, gpu)

	view.Reset(second)
	assert.Equal(t, gpu, view.Processor(task), "reads fall through to the new base")
	view.MapToProcessor(task, cpu)
	assert.Equal(t, cpu, view.Processor(task))
	assert.Equal(t, gpu, second.Processor(task))
}

func TestDevicePairsFromPlatform_DefaultMemoryFallback(t *testing.T) {
	p := NewPlatform()
	cpu := p.CreateProcessor("CPU", false)
	mainRAM := p.CreateMemory("Main_RAM")
	cpu.SetDefaultMemory(mainRAM)
	orphan := p.CreateProcessor("DSP", false)

	pairs := DevicePairsFromPlatform(p)
	require.Len(t, pairs, 2)
	assert.Equal(t, cpu, pairs[0].Proc())
	assert.Equal(t, mainRAM, pairs[0].Mem())
	assert.Equal(t, orphan, pairs[1].Proc())
	assert.Equal(t, mainRAM, pairs[1].Mem(), "processors without a default memory stage through Main_RAM")
}

func TestDevicePair_LabelLookup(t *testing.T) {
	platform := CreatePlatform(1)

	pair := NewDevicePair("FPGA", "FPGA_RAM", platform)
	require.True(t, pair.Valid())
	assert.Equal(t, "FPGA", pair.Proc().Label())

	missing := NewDevicePair("TPU", "TPU_RAM", platform)
	assert.False(t, missing.Valid())
}
