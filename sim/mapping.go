package sim

// DeviceTriplet is the assignment target of one task: the processor that
// executes it and the memories staging its input and output.
type DeviceTriplet struct {
	Processor *Processor
	MemoryIn  *Memory
	MemoryOut *Memory
}

// MappingReader is the read surface shared by Mapping and MappingView.
type MappingReader interface {
	Contains(task *Task) bool
	Processor(task *Task) *Processor
	MemIn(task *Task) *Memory
	MemOut(task *Task) *Memory
}

// Mapping is a partial function Task → (processor, mem_in, mem_out).
type Mapping struct {
	assignments map[*Task]DeviceTriplet
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{assignments: make(map[*Task]DeviceTriplet)}
}

// Map assigns the full device triplet of a task.
func (m *Mapping) Map(task *Task, proc *Processor, memIn, memOut *Memory) {
	m.assignments[task] = DeviceTriplet{Processor: proc, MemoryIn: memIn, MemoryOut: memOut}
}

// MapToProcessor assigns a task to a processor with its default memory on
// both sides.
func (m *Mapping) MapToProcessor(task *Task, proc *Processor) {
	var mem *Memory
	if proc != nil {
		mem = proc.DefaultMemory()
	}
	m.Map(task, proc, mem, mem)
}

func (m *Mapping) Empty() bool { return len(m.assignments) == 0 }

func (m *Mapping) Contains(task *Task) bool {
	_, ok := m.assignments[task]
	return ok
}

func (m *Mapping) Processor(task *Task) *Processor { return m.assignments[task].Processor }
func (m *Mapping) MemIn(task *Task) *Memory        { return m.assignments[task].MemoryIn }
func (m *Mapping) MemOut(task *Task) *Memory       { return m.assignments[task].MemoryOut }

// MappingView overlays local deltas on a base mapping. Writes stay in the
// view; Apply merges them onto another mapping, Reset rebinds the view to
// a new base without reallocating the delta map.
type MappingView struct {
	deltas map[*Task]DeviceTriplet
	base   MappingReader
}

// NewMappingView creates an empty overlay over base.
func NewMappingView(base MappingReader) *MappingView {
	return &MappingView{deltas: make(map[*Task]DeviceTriplet), base: base}
}

func (v *MappingView) Map(task *Task, proc *Processor, memIn, memOut *Memory) {
	v.deltas[task] = DeviceTriplet{Processor: proc, MemoryIn: memIn, MemoryOut: memOut}
}

func (v *MappingView) MapToProcessor(task *Task, proc *Processor) {
	var mem *Memory
	if proc != nil {
		mem = proc.DefaultMemory()
	}
	v.Map(task, proc, mem, mem)
}

func (v *MappingView) Contains(task *Task) bool {
	if _, ok := v.deltas[task]; ok {
		return true
	}
	return v.base.Contains(task)
}

func (v *MappingView) Processor(task *Task) *Processor {
	if t, ok := v.deltas[task]; ok {
		return t.Processor
	}
	return v.base.Processor(task)
}

func (v *MappingView) MemIn(task *Task) *Memory {
	if t, ok := v.deltas[task]; ok {
		return t.MemoryIn
	}
	return v.base.MemIn(task)
}

func (v *MappingView) MemOut(task *Task) *Memory {
	if t, ok := v.deltas[task]; ok {
		return t.MemoryOut
	}
	return v.base.MemOut(task)
}

// Apply merges the deltas onto another mapping.
func (v *MappingView) Apply(other *Mapping) {
	for task, t := range v.deltas {
		other.Map(task, t.Processor, t.MemoryIn, t.MemoryOut)
	}
}

// ApplyToView merges the deltas onto another view.
func (v *MappingView) ApplyToView(other *MappingView) {
	for task, t := range v.deltas {
		other.Map(task, t.Processor, t.MemoryIn, t.MemoryOut)
	}
}

// Reset rebinds the view to a new base and drops the deltas.
func (v *MappingView) Reset(base MappingReader) {
	v.base = base
	clear(v.deltas)
}

// DevicePair binds a processor to the memory tasks stage through when
// mapped onto it.
type DevicePair struct {
	proc *Processor
	mem  *Memory
}

// NewDevicePair looks the devices up by label on the platform.
func NewDevicePair(procLabel, memLabel string, platform *Platform) DevicePair {
	return DevicePair{proc: platform.ProcessorByLabel(procLabel), mem: platform.MemoryByLabel(memLabel)}
}

func (d DevicePair) Valid() bool      { return d.proc != nil && d.mem != nil }
func (d DevicePair) Proc() *Processor { return d.proc }
func (d DevicePair) Mem() *Memory     { return d.mem }

// DevicePairsFromPlatform pairs every processor with its default memory,
// falling back to Main_RAM (or the first memory) for processors without
// one.
func DevicePairsFromPlatform(platform *Platform) []DevicePair {
	var pairs []DevicePair
	if len(platform.Memories()) == 0 {
		return pairs
	}

	mainRAM := platform.MemoryByLabel("Main_RAM")
	if mainRAM == nil {
		mainRAM = platform.Memories()[0]
	}

	for _, proc := range platform.Processors() {
		mem := proc.DefaultMemory()
		if mem == nil {
			mem = mainRAM
		}
		pairs = append(pairs, DevicePair{proc: proc, mem: mem})
	}
	return pairs
}
