package sim

// Device is the common surface of processors and memories.
type Device interface {
	Label() string
	IsStreamingDevice() bool
	DataMovementRateMBps() DataRate
}

// Processor executes tasks. Its serial and parallel rates determine the
// processing time of a task, see ProcessingTimeMs.
type Processor struct {
	label            string
	streamingAllowed bool

	serialRateMBps   DataRate
	parallelRateMBps DataRate
	capacity         Area
	defaultMemory    *Memory
}

func (p *Processor) Label() string                  { return p.label }
func (p *Processor) IsStreamingDevice() bool        { return p.streamingAllowed }
func (p *Processor) DataMovementRateMBps() DataRate { return p.parallelRateMBps }

// SetProcessingRate sets the serial rate, and the parallel rate when a
// second value is given.
func (p *Processor) SetProcessingRate(serialMBps DataRate, parallelMBps ...DataRate) {
	p.serialRateMBps = serialMBps
	p.parallelRateMBps = serialMBps
	if len(parallelMBps) > 0 {
		p.parallelRateMBps = parallelMBps[0]
	}
}

func (p *Processor) SetCapacity(capacity Area)    { p.capacity = capacity }
func (p *Processor) SetDefaultMemory(mem *Memory) { p.defaultMemory = mem }
func (p *Processor) DefaultMemory() *Memory       { return p.defaultMemory }

// HasMaximumCapacity reports whether the processor is area-bounded.
func (p *Processor) HasMaximumCapacity() bool { return p.capacity < InfArea() }
func (p *Processor) MaximumCapacity() Area    { return p.capacity }

// ProcessingTimeMs is the time to process taskSizeMB with the given
// parallelizable share. A processor without a serial rate never finishes.
func (p *Processor) ProcessingTimeMs(taskSizeMB DataSize, parallelizability Percent) Time {
	if p.serialRateMBps <= 0 {
		return InfTime()
	}
	return ((100-parallelizability)/p.serialRateMBps + parallelizability/p.parallelRateMBps) * 10 * taskSizeMB
}

// Memory stages task inputs and outputs.
type Memory struct {
	label            string
	streamingAllowed bool
	dataRateMBps     DataRate
}

func (m *Memory) Label() string                  { return m.label }
func (m *Memory) IsStreamingDevice() bool        { return m.streamingAllowed }
func (m *Memory) DataMovementRateMBps() DataRate { return m.dataRateMBps }

func (m *Memory) SetDataRate(rateMBps DataRate) { m.dataRateMBps = rateMBps }

// Platform owns processors and memories and the pairwise transfer-rate
// table. Unlisted device pairs cannot exchange data; a device reaches
// itself at infinite rate.
type Platform struct {
	processors []*Processor
	memories   []*Memory
	datarates  map[Device]map[Device]DataRate
}

// NewPlatform creates an empty platform.
func NewPlatform() *Platform {
	return &Platform{datarates: make(map[Device]map[Device]DataRate)}
}

func (p *Platform) Processors() []*Processor { return p.processors }
func (p *Platform) Memories() []*Memory      { return p.memories }

// CreateProcessor adds a processor. Streaming is off unless requested;
// streaming-capable processors execute pipelined regions.
func (p *Platform) CreateProcessor(label string, streamingAllowed bool) *Processor {
	proc := &Processor{label: label, streamingAllowed: streamingAllowed, capacity: InfArea()}
	p.processors = append(p.processors, proc)
	return proc
}

// CreateMemory adds a memory. Memories allow streaming by default.
func (p *Platform) CreateMemory(label string) *Memory {
	mem := &Memory{label: label, streamingAllowed: true}
	p.memories = append(p.memories, mem)
	return mem
}

// CreateMemoryNoStreaming adds a memory that cannot feed a pipeline.
func (p *Platform) CreateMemoryNoStreaming(label string) *Memory {
	mem := p.CreateMemory(label)
	mem.streamingAllowed = false
	return mem
}

// SetDataConnection registers a bidirectional link. Without an explicit
// rate, the slower endpoint limits the link.
func (p *Platform) SetDataConnection(dev1, dev2 Device, rateMBps ...DataRate) {
	rate := min(dev1.DataMovementRateMBps(), dev2.DataMovementRateMBps())
	if len(rateMBps) > 0 {
		rate = rateMBps[0]
	}
	p.SetDirectedConnection(dev1, dev2, rate)
	p.SetDirectedConnection(dev2, dev1, rate)
}

// SetDirectedConnection registers a one-way link, allowing asymmetric rates.
func (p *Platform) SetDirectedConnection(from, to Device, rateMBps DataRate) {
	if p.datarates[from] == nil {
		p.datarates[from] = make(map[Device]DataRate)
	}
	p.datarates[from][to] = rateMBps
}

// TransferRateMBps returns the directed rate between two devices. A device
// moves data to itself at infinite rate; unconnected pairs return 0.
func (p *Platform) TransferRateMBps(dev1, dev2 Device) DataRate {
	if dev1 == dev2 {
		return InfRate()
	}
	if second, ok := p.datarates[dev1]; ok {
		if rate, ok := second[dev2]; ok {
			return rate
		}
	}
	return 0
}

// deviceLabel reads a device label tolerating nil values, typed or not.
// Unmapped tasks surface as nil *Processor through Mapping getters.
func deviceLabel(d Device) string {
	switch dev := d.(type) {
	case *Processor:
		if dev != nil {
			return dev.label
		}
	case *Memory:
		if dev != nil {
			return dev.label
		}
	}
	return ""
}

// ProcessorByLabel returns the first processor with the given label, nil
// if none exists.
func (p *Platform) ProcessorByLabel(label string) *Processor {
	for _, proc := range p.processors {
		if proc.label == label {
			return proc
		}
	}
	return nil
}

// MemoryByLabel returns the first memory with the given label, nil if
// none exists.
func (p *Platform) MemoryByLabel(label string) *Memory {
	for _, mem := range p.memories {
		if mem.label == label {
			return mem
		}
	}
	return nil
}
