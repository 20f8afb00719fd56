package sim

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Hardware constants of the built-in platform catalogue.
const (
	globalWordLength = 4 // Byte

	cpuClockRateMHz    = 2900
	cpuDataParallelism = 1 // Words
	cpuCoreNumber      = 16

	mainRAMTransferRateMHz = 2667
	mainRAMWidthByte       = 8
	mainRAMChannels        = 2

	gpuClockRateMHz = 1471
	gpuCoreNumber   = 3584
	gpuDataParallelism = 1
	gpuPenalty         = 12. / 5

	gpuRAMTransferRateMHz = 800
	gpuRAMWidthByte       = 256
	gpuRAMChannels        = 1

	fpgaStreamingRateMHz = 400
	fpgaCapacity         = 128 // Abstract capacity units

	fpgaRAMTransferRateMHz = 1600
	fpgaRAMWidthByte       = 8
	fpgaRAMChannels        = 1.5
)

// PlatformConfiguration selects how many FPGAs accompany CPU and GPU.
type PlatformConfiguration int

const (
	ConfigCG   PlatformConfiguration = iota // CPU + GPU
	ConfigCGF                               // CPU + GPU + 1 FPGA
	ConfigCGFF                              // CPU + GPU + 2 FPGAs
)

func (c PlatformConfiguration) NbrFPGAs() int {
	switch c {
	case ConfigCGF:
		return 1
	case ConfigCGFF:
		return 2
	}
	return 0
}

func (c PlatformConfiguration) String() string {
	switch c {
	case ConfigCG:
		return "CG"
	case ConfigCGF:
		return "CGF"
	case ConfigCGFF:
		return "CGFF"
	}
	return ""
}

// ParsePlatformConfiguration reads a CG/CGF/CGFF label.
func ParsePlatformConfiguration(label string) (PlatformConfiguration, error) {
	switch label {
	case "CG":
		return ConfigCG, nil
	case "CGF":
		return ConfigCGF, nil
	case "CGFF":
		return ConfigCGFF, nil
	}
	return ConfigCG, fmt.Errorf("unknown platform configuration %q", label)
}

// CreatePlatform builds the built-in heterogeneous platform: a multicore
// CPU with Main_RAM, a GPU with GPU_RAM, and nbrFPGAs capacity-bounded
// streaming FPGAs with their own RAM.
func CreatePlatform(nbrFPGAs int) *Platform {
	p := NewPlatform()

	cpu := p.CreateProcessor("CPU", false)
	cpu.SetProcessingRate(globalWordLength*cpuClockRateMHz, globalWordLength*cpuClockRateMHz*cpuCoreNumber*cpuDataParallelism)

	mainRAM := p.CreateMemory("Main_RAM")
	mainRAM.SetDataRate(mainRAMTransferRateMHz * mainRAMWidthByte * mainRAMChannels)
	cpu.SetDefaultMemory(mainRAM)

	gpu := p.CreateProcessor("GPU", false)
	gpu.SetProcessingRate((globalWordLength*gpuClockRateMHz)/gpuPenalty, (globalWordLength*gpuClockRateMHz*gpuCoreNumber*gpuDataParallelism)/gpuPenalty)

	gpuRAM := p.CreateMemory("GPU_RAM")
	gpuRAM.SetDataRate(gpuRAMTransferRateMHz * gpuRAMWidthByte * gpuRAMChannels)
	gpu.SetDefaultMemory(gpuRAM)

	p.SetDataConnection(cpu, mainRAM)
	p.SetDataConnection(gpu, gpuRAM)
	p.SetDataConnection(mainRAM, gpuRAM)

	for i := 0; i < nbrFPGAs; i++ {
		id := ""
		if nbrFPGAs > 1 {
			id = strconv.Itoa(i)
		}

		fpga := p.CreateProcessor("FPGA"+id, true)
		fpga.SetProcessingRate(globalWordLength * fpgaStreamingRateMHz)
		fpga.SetCapacity(fpgaCapacity)

		fpgaRAM := p.CreateMemory("FPGA_RAM" + id)
		fpgaRAM.SetDataRate(fpgaRAMTransferRateMHz * fpgaRAMWidthByte * fpgaRAMChannels)
		fpga.SetDefaultMemory(fpgaRAM)

		p.SetDataConnection(fpga, fpgaRAM, fpgaStreamingRateMHz*32*1*7/8)
		p.SetDataConnection(mainRAM, fpgaRAM, fpgaStreamingRateMHz*64*1/8)
	}

	return p
}

// PlatformSpec is the YAML description of a custom platform.
type PlatformSpec struct {
	Processors []ProcessorSpec `yaml:"processors"`
	Memories   []MemorySpec    `yaml:"memories"`
	Links      []LinkSpec      `yaml:"links"`
}

type ProcessorSpec struct {
	Label            string   `yaml:"label"`
	SerialRateMBps   DataRate `yaml:"serial_rate_mbps"`
	ParallelRateMBps DataRate `yaml:"parallel_rate_mbps"`
	Capacity         Area     `yaml:"capacity"`
	Streaming        bool     `yaml:"streaming"`
	DefaultMemory    string   `yaml:"default_memory"`
}

type MemorySpec struct {
	Label        string   `yaml:"label"`
	DataRateMBps DataRate `yaml:"data_rate_mbps"`
	NoStreaming  bool     `yaml:"no_streaming"`
}

type LinkSpec struct {
	From     string   `yaml:"from"`
	To       string   `yaml:"to"`
	RateMBps DataRate `yaml:"rate_mbps"`
	Directed bool     `yaml:"directed"`
}

// LoadPlatformSpec reads a YAML platform description and materialises it.
func LoadPlatformSpec(path string) (*Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform spec: %w", err)
	}

	var spec PlatformSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse platform spec %s: %w", path, err)
	}
	return spec.Build()
}

// Build materialises the spec into a Platform.
func (s *PlatformSpec) Build() (*Platform, error) {
	p := NewPlatform()

	for _, ms := range s.Memories {
		var mem *Memory
		if ms.NoStreaming {
			mem = p.CreateMemoryNoStreaming(ms.Label)
		} else {
			mem = p.CreateMemory(ms.Label)
		}
		mem.SetDataRate(ms.DataRateMBps)
	}

	for _, ps := range s.Processors {
		proc := p.CreateProcessor(ps.Label, ps.Streaming)
		parallel := ps.ParallelRateMBps
		if parallel == 0 {
			parallel = ps.SerialRateMBps
		}
		proc.SetProcessingRate(ps.SerialRateMBps, parallel)
		if ps.Capacity > 0 {
			proc.SetCapacity(ps.Capacity)
		}
		if ps.DefaultMemory != "" {
			mem := p.MemoryByLabel(ps.DefaultMemory)
			if mem == nil {
				return nil, fmt.Errorf("processor %s references unknown memory %s", ps.Label, ps.DefaultMemory)
			}
			proc.SetDefaultMemory(mem)
		}
	}

	deviceByLabel := func(label string) Device {
		if proc := p.ProcessorByLabel(label); proc != nil {
			return proc
		}
		if mem := p.MemoryByLabel(label); mem != nil {
			return mem
		}
		return nil
	}

	for _, ls := range s.Links {
		from := deviceByLabel(ls.From)
		to := deviceByLabel(ls.To)
		if from == nil || to == nil {
			return nil, fmt.Errorf("link %s -> %s references an unknown device", ls.From, ls.To)
		}
		switch {
		case ls.Directed:
			p.SetDirectedConnection(from, to, ls.RateMBps)
		case ls.RateMBps > 0:
			p.SetDataConnection(from, to, ls.RateMBps)
		default:
			p.SetDataConnection(from, to)
		}
	}

	return p, nil
}
