package sim

// Mapper computes a task mapping for a system. An empty mapping means
// "no solution this attempt"; mappers never abort the process.
type Mapper interface {
	TaskMapping(sys System) *Mapping
}

// GreedyMapper assigns every task to the first compatible processor and
// memory, optionally restricted to an ordered list of device labels. The
// everything-on-CPU baseline uses labels {"CPU", "Main_RAM"}.
type GreedyMapper struct {
	allowedLabels []string
}

// NewGreedyMapper creates a greedy mapper; without labels any compatible
// device qualifies.
func NewGreedyMapper(labels ...string) *GreedyMapper {
	return &GreedyMapper{allowedLabels: labels}
}

// NewCPUMapper is the canonical greedy baseline.
func NewCPUMapper() *GreedyMapper {
	return NewGreedyMapper("CPU", "Main_RAM")
}

func (m *GreedyMapper) TaskMapping(sys System) *Mapping {
	tasks := sys.TaskGraph().Tasks()
	processors := sys.Platform().Processors()
	memories := sys.Platform().Memories()

	mapping := NewMapping()
	for _, task := range tasks {
		var compatibleProc *Processor
		var compatibleMem *Memory

		if len(m.allowedLabels) == 0 {
			for _, proc := range processors {
				if sys.IsCompatible(task, proc) {
					compatibleProc = proc
					break
				}
			}
			for _, mem := range memories {
				if sys.IsCompatible(task, mem) {
					compatibleMem = mem
					break
				}
			}
		} else {
			for _, label := range m.allowedLabels {
				if compatibleProc != nil {
					break
				}
				for _, proc := range processors {
					if proc.Label() == label {
						if sys.IsCompatible(task, proc) {
							compatibleProc = proc
						}
						break
					}
				}
			}
			for _, label := range m.allowedLabels {
				if compatibleMem != nil {
					break
				}
				for _, mem := range memories {
					if mem.Label() == label {
						if sys.IsCompatible(task, mem) {
							compatibleMem = mem
						}
						break
					}
				}
			}
		}

		mapping.Map(task, compatibleProc, compatibleMem, compatibleMem)
	}
	return mapping
}
