package sim

// System joins a task graph with a platform and defines the timing and
// compatibility contract every mapper and the evaluator work against.
type System interface {
	ComputationTimeMs(task *Task, proc *Processor) Time
	TransactionTimeMs(transferSizeMB DataSize, dev1, dev2 Device) Time
	IsCompatible(task *Task, device Device) bool

	TaskGraph() *TaskGraph
	Platform() *Platform
}

// ComputationBasedSystem derives task timing from the data volume a task
// consumes, scaled by its complexity.
type ComputationBasedSystem struct {
	taskGraph *TaskGraph
	platform  *Platform
}

// NewComputationBasedSystem joins graph and platform.
func NewComputationBasedSystem(g *TaskGraph, p *Platform) *ComputationBasedSystem {
	return &ComputationBasedSystem{taskGraph: g, platform: p}
}

// ReplaceGraph swaps the task graph, keeping the platform.
func (s *ComputationBasedSystem) ReplaceGraph(g *TaskGraph) {
	s.taskGraph = g
}

// ComputationTimeMs is the processor time for one execution of the task.
// Streaming devices divide by the task's streamability.
func (s *ComputationBasedSystem) ComputationTimeMs(task *Task, proc *Processor) Time {
	time := proc.ProcessingTimeMs(task.InputSize(), task.Parallelizability()) * task.Complexity()
	if proc.IsStreamingDevice() {
		time /= task.Streamability()
	}
	return time
}

// TransactionTimeMs is the wall time to move transferSizeMB between two
// devices. A zero rate means the transfer can never complete.
func (s *ComputationBasedSystem) TransactionTimeMs(transferSizeMB DataSize, dev1, dev2 Device) Time {
	rate := s.platform.TransferRateMBps(dev1, dev2)
	if rate == 0 {
		return InfTime()
	}
	if rate == InfRate() {
		return 0
	}
	return 1000 * Time(transferSizeMB) / rate
}

// IsCompatible restricts graph sources and sinks to the host CPU and its
// RAM; every other task runs anywhere.
func (s *ComputationBasedSystem) IsCompatible(task *Task, device Device) bool {
	if len(task.EdgesIn()) == 0 || len(task.EdgesOut()) == 0 {
		label := deviceLabel(device)
		return label == "CPU" || label == "Main_RAM"
	}
	return true
}

func (s *ComputationBasedSystem) TaskGraph() *TaskGraph { return s.taskGraph }
func (s *ComputationBasedSystem) Platform() *Platform   { return s.platform }
