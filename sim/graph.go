package sim

import "fmt"

// SizeFunc maps the multiset of a task's input sizes to its produced
// output size.
type SizeFunc func(dataIn []DataSize) DataSize

// SummedPropagation forwards the sum of all inputs.
func SummedPropagation(dataIn []DataSize) DataSize {
	var sum DataSize
	for _, d := range dataIn {
		sum += d
	}
	return sum
}

// MaxPropagation forwards the largest input, 0 when there are none.
func MaxPropagation(dataIn []DataSize) DataSize {
	var max DataSize
	for _, d := range dataIn {
		if d > max {
			max = d
		}
	}
	return max
}

// AveragePropagation forwards the mean input size, 0 when there are none.
func AveragePropagation(dataIn []DataSize) DataSize {
	if len(dataIn) == 0 {
		return 0
	}
	return SummedPropagation(dataIn) / DataSize(len(dataIn))
}

// DataSrc produces a constant 1 MB regardless of inputs.
func DataSrc([]DataSize) DataSize { return 1 }

// DataSnk consumes everything and produces nothing.
func DataSnk([]DataSize) DataSize { return 0 }

// ConstantSize produces a fixed output size regardless of inputs.
func ConstantSize(sizeMB DataSize) SizeFunc {
	return func([]DataSize) DataSize { return sizeMB }
}

// Edge is an ordered data dependency between two tasks. Edges are owned
// by the graph; tasks hold back-references in both directions.
type Edge struct {
	src *Task
	snk *Task
}

func (e *Edge) Src() *Task { return e.src }
func (e *Edge) Snk() *Task { return e.snk }

// Task is a node of the task graph carrying computational characteristics.
// Input and output sizes are cached and lazily recomputed whenever an
// incoming edge changes.
type Task struct {
	edgesIn  []*Edge
	edgesOut []*Edge

	inputSize  DataSize
	outputSize DataSize
	dirty      bool

	complexity        ScaleFactor
	parallelizability Percent
	streamability     ScaleFactor
	area              Area

	sizeFunc SizeFunc

	guid uint64
}

func (t *Task) EdgesIn() []*Edge  { return t.edgesIn }
func (t *Task) EdgesOut() []*Edge { return t.edgesOut }

func (t *Task) Complexity() ScaleFactor    { return t.complexity }
func (t *Task) Parallelizability() Percent { return t.parallelizability }
func (t *Task) Streamability() ScaleFactor { return t.streamability }

// AreaRequirement is the capacity a task consumes on an area-bounded
// processor; it defaults to the task's complexity when unset.
func (t *Task) AreaRequirement() Area {
	if t.area == 0 {
		return t.complexity
	}
	return t.area
}

func (t *Task) SetArea(area Area) { t.area = area }

func (t *Task) SetSizeFunc(f SizeFunc) {
	t.sizeFunc = f
	t.dirty = true
}

func (t *Task) InputSize() DataSize {
	if t.dirty {
		t.computeSize()
	}
	return t.inputSize
}

func (t *Task) OutputSize() DataSize {
	if t.dirty {
		t.computeSize()
	}
	return t.outputSize
}

// IsStreamable reports whether the task benefits from pipelined execution.
func (t *Task) IsStreamable() bool { return t.streamability > 1 }

// Label identifies the task in renderings and export files.
func (t *Task) Label() string {
	return fmt.Sprintf("%d_%d_%d", int64(t.parallelizability), int64(t.complexity), t.guid)
}

// Successors returns the distinct sink tasks of the outgoing edges.
func (t *Task) Successors() []*Task {
	var successors []*Task
	for _, e := range t.edgesOut {
		seen := false
		for _, s := range successors {
			if s == e.snk {
				seen = true
				break
			}
		}
		if !seen {
			successors = append(successors, e.snk)
		}
	}
	return successors
}

func (t *Task) computeSize() {
	inputSizes := make([]DataSize, 0, len(t.edgesIn))
	t.inputSize = 0
	for _, edge := range t.edgesIn {
		out := edge.src.OutputSize()
		t.inputSize += out
		inputSizes = append(inputSizes, out)
	}
	t.outputSize = t.sizeFunc(inputSizes)
	t.dirty = false
}

func (t *Task) addOutgoingEdge(e *Edge) {
	t.edgesOut = append(t.edgesOut, e)
	e.snk.edgesIn = append(e.snk.edgesIn, e)

	t.dirty = true
	e.snk.dirty = true
}

func (t *Task) deleteOutgoingEdge(e *Edge) {
	t.edgesOut = removeEdge(t.edgesOut, e)
	e.snk.edgesIn = removeEdge(e.snk.edgesIn, e)

	t.dirty = true
	e.snk.dirty = true
}

func removeEdge(edges []*Edge, e *Edge) []*Edge {
	for i, cur := range edges {
		if cur == e {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	panic("sim: edge not registered on task")
}

// NodeSpec carries the optional attributes of a new task. Zero values mean
// the defaults of TaskGraph.AddNode.
type NodeSpec struct {
	Complexity        ScaleFactor
	Parallelizability Percent
	Streamability     ScaleFactor
	SizeFunc          SizeFunc
	Predecessors      []*Task
	Successors        []*Task
}

// TaskGraph owns all tasks and edges of a DAG. The source and sink sets
// are derived state, maintained only through AddNode, AddEdge and
// DeleteEdge.
type TaskGraph struct {
	srcNodes map[*Task]struct{}
	snkNodes map[*Task]struct{}

	tasks []*Task
	edges []*Edge

	nextGUID uint64
}

// NewTaskGraph creates an empty graph.
func NewTaskGraph() *TaskGraph {
	return &TaskGraph{
		srcNodes: make(map[*Task]struct{}),
		snkNodes: make(map[*Task]struct{}),
	}
}

func (g *TaskGraph) Tasks() []*Task { return g.tasks }
func (g *TaskGraph) Edges() []*Edge { return g.edges }

// Sources returns the tasks without incoming edges in insertion order.
func (g *TaskGraph) Sources() []*Task {
	var srcs []*Task
	for _, t := range g.tasks {
		if _, ok := g.srcNodes[t]; ok {
			srcs = append(srcs, t)
		}
	}
	return srcs
}

// Sinks returns the tasks without outgoing edges in insertion order.
func (g *TaskGraph) Sinks() []*Task {
	var snks []*Task
	for _, t := range g.tasks {
		if _, ok := g.snkNodes[t]; ok {
			snks = append(snks, t)
		}
	}
	return snks
}

// AddNode creates a task, wires the given predecessor and successor edges
// and updates the derived source/sink sets.
func (g *TaskGraph) AddNode(spec NodeSpec) *Task {
	if spec.Complexity == 0 {
		spec.Complexity = 1
	}
	if spec.Streamability == 0 {
		spec.Streamability = 1
	}
	if spec.SizeFunc == nil {
		spec.SizeFunc = SummedPropagation
	}

	g.nextGUID++
	task := &Task{
		complexity:        spec.Complexity,
		parallelizability: spec.Parallelizability,
		streamability:     spec.Streamability,
		sizeFunc:          spec.SizeFunc,
		dirty:             true,
		guid:              g.nextGUID,
	}
	g.tasks = append(g.tasks, task)

	if len(spec.Predecessors) == 0 {
		g.srcNodes[task] = struct{}{}
	}
	if len(spec.Successors) == 0 {
		g.snkNodes[task] = struct{}{}
	}

	for _, pred := range spec.Predecessors {
		g.AddEdge(pred, task)
	}
	for _, succ := range spec.Successors {
		g.AddEdge(task, succ)
	}

	return task
}

// AddEdge creates the dependency src → snk.
func (g *TaskGraph) AddEdge(src, snk *Task) *Edge {
	edge := &Edge{src: src, snk: snk}
	g.edges = append(g.edges, edge)

	delete(g.snkNodes, src)
	delete(g.srcNodes, snk)

	src.addOutgoingEdge(edge)
	return edge
}

// DeleteEdge removes the first edge src → snk if one exists.
func (g *TaskGraph) DeleteEdge(src, snk *Task) {
	for i, edge := range g.edges {
		if edge.src == src && edge.snk == snk {
			src.deleteOutgoingEdge(edge)
			if len(src.edgesOut) == 0 {
				g.snkNodes[src] = struct{}{}
			}
			if len(snk.edgesIn) == 0 {
				g.srcNodes[snk] = struct{}{}
			}
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return
		}
	}
}
