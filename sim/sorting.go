package sim

import "math"

// SubGraph is a compressed streaming region: the tasks of one pipeline,
// the edges between them, the edges escaping the region and the devices
// their mapped triplets occupy.
type SubGraph struct {
	tasks    []*Task
	edges    []*Edge
	devices  map[Device]struct{}
	edgesOut []*Edge
}

func newSubGraph() *SubGraph {
	return &SubGraph{devices: make(map[Device]struct{})}
}

func (s *SubGraph) addTask(task *Task, mapping MappingReader) {
	s.tasks = append(s.tasks, task)

	s.devices[mapping.Processor(task)] = struct{}{}
	s.devices[mapping.MemIn(task)] = struct{}{}
	s.devices[mapping.MemOut(task)] = struct{}{}
}

func (s *SubGraph) addEdge(edge *Edge)    { s.edges = append(s.edges, edge) }
func (s *SubGraph) addEdgeOut(edge *Edge) { s.edgesOut = append(s.edgesOut, edge) }

func (s *SubGraph) Tasks() []*Task              { return s.tasks }
func (s *SubGraph) Edges() []*Edge              { return s.edges }
func (s *SubGraph) EdgesOut() []*Edge           { return s.edgesOut }
func (s *SubGraph) Devices() map[Device]struct{} { return s.devices }

// GraphElement is a sum type over {Task, Edge, SubGraph}; exactly one
// field is set.
type GraphElement struct {
	task *Task
	edge *Edge
	sub  *SubGraph
}

func taskElement(t *Task) GraphElement    { return GraphElement{task: t} }
func edgeElement(e *Edge) GraphElement    { return GraphElement{edge: e} }
func subElement(s *SubGraph) GraphElement { return GraphElement{sub: s} }

func (e GraphElement) Task() *Task         { return e.task }
func (e GraphElement) Edge() *Edge         { return e.edge }
func (e GraphElement) SubGraph() *SubGraph { return e.sub }

// key is the identity of the wrapped element, used for index lookups.
func (e GraphElement) key() any {
	switch {
	case e.task != nil:
		return e.task
	case e.edge != nil:
		return e.edge
	default:
		return e.sub
	}
}

// noIndex is returned for elements absent from a sorting, large enough
// that every "index beyond the region" comparison treats them as escaped.
const noIndex = math.MaxInt64 / 2

// TopologicalSorting is a linearised sequence of graph elements. Every
// variant guarantees that for each edge (u,v) both u and, when edges are
// emitted, the edge itself precede v.
type TopologicalSorting struct {
	insertEdges    bool
	sortedElements []GraphElement
	subgraphs      []*SubGraph

	indexMap map[any]int
	dirty    bool
}

func newSorting(insertEdges bool) *TopologicalSorting {
	return &TopologicalSorting{insertEdges: insertEdges, dirty: true}
}

func (s *TopologicalSorting) SortedElements() []GraphElement { return s.sortedElements }
func (s *TopologicalSorting) Subgraphs() []*SubGraph         { return s.subgraphs }
func (s *TopologicalSorting) ContainsEdges() bool            { return s.insertEdges }

func (s *TopologicalSorting) index(elem any) int {
	if s.dirty {
		s.generateIndex()
	}
	if idx, ok := s.indexMap[elem]; ok {
		return idx
	}
	return noIndex
}

func (s *TopologicalSorting) generateIndex() {
	s.indexMap = make(map[any]int, len(s.sortedElements))
	for i, elem := range s.sortedElements {
		s.indexMap[elem.key()] = i
	}
	s.dirty = false
}

// NewBFSSorting produces the classic Kahn order; edges are emitted right
// after their source task has been consumed.
func NewBFSSorting(g *TaskGraph, insertEdges bool) *TopologicalSorting {
	s := newSorting(insertEdges)

	dependencies := make(map[any]int)
	var next []GraphElement
	for _, src := range g.Sources() {
		next = append(next, taskElement(src))
		dependencies[src] = 1
	}

	for len(next) > 0 {
		elem := next[0]
		next = next[1:]

		dependencies[elem.key()]--
		if dependencies[elem.key()] != 0 {
			continue
		}

		if task := elem.Task(); task != nil {
			for _, edgeOut := range task.EdgesOut() {
				next = append(next, edgeElement(edgeOut))
				dependencies[edgeOut] = 1
			}
		}

		if edge := elem.Edge(); edge != nil {
			snk := edge.Snk()
			next = append(next, taskElement(snk))
			if _, ok := dependencies[snk]; !ok {
				dependencies[snk] = len(snk.EdgesIn())
			}
		}

		if insertEdges || elem.Task() != nil {
			s.sortedElements = append(s.sortedElements, elem)
		}
	}
	return s
}

// NewTaskFirstBFSSorting emits each task once ready, preceded by all of
// its incoming edges. This is the evaluator's default cached ordering.
func NewTaskFirstBFSSorting(g *TaskGraph, insertEdges bool) *TopologicalSorting {
	s := newSorting(insertEdges)

	dependencies := make(map[*Task]int)
	var next []*Task
	for _, src := range g.Sources() {
		next = append(next, src)
		dependencies[src] = 1
	}

	for len(next) > 0 {
		task := next[0]
		next = next[1:]

		dependencies[task]--
		if dependencies[task] != 0 {
			continue
		}

		for _, edgeOut := range task.EdgesOut() {
			snk := edgeOut.Snk()
			next = append(next, snk)
			if _, ok := dependencies[snk]; !ok {
				dependencies[snk] = len(snk.EdgesIn())
			}
		}
		if insertEdges {
			for _, edgeIn := range task.EdgesIn() {
				s.sortedElements = append(s.sortedElements, edgeElement(edgeIn))
			}
		}
		s.sortedElements = append(s.sortedElements, taskElement(task))
	}
	return s
}

// NewRandomSorting draws the next ready element uniformly from the
// frontier. Used by the evaluator to reduce the dependency of a cost on
// one particular linearisation.
func NewRandomSorting(g *TaskGraph, insertEdges bool, rng randIntn) *TopologicalSorting {
	s := newSorting(insertEdges)

	dependencies := make(map[any]int)
	var frontier []GraphElement
	for _, src := range g.Sources() {
		frontier = append(frontier, taskElement(src))
		dependencies[src] = 1
	}

	// frontier[:n] is live; consumed slots are recycled by swapping the
	// last live element in.
	n := len(frontier)
	for n != 0 {
		idx := rng.Intn(n)
		elem := frontier[idx]

		dependencies[elem.key()]--
		if dependencies[elem.key()] == 0 {
			if task := elem.Task(); task != nil {
				for _, edgeOut := range task.EdgesOut() {
					if n == len(frontier) {
						frontier = append(frontier, edgeElement(edgeOut))
					} else {
						frontier[n] = edgeElement(edgeOut)
					}
					dependencies[edgeOut] = 1
					n++
				}
			}

			if edge := elem.Edge(); edge != nil {
				snk := edge.Snk()
				if n == len(frontier) {
					frontier = append(frontier, taskElement(snk))
				} else {
					frontier[n] = taskElement(snk)
				}
				n++

				if _, ok := dependencies[snk]; !ok {
					dependencies[snk] = len(snk.EdgesIn())
				}
			}

			if insertEdges || elem.Task() != nil {
				s.sortedElements = append(s.sortedElements, elem)
			}
		}

		n--
		frontier[idx] = frontier[n]
	}
	return s
}

// randIntn is the slice of *rand.Rand the sortings draw from.
type randIntn interface {
	Intn(n int) int
}

// NewMappingBasedSorting favours the processor whose running time
// estimate is currently lowest, and prefers emitting a crossing edge
// when its endpoint processor matches and the task pick would stall.
func NewMappingBasedSorting(sys System, mapping MappingReader, insertEdges bool) *TopologicalSorting {
	s := newSorting(insertEdges)

	dependencies := make(map[*Task]int)
	var nextTasks []*Task
	var crossingEdges []*Edge
	nextTasks = append(nextTasks, sys.TaskGraph().Sources()...)

	times := make(map[*Processor]Time)
	for _, proc := range sys.Platform().Processors() {
		times[proc] = 0
	}

	firstTaskIdx := 0
	firstEdgeIdx := 0
	for firstTaskIdx < len(nextTasks) || firstEdgeIdx < len(crossingEdges) {
		minTime := math.MaxFloat64
		minIdx := -1

		for i := firstTaskIdx; i < len(nextTasks); i++ {
			if nextTasks[i] != nil && times[mapping.Processor(nextTasks[i])] < minTime {
				minTime = times[mapping.Processor(nextTasks[i])]
				minIdx = i
			}
		}

		var nextTask *Task
		if firstTaskIdx < len(nextTasks) && minIdx >= 0 {
			nextTask = nextTasks[minIdx]
		}
		var proc *Processor
		newTime := math.MaxFloat64
		if nextTask != nil {
			proc = mapping.Processor(nextTask)
			newTime = minTime + sys.ComputationTimeMs(nextTask, proc)
		}

		var nextEdge *Edge
		for i := firstEdgeIdx; i < len(crossingEdges); i++ {
			if crossingEdges[i] == nil {
				continue
			}
			procSrc := mapping.Processor(crossingEdges[i].Src())
			procSnk := mapping.Processor(crossingEdges[i].Snk())
			if nextTask == nil || ((proc == procSrc || proc == procSnk) && newTime > max(times[procSrc], times[procSnk])) {
				nextEdge = crossingEdges[i]
				crossingEdges[i] = nil

				for firstEdgeIdx < len(crossingEdges) && crossingEdges[firstEdgeIdx] == nil {
					firstEdgeIdx++
				}
				break
			}
		}

		if nextEdge != nil {
			if insertEdges {
				s.sortedElements = append(s.sortedElements, edgeElement(nextEdge))
			}
			dependencies[nextEdge.Snk()]--
			if dependencies[nextEdge.Snk()] == 0 {
				nextTasks = append(nextTasks, nextEdge.Snk())
			}
			continue
		}

		nextTasks[minIdx] = nil
		times[proc] = newTime
		for firstTaskIdx < len(nextTasks) && nextTasks[firstTaskIdx] == nil {
			firstTaskIdx++
		}

		s.sortedElements = append(s.sortedElements, taskElement(nextTask))

		for _, edgeOut := range nextTask.EdgesOut() {
			snk := edgeOut.Snk()
			if _, ok := dependencies[snk]; !ok {
				dependencies[snk] = len(snk.EdgesIn())
			}

			if mapping.Processor(snk) == proc {
				if insertEdges {
					s.sortedElements = append(s.sortedElements, edgeElement(edgeOut))
				}
				dependencies[snk]--
				if dependencies[snk] == 0 {
					nextTasks = append(nextTasks, snk)
				}
			} else {
				crossingEdges = append(crossingEdges, edgeOut)
			}
		}
	}
	return s
}

// NewCachedSorting snapshots a previously produced ordering so repeated
// cost computations skip the sort.
func NewCachedSorting(sorting *TopologicalSorting) *TopologicalSorting {
	if len(sorting.Subgraphs()) > 0 {
		panic("sim: caching a sorting with subgraphs is not supported")
	}
	s := newSorting(sorting.ContainsEdges())
	s.sortedElements = append([]GraphElement(nil), sorting.SortedElements()...)
	return s
}

// NewScheduleSorting wraps an externally scheduled task order (ascending
// start time); each task is followed by its outgoing edges.
func NewScheduleSorting(sortedTasks []*Task) *TopologicalSorting {
	s := newSorting(true)
	for _, task := range sortedTasks {
		s.sortedElements = append(s.sortedElements, taskElement(task))
		for _, e := range task.EdgesOut() {
			s.sortedElements = append(s.sortedElements, edgeElement(e))
		}
	}
	return s
}
