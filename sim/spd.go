package sim

// SPOperationType classifies nodes of the series-parallel tree.
type SPOperationType int

const (
	SPSeries SPOperationType = iota
	SPParallel
	SPEdge
)

// SPOperation is one node of the SP-tree: an edge leaf or a SERIES /
// PARALLEL composition of child operations spanning front → back.
// parallelOut counts the edges landing on the back node from inside the
// operation; the growth rule compares it against the back's in-degree.
type SPOperation struct {
	opType      SPOperationType
	elements    []*SPOperation
	front, back *Task
	parallelOut int
}

func newSPLeaf(from, to *Task) *SPOperation {
	return &SPOperation{opType: SPEdge, front: from, back: to, parallelOut: 1}
}

func newSPPair(first, second *SPOperation, opType SPOperationType) *SPOperation {
	op := &SPOperation{opType: opType, front: first.front, back: second.back}
	op.pushOperation(first)
	op.pushOperation(second)
	return op
}

func newSPParallel(ops []*SPOperation) *SPOperation {
	if len(ops) == 0 {
		panic("sim: parallel operation needs at least one child")
	}
	op := &SPOperation{opType: SPParallel, front: ops[0].front, back: ops[0].back}
	for _, child := range ops {
		op.pushOperation(child)
	}
	return op
}

// pushOperation appends a child, flattening equal-type children into this
// operation so the tree stays canonical.
func (op *SPOperation) pushOperation(child *SPOperation) {
	if child.opType == op.opType {
		for _, elem := range child.elements {
			op.insertElement(elem)
		}
		child.elements = nil
		return
	}
	op.insertElement(child)
}

func (op *SPOperation) insertElement(child *SPOperation) {
	op.elements = append(op.elements, child)
	if op.opType == SPParallel {
		op.parallelOut += child.parallelOut
	} else {
		// Series operation, the pushed element is the last element.
		op.parallelOut = child.parallelOut
	}
}

func (op *SPOperation) Type() SPOperationType    { return op.opType }
func (op *SPOperation) Front() *Task             { return op.front }
func (op *SPOperation) Back() *Task              { return op.back }
func (op *SPOperation) ParallelOut() int         { return op.parallelOut }
func (op *SPOperation) Elements() []*SPOperation { return op.elements }

// spWavefront maps back-tasks to the operations currently ending there,
// in deterministic insertion order.
type spWavefront struct {
	keys []*Task
	ops  map[*Task][]*SPOperation
}

func newSPWavefront() *spWavefront {
	return &spWavefront{ops: make(map[*Task][]*SPOperation)}
}

func (w *spWavefront) add(back *Task, op *SPOperation) {
	if _, ok := w.ops[back]; !ok {
		w.keys = append(w.keys, back)
	}
	w.ops[back] = append(w.ops[back], op)
}

func (w *spWavefront) erase(back *Task) {
	delete(w.ops, back)
	for i, key := range w.keys {
		if key == back {
			w.keys = append(w.keys[:i], w.keys[i+1:]...)
			return
		}
	}
}

// SeriesParallelDecomposition builds an SP-tree of a task graph bottom-up,
// degrading to a forest when the graph is not series-parallel.
type SeriesParallelDecomposition struct {
	innerNodes []*SPOperation
	leaves     []*SPOperation
	roots      []*SPOperation

	missingInputs map[*Task]int
}

// NewSeriesParallelDecomposition decomposes the graph.
func NewSeriesParallelDecomposition(g *TaskGraph) *SeriesParallelDecomposition {
	d := &SeriesParallelDecomposition{missingInputs: make(map[*Task]int)}
	d.createTree(g)
	return d
}

// InnerNodes returns all SERIES and PARALLEL nodes across the forest, in
// preorder.
func (d *SeriesParallelDecomposition) InnerNodes() []*SPOperation { return d.innerNodes }

// Roots returns the forest roots; a single root means the graph is
// strictly series-parallel.
func (d *SeriesParallelDecomposition) Roots() []*SPOperation { return d.roots }

func (d *SeriesParallelDecomposition) createLeaf(src, snk *Task) *SPOperation {
	op := newSPLeaf(src, snk)
	d.leaves = append(d.leaves, op)
	return op
}

func (d *SeriesParallelDecomposition) createSeries(op, child *SPOperation) *SPOperation {
	return newSPPair(op, child, SPSeries)
}

// createParallel reduces the operations spanning the given child edges to
// a single operation. When no merge or growth step makes progress, the
// graph is not series-parallel: the first stuck operation is detached as
// a forest root and its contribution is recorded in missingInputs so the
// growth rule discounts it from future in-degree checks.
func (d *SeriesParallelDecomposition) createParallel(children []*Edge) *SPOperation {
	wavefront := newSPWavefront()
	for _, childEdge := range children {
		wavefront.add(childEdge.Snk(), d.createLeaf(childEdge.Src(), childEdge.Snk()))
	}

	for {
		change := true
		for change {
			change = false

			if len(wavefront.keys) == 1 && len(wavefront.ops[wavefront.keys[0]]) == 1 {
				return wavefront.ops[wavefront.keys[0]][0]
			}

			keys := append([]*Task(nil), wavefront.keys...)
			for _, key := range keys {
				ops, ok := wavefront.ops[key]
				if !ok {
					continue
				}
				if len(ops) > 1 {
					// Operations sharing both front and back merge in parallel.
					op := newSPParallel(ops)
					wavefront.ops[key] = []*SPOperation{op}
					change = true
				} else {
					grown := d.growOperation(ops[0])
					if grown != ops[0] {
						wavefront.erase(key)
						wavefront.add(grown.back, grown)
						change = true
						break
					}
				}
			}
		}

		// Graph is not series-parallel. Extract one of the faulty operations.
		key := wavefront.keys[0]
		ops := wavefront.ops[key]
		if len(ops) != 1 {
			panic("sim: stuck wavefront entry must hold a single operation")
		}
		faulty := ops[0]
		d.roots = append(d.roots, faulty)
		d.missingInputs[faulty.back] += faulty.parallelOut
		wavefront.erase(key)
	}
}

// growOperation extends an operation forward while the back node has no
// inputs from outside the operation.
func (d *SeriesParallelDecomposition) growOperation(op *SPOperation) *SPOperation {
	next := op.back
	for next != nil && len(next.EdgesIn())-d.missingInputs[next] <= op.parallelOut {
		switch len(next.EdgesOut()) {
		case 0:
			op = d.createSeries(op, d.createLeaf(next, nil))
			next = nil
		case 1:
			op = d.createSeries(op, d.createLeaf(next, next.EdgesOut()[0].Snk()))
			next = op.back
		default:
			op = d.createSeries(op, d.createParallel(next.EdgesOut()))
			next = op.back
		}
	}
	return op
}

func (d *SeriesParallelDecomposition) createTree(g *TaskGraph) {
	var root *SPOperation
	sources := g.Sources()
	if len(sources) == 1 {
		root = d.growOperation(d.createLeaf(nil, sources[0]))
	} else {
		// Synthesise a virtual source edge per graph source.
		startEdges := make([]*Edge, len(sources))
		for i, src := range sources {
			startEdges[i] = &Edge{snk: src}
		}
		root = d.createParallel(startEdges)

		if root.back != nil {
			root = d.growOperation(root)
		}
	}

	if root.back != nil {
		panic("sim: decomposition root must end at the graph boundary")
	}

	d.roots = append(d.roots, root)
	for _, r := range d.roots {
		d.addInnerNodes(r)
	}
}

func (d *SeriesParallelDecomposition) addInnerNodes(root *SPOperation) {
	if root.opType == SPEdge {
		return
	}
	d.innerNodes = append(d.innerNodes, root)
	for _, elem := range root.elements {
		d.addInnerNodes(elem)
	}
}
