package sim

// Path is a chain of still-unmapped tasks extracted from a path tree.
type Path struct {
	tasks []*Task
}

func (p *Path) addTask(task *Task) { p.tasks = append(p.tasks, task) }
func (p *Path) Tasks() []*Task     { return p.tasks }

// Valid reports whether every task of the path may run on the pair.
func (p *Path) Valid(pair DevicePair, sys System) bool {
	for _, task := range p.tasks {
		if !sys.IsCompatible(task, pair.Proc()) || !sys.IsCompatible(task, pair.Mem()) {
			return false
		}
	}
	return true
}

// noWeight marks subtrees already consumed by the growing mapping.
const noWeight = Time(-1)

// pathTree annotates the unmapped remainder of the graph with downstream
// weights for one device pair, so the heaviest path can be extracted and
// packed. Weights are recomputed as the mapping grows.
type pathTree struct {
	totalWeight     Time
	subgraphWeights map[*Task]Time
	startTasks      map[*Task]struct{}
	startOrder      []*Task
	devicePair      DevicePair
	sys             System
}

func newPathTree(srcTasks []*Task, pair DevicePair, sys System) *pathTree {
	t := &pathTree{
		subgraphWeights: make(map[*Task]Time),
		startTasks:      make(map[*Task]struct{}),
		devicePair:      pair,
		sys:             sys,
	}
	for _, task := range srcTasks {
		t.addStart(task)
	}
	t.recomputeWeights(NewMapping())
	return t
}

func (t *pathTree) addStart(task *Task) {
	if _, ok := t.startTasks[task]; ok {
		return
	}
	t.startTasks[task] = struct{}{}
	t.startOrder = append(t.startOrder, task)
}

func (t *pathTree) removeStart(task *Task) {
	if _, ok := t.startTasks[task]; !ok {
		return
	}
	delete(t.startTasks, task)
	for i, cur := range t.startOrder {
		if cur == task {
			t.startOrder = append(t.startOrder[:i], t.startOrder[i+1:]...)
			return
		}
	}
}

func (t *pathTree) empty() bool      { return len(t.startTasks) == 0 }
func (t *pathTree) weight() Time     { return t.totalWeight }
func (t *pathTree) pair() DevicePair { return t.devicePair }

func (t *pathTree) recomputeWeights(mapping MappingReader) {
	t.totalWeight = 0
	for _, task := range t.startOrder {
		t.computeWeight(task, mapping)
		t.totalWeight = max(t.totalWeight, t.subgraphWeights[task])
	}
}

// maxPath follows the heaviest start task downstream.
func (t *pathTree) maxPath() Path {
	var maxTask *Task
	maxWeight := noWeight - 1
	for _, task := range t.startOrder {
		if t.subgraphWeights[task] > maxWeight {
			maxWeight = t.subgraphWeights[task]
			maxTask = task
		}
	}

	var path Path
	if maxTask != nil {
		t.maxPathRecursive(&path, maxTask)
	}
	return path
}

// pathWeight is the weight the path contributes on this pair: per task,
// its subtree weight minus the subtree weight of its heaviest successor.
func (t *pathTree) pathWeight(path Path) Time {
	var weight Time
	for _, task := range path.Tasks() {
		maxTask := t.maxTask(task.EdgesOut())
		var maxNext Time
		if maxTask != nil {
			maxNext = t.subgraphWeights[maxTask]
		}
		weight += t.subgraphWeights[task] - maxNext
	}
	return weight
}

// resolveTask removes a freshly mapped task, promoting its unmapped
// successors to start tasks.
func (t *pathTree) resolveTask(task *Task, mapping MappingReader, recompute bool) {
	t.propagateNoWeight(task)
	for _, nextEdge := range task.EdgesOut() {
		if !mapping.Contains(nextEdge.Snk()) {
			t.subgraphWeights[nextEdge.Snk()] = noWeight
			t.addStart(nextEdge.Snk())
		}
	}

	t.removeStart(task)
	if recompute {
		t.recomputeWeights(mapping)
	}
}

func (t *pathTree) resolvePath(path Path, mapping MappingReader) {
	if len(path.Tasks()) == 0 {
		return
	}
	for _, task := range path.Tasks() {
		t.resolveTask(task, mapping, false)
	}
	t.resolveTask(path.Tasks()[0], mapping, true)
}

func (t *pathTree) propagateNoWeight(task *Task) {
	if t.subgraphWeights[task] != noWeight {
		t.subgraphWeights[task] = noWeight
		for _, prevEdge := range task.EdgesIn() {
			t.propagateNoWeight(prevEdge.Src())
		}
	}
}

func (t *pathTree) maxTask(edges []*Edge) *Task {
	var maxTask *Task
	maxWeight := noWeight - 1
	for _, edge := range edges {
		if w := t.subgraphWeights[edge.Snk()]; maxTask == nil || w > maxWeight {
			maxWeight = w
			maxTask = edge.Snk()
		}
	}
	return maxTask
}

func (t *pathTree) maxPathRecursive(path *Path, task *Task) {
	path.addTask(task)

	nextTask := t.maxTask(task.EdgesOut())
	if nextTask != nil && t.subgraphWeights[nextTask] != noWeight {
		t.maxPathRecursive(path, nextTask)
	}
}

func (t *pathTree) nodeWeight(task *Task) Time {
	return t.sys.TransactionTimeMs(task.InputSize(), t.devicePair.Mem(), t.devicePair.Proc()) +
		t.sys.ComputationTimeMs(task, t.devicePair.Proc()) +
		t.sys.TransactionTimeMs(task.OutputSize(), t.devicePair.Proc(), t.devicePair.Mem())
}

func (t *pathTree) edgeWeight(edge *Edge, mapping MappingReader) Time {
	var srcMem, snkMem *Memory
	if mapping.Contains(edge.Src()) {
		srcMem = mapping.MemOut(edge.Src())
	} else {
		srcMem = t.devicePair.Mem()
	}
	if mapping.Contains(edge.Snk()) {
		snkMem = mapping.MemIn(edge.Snk())
	} else {
		snkMem = t.devicePair.Mem()
	}
	return t.sys.TransactionTimeMs(edge.Src().OutputSize(), srcMem, snkMem)
}

func (t *pathTree) computeWeight(task *Task, mapping MappingReader) {
	weight := noWeight
	if !mapping.Contains(task) {
		weight = 0
		var maxWeightNext Time
		for _, nextEdge := range task.EdgesOut() {
			child := nextEdge.Snk()
			if !mapping.Contains(child) {
				if w, ok := t.subgraphWeights[child]; !ok || w == noWeight {
					t.computeWeight(child, mapping)
				}
				maxWeightNext = max(maxWeightNext, t.subgraphWeights[child]+t.edgeWeight(nextEdge, mapping))
			} else {
				weight += t.edgeWeight(nextEdge, mapping)
			}
		}
		weight += maxWeightNext + t.nodeWeight(task)

		for _, prevEdge := range task.EdgesIn() {
			if mapping.Contains(prevEdge.Src()) {
				weight += t.edgeWeight(prevEdge, mapping)
			}
		}
	}
	t.subgraphWeights[task] = weight
}

// PathBasedMapper repeatedly extracts the heaviest remaining path and
// packs it onto whichever device pair keeps the projected makespan
// lowest, subject to capacity.
type PathBasedMapper struct{}

func NewPathBasedMapper() *PathBasedMapper { return &PathBasedMapper{} }

func (m *PathBasedMapper) TaskMapping(sys System) *Mapping {
	mapping := NewMapping()

	srcTasks := sys.TaskGraph().Sources()

	var pathTrees []*pathTree
	for _, labels := range [][2]string{{"CPU", "Main_RAM"}, {"GPU", "GPU_RAM"}, {"FPGA", "FPGA_RAM"}} {
		pair := NewDevicePair(labels[0], labels[1], sys.Platform())
		if pair.Valid() {
			pathTrees = append(pathTrees, newPathTree(srcTasks, pair, sys))
		}
	}

	totalTime := make(map[*Processor]Time)
	usedArea := make(map[*Processor]Area)
	for _, tree := range pathTrees {
		totalTime[tree.pair().Proc()] = 0
		usedArea[tree.pair().Proc()] = 0
	}

	// Tasks pinned by compatibility (sources and sinks) are placed first.
	for _, task := range sys.TaskGraph().Tasks() {
		incompatible := false
		minCost := InfTime()
		var minPair DevicePair
		for _, tree := range pathTrees {
			pair := tree.pair()
			proc := pair.Proc()
			nodeCost := m.singleNodeCost(task, pair, sys) + totalTime[proc]
			if !sys.IsCompatible(task, proc) || !sys.IsCompatible(task, pair.Mem()) {
				incompatible = true
			} else if nodeCost < minCost && task.AreaRequirement()+usedArea[proc] <= proc.MaximumCapacity() {
				minCost = nodeCost
				minPair = pair
			}
		}
		if incompatible {
			proc := minPair.Proc()
			mapping.Map(task, proc, minPair.Mem(), minPair.Mem())
			totalTime[proc] = minCost
			usedArea[proc] += task.AreaRequirement()

			for _, tree := range pathTrees {
				tree.resolveTask(task, mapping, true)
			}
		}
	}

	for len(pathTrees) > 0 && !pathTrees[0].empty() {
		maxTree := pathTrees[0]
		for _, tree := range pathTrees[1:] {
			if tree.weight() > maxTree.weight() {
				maxTree = tree
			}
		}
		maxPath := maxTree.maxPath()

		var pathArea Area
		for _, task := range maxPath.Tasks() {
			pathArea += task.AreaRequirement()
		}

		minMaxPathWeight := InfTime()
		var minMaxPair DevicePair
		for _, tree := range pathTrees {
			pair := tree.pair()
			pathWeight := tree.pathWeight(maxPath) + totalTime[pair.Proc()]
			if pathWeight < minMaxPathWeight && pathArea+usedArea[pair.Proc()] <= pair.Proc().MaximumCapacity() {
				minMaxPair = pair
				minMaxPathWeight = pathWeight
			}
		}

		usedArea[minMaxPair.Proc()] += pathArea
		totalTime[minMaxPair.Proc()] = minMaxPathWeight

		for _, task := range maxPath.Tasks() {
			mapping.Map(task, minMaxPair.Proc(), minMaxPair.Mem(), minMaxPair.Mem())
		}

		for _, tree := range pathTrees {
			tree.resolvePath(maxPath, mapping)
		}
	}

	return mapping
}

func (m *PathBasedMapper) singleNodeCost(task *Task, pair DevicePair, sys System) Time {
	return sys.TransactionTimeMs(task.InputSize(), pair.Mem(), pair.Proc()) +
		sys.ComputationTimeMs(task, pair.Proc()) +
		sys.TransactionTimeMs(task.OutputSize(), pair.Proc(), pair.Mem())
}
