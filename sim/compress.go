package sim

import (
	"container/heap"
	"sort"
)

// indexHeap is a min-heap over element indices, ordering the frontier of
// edges that leave an in-progress pipeline.
type indexHeap []int

func (h indexHeap) Len() int            { return len(h) }
func (h indexHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)         { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// CompressStreamableSubtrees rewrites the ordering in place, substituting
// each maximal safe run of tasks pipelined on streamingProc by a single
// SubGraph element. A task joins a pipeline only when it is mapped to the
// streaming processor, is streamable, and stages through streaming-capable
// memories on both sides. The pass repeats until no compressible region
// remains; the index cache is invalidated on every rewrite.
func (s *TopologicalSorting) CompressStreamableSubtrees(mapping MappingReader, streamingProc *Processor) {
	for {
		var compressable *SubGraph

		dependencies := make(map[any]int)
		for _, elem := range s.sortedElements {
			if task := elem.Task(); task != nil {
				dependencies[task] = len(task.EdgesIn())
			} else if elem.Edge() != nil {
				dependencies[elem.key()] = 1
			}
		}

		wavefront := &indexHeap{}
		var pending []int // ascending, indices only ever grow
		pendingTasks := make(map[int]int)

		elemIdx := 0
		for elemIdx < len(s.sortedElements) {
			if wavefront.Len() > 0 && elemIdx > (*wavefront)[0] {
				break
			}

			elem := s.sortedElements[elemIdx]
			if dependencies[elem.key()] == 0 {
				if task := elem.Task(); task != nil {
					if mapping.Processor(task) == streamingProc &&
						task.IsStreamable() && mapping.MemIn(task).IsStreamingDevice() && mapping.MemOut(task).IsStreamingDevice() {

						for wavefront.Len() > 0 && elemIdx == (*wavefront)[0] {
							heap.Pop(wavefront)
						}
						pending = append(pending, elemIdx)

						for _, edge := range task.EdgesOut() {
							heap.Push(wavefront, s.index(edge))
							dependencies[edge]--
						}
					} else if len(pending) == 0 {
						for _, edge := range task.EdgesOut() {
							dependencies[edge]--
						}
					}
				}

				if edge := elem.Edge(); edge != nil {
					if wavefront.Len() > 0 && elemIdx == (*wavefront)[0] {
						heap.Pop(wavefront)
						pending = append(pending, elemIdx)
						pendingTasks[s.index(edge.Snk())] = elemIdx

						heap.Push(wavefront, s.index(edge.Snk()))
						dependencies[edge.Snk()]--
					} else {
						dependencies[edge.Snk()]--
					}
				}
			}

			if sub := elem.SubGraph(); sub != nil {
				if len(pending) == 0 {
					for _, edge := range sub.EdgesOut() {
						dependencies[edge]--
					}
				}
			}

			elemIdx++
		}

		if len(pending) > 0 {
			compressable = newSubGraph()
			s.subgraphs = append(s.subgraphs, compressable)

			// A task that entered pending through one of its edges must
			// stay out when its own index falls beyond the cut; shrink
			// the cut to before that edge.
			lastIdx := pending[len(pending)-1]
			taskIndices := make([]int, 0, len(pendingTasks))
			for taskIdx := range pendingTasks {
				taskIndices = append(taskIndices, taskIdx)
			}
			sort.Sort(sort.Reverse(sort.IntSlice(taskIndices)))
			for _, taskIdx := range taskIndices {
				if taskIdx <= lastIdx {
					break
				}
				lastIdx = min(lastIdx, pendingTasks[taskIdx]-1)
			}

			for _, idx := range pending {
				if idx > lastIdx {
					break
				}
				elem := s.sortedElements[idx]
				if task := elem.Task(); task != nil {
					compressable.addTask(task, mapping)
					for _, edge := range task.EdgesOut() {
						if s.index(edge) > lastIdx {
							compressable.addEdgeOut(edge)
						}
					}
				}
				if edge := elem.Edge(); edge != nil {
					compressable.addEdge(edge)
				}
			}
		}

		if compressable == nil {
			return
		}

		members := make(map[any]struct{})
		for _, task := range compressable.Tasks() {
			members[task] = struct{}{}
		}
		for _, edge := range compressable.Edges() {
			members[edge] = struct{}{}
		}

		s.sortedElements[s.index(compressable.Tasks()[0])] = subElement(compressable)

		kept := s.sortedElements[:0]
		for _, elem := range s.sortedElements {
			if _, ok := members[elem.key()]; ok {
				continue
			}
			kept = append(kept, elem)
		}
		s.sortedElements = kept
		s.dirty = true
	}
}
