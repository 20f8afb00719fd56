package sim

import (
	"container/heap"
	"sort"
)

// rankedTask orders the PEFT ready list by descending rank; ties go to
// the later-created task (higher guid) to keep runs reproducible.
type rankedTask struct {
	rank Time
	task *Task
}

type readyList []rankedTask

func (r readyList) Len() int { return len(r) }
func (r readyList) Less(i, j int) bool {
	if r[i].rank != r[j].rank {
		return r[i].rank > r[j].rank
	}
	return r[i].task.guid > r[j].task.guid
}
func (r readyList) Swap(i, j int) { r[i], r[j] = r[j], r[i] }
func (r *readyList) Push(x any)   { *r = append(*r, x.(rankedTask)) }
func (r *readyList) Pop() any {
	old := *r
	n := len(old)
	item := old[n-1]
	*r = old[:n-1]
	return item
}

// PEFTMapper implements Predict Earliest Finish Time: an Optimistic Cost
// Table ranks tasks, and placement minimises EFT plus the optimistic
// remaining cost on each candidate processor.
type PEFTMapper struct {
	schedule []ScheduledTask
}

func NewPEFTMapper() *PEFTMapper { return &PEFTMapper{} }

// Schedule returns the planned (start, task) pairs of the last run in
// ascending start order.
func (m *PEFTMapper) Schedule() []ScheduledTask {
	sorted := append([]ScheduledTask(nil), m.schedule...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return sorted
}

func (m *PEFTMapper) TaskMapping(sys System) *Mapping {
	mapping := NewMapping()
	m.schedule = m.schedule[:0]

	processors := sys.Platform().Processors()

	oct := make(map[*Task]map[*Processor]Time)
	rank := make(map[*Task]Time)
	dependencies := make(map[*Task]int)

	ready := &readyList{}

	topsort := NewBFSSorting(sys.TaskGraph(), false)
	sortedElements := topsort.SortedElements()
	for i := len(sortedElements) - 1; i >= 0; i-- {
		task := sortedElements[i].Task()
		octTask := make(map[*Processor]Time)
		oct[task] = octTask

		var r Time
		nbrCompatible := 0

		for _, proc := range processors {
			if !sys.IsCompatible(task, proc) {
				octTask[proc] = InfTime()
				continue
			}
			var maxSucc Time
			for _, succ := range task.Successors() {
				minProc := InfTime()
				for _, succProc := range processors {
					if !sys.IsCompatible(succ, succProc) {
						continue
					}
					candidate := oct[succ][succProc] +
						sys.ComputationTimeMs(succ, succProc) +
						sys.TransactionTimeMs(task.OutputSize(), proc.DefaultMemory(), succProc.DefaultMemory())
					minProc = min(minProc, candidate)
				}
				maxSucc = max(maxSucc, minProc)
			}

			octTask[proc] = maxSucc
			r += maxSucc
			nbrCompatible++
		}

		rank[task] = r / Time(nbrCompatible)

		if len(task.EdgesIn()) > 1 {
			dependencies[task] = len(task.EdgesIn())
		} else if len(task.EdgesIn()) == 0 {
			heap.Push(ready, rankedTask{rank: rank[task], task: task})
		}
	}

	scheduledFinishTime := make(map[*Task]Time)
	freeSlots := make(map[*Processor]freeSlotList)
	remainingArea := make(map[*Processor]Area)
	for _, proc := range processors {
		freeSlots[proc] = newFreeSlotList()
		if proc.HasMaximumCapacity() {
			remainingArea[proc] = proc.MaximumCapacity()
		}
	}

	for ready.Len() > 0 {
		task := (*ready)[0].task
		var minProc *Processor
		minSlot := freeSlot{start: 0, end: InfTime()}
		minOEFT := InfTime()

		for _, proc := range processors {
			if !sys.IsCompatible(task, proc) {
				continue
			}
			if proc.HasMaximumCapacity() && task.AreaRequirement() > remainingArea[proc] {
				continue
			}

			var minStartTime Time
			for _, e := range task.EdgesIn() {
				finish, ok := scheduledFinishTime[e.Src()]
				if !ok {
					panic("sim: predecessor scheduled after its successor")
				}
				minStartTime = max(minStartTime, finish+sys.TransactionTimeMs(e.Src().OutputSize(), mapping.MemOut(e.Src()), proc.DefaultMemory()))
			}
			if minStartTime == InfTime() {
				continue
			}

			for _, slot := range freeSlots[proc] {
				finishTime := max(minStartTime, slot.start) + sys.ComputationTimeMs(task, proc)
				if finishTime <= slot.end {
					oeft := finishTime + oct[task][proc]
					if oeft < minOEFT {
						minSlot = freeSlot{start: max(minStartTime, slot.start), end: finishTime}
						minProc = proc
						minOEFT = oeft
					}
					break
				}
			}
		}

		m.schedule = append(m.schedule, ScheduledTask{Start: minSlot.start, Task: task})

		if minProc == nil {
			panic("sim: no processor can host task " + task.Label())
		}
		slots := freeSlots[minProc]
		slots.claim(minSlot)
		freeSlots[minProc] = slots

		if minProc.HasMaximumCapacity() {
			remainingArea[minProc] -= task.AreaRequirement()
		}

		scheduledFinishTime[task] = minSlot.end
		mapping.MapToProcessor(task, minProc)

		heap.Pop(ready)
		for _, succ := range task.Successors() {
			if deps, ok := dependencies[succ]; !ok || deps == 1 {
				heap.Push(ready, rankedTask{rank: rank[succ], task: succ})
			} else {
				dependencies[succ]--
			}
		}
	}

	return mapping
}
