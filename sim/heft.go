package sim

import (
	"math"
	"slices"
	"sort"
)

// freeSlot is a [start, end) interval of a processor's timeline not yet
// committed to a scheduled task.
type freeSlot struct {
	start Time
	end   Time
}

// freeSlotList holds the ordered free intervals of one processor,
// initially [0, ∞).
type freeSlotList []freeSlot

func newFreeSlotList() freeSlotList {
	return freeSlotList{{start: 0, end: InfTime()}}
}

// claim removes [slot.start, slot.end) from the list, splitting the
// containing interval into at most two remainders.
func (l *freeSlotList) claim(slot freeSlot) {
	for i := range *l {
		if (*l)[i].end >= slot.end {
			prevStart := (*l)[i].start
			(*l)[i].start = slot.end
			if prevStart != slot.start {
				*l = slices.Insert(*l, i, freeSlot{start: prevStart, end: slot.start})
			}
			return
		}
	}
}

// ScheduledTask pairs a task with its planned start time.
type ScheduledTask struct {
	Start Time
	Task  *Task
}

// ScheduleMapper is a mapper that also exposes the start times it planned
// while mapping, so the exact list-scheduler linearisation can be costed.
type ScheduleMapper interface {
	Mapper
	Schedule() []ScheduledTask
}

// HEFTMapper implements Heterogeneous Earliest Finish Time: tasks are
// prioritised by upward rank and placed into the earliest sufficient
// free slot of the processor minimising their finish time.
type HEFTMapper struct {
	schedule []ScheduledTask
}

func NewHEFTMapper() *HEFTMapper { return &HEFTMapper{} }

// Schedule returns the planned (start, task) pairs of the last run in
// ascending start order.
func (m *HEFTMapper) Schedule() []ScheduledTask {
	sorted := append([]ScheduledTask(nil), m.schedule...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return sorted
}

func (m *HEFTMapper) TaskMapping(sys System) *Mapping {
	mapping := NewMapping()
	m.schedule = m.schedule[:0]

	tasks := sys.TaskGraph().Tasks()
	processors := sys.Platform().Processors()

	rank := make(map[*Task]Time)

	topsort := NewBFSSorting(sys.TaskGraph(), false)
	sortedElements := topsort.SortedElements()
	for i := len(sortedElements) - 1; i >= 0; i-- {
		task := sortedElements[i].Task()

		var avgComputation Time
		nbrCompatible := 0
		for _, proc := range processors {
			if sys.IsCompatible(task, proc) {
				avgComputation += sys.ComputationTimeMs(task, proc)
				nbrCompatible++
			}
		}
		if nbrCompatible == 0 {
			panic("sim: task has no compatible processor")
		}
		avgComputation /= Time(nbrCompatible)

		var r Time
		for _, succ := range task.Successors() {
			var avgCommunication Time
			nbrCompatibleComm := 0

			for _, proc := range processors {
				if !sys.IsCompatible(task, proc) {
					continue
				}
				for _, succProc := range processors {
					if !sys.IsCompatible(succ, succProc) {
						continue
					}
					transTime := sys.TransactionTimeMs(task.OutputSize(), proc.DefaultMemory(), succProc.DefaultMemory())
					if transTime < InfTime() {
						avgCommunication += transTime
						nbrCompatibleComm++
					}
				}
			}
			if nbrCompatibleComm > 0 {
				avgCommunication /= Time(nbrCompatibleComm)
			}

			r = max(r, rank[succ]+avgCommunication)
		}
		// The bump keeps ranks strictly decreasing along zero-duration edges.
		rank[task] = math.Nextafter(r+avgComputation, InfTime())
	}

	prioritized := append([]*Task(nil), tasks...)
	sort.SliceStable(prioritized, func(i, j int) bool { return rank[prioritized[i]] > rank[prioritized[j]] })

	scheduledFinishTime := make(map[*Task]Time)
	freeSlots := make(map[*Processor]freeSlotList)
	remainingArea := make(map[*Processor]Area)
	for _, proc := range processors {
		freeSlots[proc] = newFreeSlotList()
		if proc.HasMaximumCapacity() {
			remainingArea[proc] = proc.MaximumCapacity()
		}
	}

	for _, task := range prioritized {
		var minProc *Processor
		minSlot := freeSlot{start: 0, end: InfTime()}

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
					if finishTime < minSlot.end {
						minSlot = freeSlot{start: max(minStartTime, slot.start), end: finishTime}
						minProc = proc
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
	}

	return mapping
}
