package sim

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// DrawGraph dumps the task graph with its mapping and simulated schedule
// as results/<outputFilename>.gv and renders a PDF when dot is available.
func DrawGraph(taskGraph *TaskGraph, mapping MappingReader, outputFilename string, log *EvaluationLog) {
	var b strings.Builder
	b.WriteString("digraph G {\n")

	taskIdx := make(map[*Task]int)
	for i, task := range taskGraph.Tasks() {
		taskIdx[task] = i
		b.WriteString(fmt.Sprintf("%d [label=%q];\n", i, taskLabel(task, mapping, log)))
	}

	for _, edge := range taskGraph.Edges() {
		b.WriteString(fmt.Sprintf("%d->%d [label=%q];\n", taskIdx[edge.Src()], taskIdx[edge.Snk()], edgeLabel(edge, log)))
	}

	b.WriteString("}\n")
	writeGraphviz(outputFilename, b.String())
}

func taskLabel(task *Task, mapping MappingReader, log *EvaluationLog) string {
	label := ""
	if mapping.Contains(task) {
		memInLabel := mapping.MemIn(task).Label()
		memOutLabel := mapping.MemOut(task).Label()
		label += mapping.Processor(task).Label() + "\n" + memInLabel
		if memInLabel != memOutLabel {
			label += " -- " + memOutLabel
		}
	}
	label += fmt.Sprintf("\np=%.2f, c=%d, s=%d", task.Parallelizability()/100, int64(task.Complexity()), int64(task.Streamability()))
	if log != nil && log.ContainsTask(task) {
		r := log.TaskRange(task)
		label += fmt.Sprintf("\n%dms -- %dms", int64(r.StartTimeMs), int64(r.EndTimeMs))
	}
	return label
}

func edgeLabel(edge *Edge, log *EvaluationLog) string {
	if log == nil || !log.ContainsEdge(edge) {
		return ""
	}
	r := log.EdgeRange(edge)
	label := fmt.Sprintf(" %dms", int64(r.StartTimeMs))
	if r.StartTimeMs != r.EndTimeMs {
		label += fmt.Sprintf(" -- %dms", int64(r.EndTimeMs))
	}
	return label
}

// DrawHardwareGraph dumps the platform's devices and links.
func DrawHardwareGraph(platform *Platform, outputFilename string) {
	var devices []Device
	for _, mem := range platform.Memories() {
		devices = append(devices, mem)
	}
	for _, proc := range platform.Processors() {
		devices = append(devices, proc)
	}

	var b strings.Builder
	b.WriteString("graph G {\n")

	deviceIdx := make(map[Device]int)
	for i, device := range devices {
		deviceIdx[device] = i
		b.WriteString(fmt.Sprintf("%d [label=%q];\n", i, fmt.Sprintf("%s\n%d MB/s", device.Label(), int64(device.DataMovementRateMBps()))))
	}

	for _, dev1 := range devices {
		for _, dev2 := range devices {
			if deviceIdx[dev2] <= deviceIdx[dev1] {
				continue
			}
			rate := platform.TransferRateMBps(dev1, dev2)
			if rate > 0 && rate < InfRate() {
				b.WriteString(fmt.Sprintf("%d--%d [label=%q];\n", deviceIdx[dev1], deviceIdx[dev2], fmt.Sprintf("%d MB/s", int64(rate))))
			}
		}
	}

	b.WriteString("}\n")
	writeGraphviz(outputFilename, b.String())
}

// DrawDecomposition dumps the SP-forest of a decomposition.
func DrawDecomposition(d *SeriesParallelDecomposition, outputFilename string) {
	var b strings.Builder
	b.WriteString("digraph G {\n")

	opIdx := make(map[*SPOperation]int)
	next := 0
	var register func(op *SPOperation)
	register = func(op *SPOperation) {
		opIdx[op] = next
		b.WriteString(fmt.Sprintf("%d [label=%q];\n", next, spOperationLabel(op)))
		next++
		for _, elem := range op.Elements() {
			register(elem)
		}
	}
	for _, root := range d.Roots() {
		register(root)
	}

	var connect func(op *SPOperation)
	connect = func(op *SPOperation) {
		for _, elem := range op.Elements() {
			b.WriteString(fmt.Sprintf("%d->%d;\n", opIdx[op], opIdx[elem]))
			connect(elem)
		}
	}
	for _, root := range d.Roots() {
		connect(root)
	}

	b.WriteString("}\n")
	writeGraphviz(outputFilename, b.String())
}

func spOperationLabel(op *SPOperation) string {
	var label string
	switch op.Type() {
	case SPEdge:
		label = "EDGE"
	case SPSeries:
		label = "SERIES"
	case SPParallel:
		label = "PARALLEL"
	}
	frontLabel := "Start"
	if op.Front() != nil {
		frontLabel = op.Front().Label()
	}
	backLabel := "End"
	if op.Back() != nil {
		backLabel = op.Back().Label()
	}
	return label + "\n" + frontLabel + "\n-- " + backLabel
}

// writeGraphviz writes the .gv file and converts it to PDF via dot;
// a failing conversion is ignored.
func writeGraphviz(outputFilename, content string) {
	os.MkdirAll("results", 0o755)
	outputPath := "results/" + outputFilename
	if err := os.WriteFile(outputPath+".gv", []byte(content), 0o644); err != nil {
		return
	}

	pdf, err := os.Create(outputPath + ".pdf")
	if err != nil {
		return
	}
	defer pdf.Close()

	cmd := exec.Command("dot", "-Tpdf", outputPath+".gv")
	cmd.Stdout = pdf
	_ = cmd.Run()
}
