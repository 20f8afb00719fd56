package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// defaultMachineSpeedMBps is assumed for workflow machines without a CPU
// speed entry.
const defaultMachineSpeedMBps = 1200

type workflowFile struct {
	Workflow struct {
		Machines []workflowMachine `json:"machines"`
		Tasks    []workflowTask    `json:"tasks"`
	} `json:"workflow"`
}

type workflowMachine struct {
	NodeName string `json:"nodeName"`
	CPU      *struct {
		Speed *int64 `json:"speed"`
	} `json:"cpu"`
}

type workflowTask struct {
	Name             string   `json:"name"`
	RuntimeInSeconds *float64 `json:"runtimeInSeconds"`
	AvgCPU           *float64 `json:"avgCPU"`
	Machine          *string  `json:"machine"`
	Files            []struct {
		Link        string   `json:"link"`
		SizeInBytes DataSize `json:"sizeInBytes"`
	} `json:"files"`
	Children []string `json:"children"`
	Parents  []string `json:"parents"`
}

// BuildFromJSON ingests a WfCommons-style workflow description into a
// task graph. Task complexity is derived from the recorded runtime and
// machine speed; a missing field falls back to 1. Input defects are
// reported and yield an empty graph.
func BuildFromJSON(filename string, rng *rand.Rand) *TaskGraph {
	taskGraph := NewTaskGraph()
	tpprod := NewTaskPropertyProducer(rng)

	data, err := os.ReadFile(filename)
	if err != nil {
		logrus.Errorf("File not found %s", filename)
		return taskGraph
	}

	var parsed workflowFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		logrus.Errorf("Malformed workflow %s: %v", filename, err)
		return taskGraph
	}

	speed := make(map[string]int64)
	for _, machine := range parsed.Workflow.Machines {
		if machine.CPU != nil && machine.CPU.Speed != nil {
			speed[machine.NodeName] = *machine.CPU.Speed
		} else {
			speed[machine.NodeName] = defaultMachineSpeedMBps
		}
	}

	taskMap := make(map[string]*Task)
	for _, wfTask := range parsed.Workflow.Tasks {
		properties := tpprod.Properties()

		var cpuSpeedMBps float64 // MB/s
		if wfTask.Machine != nil {
			cpuSpeedMBps = float64(speed[*wfTask.Machine])
		}
		var runtimeS float64 // s
		if wfTask.RuntimeInSeconds != nil {
			runtimeS = *wfTask.RuntimeInSeconds
		}
		var avgCPU float64 // Percent
		if wfTask.AvgCPU != nil {
			avgCPU = *wfTask.AvgCPU
		}

		var outputSizeB DataSize // Byte
		var inputSizeB DataSize  // Byte
		for _, file := range wfTask.Files {
			if file.Link == "output" {
				outputSizeB += file.SizeInBytes
			} else {
				inputSizeB += file.SizeInBytes
			}
		}
		inputSizeB = max(inputSizeB, 1)

		complexity := ScaleFactor(1)
		if runtimeS > 0 && avgCPU > 0 && cpuSpeedMBps > 0 {
			complexity = runtimeS / (inputSizeB / 1024. / 1024. / (cpuSpeedMBps * avgCPU / 100.))
		}

		outputSizeMB := outputSizeB
		newTask := taskGraph.AddNode(NodeSpec{
			Complexity:        complexity,
			Parallelizability: properties.Parallelizability,
			Streamability:     properties.Streamability,
			SizeFunc: func([]DataSize) DataSize {
				return max(outputSizeMB/1024/1024, 1)
			},
		})
		taskMap[wfTask.Name] = newTask
	}

	// Workflows without children entries carry parents instead.
	useParents := len(parsed.Workflow.Tasks) > 0 && parsed.Workflow.Tasks[0].Children == nil

	for _, wfTask := range parsed.Workflow.Tasks {
		currTask := taskMap[wfTask.Name]

		if useParents {
			for _, parent := range wfTask.Parents {
				taskGraph.AddEdge(taskMap[parent], currTask)
			}
		} else {
			for _, child := range wfTask.Children {
				taskGraph.AddEdge(currTask, taskMap[child])
			}
		}
	}

	return taskGraph
}

// SizeFromJSON returns the task count of a workflow file, -1 on error.
func SizeFromJSON(filename string) int {
	data, err := os.ReadFile(filename)
	if err != nil {
		logrus.Errorf("File not found %s", filename)
		return -1
	}

	var parsed workflowFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		logrus.Errorf("Malformed workflow %s: %v", filename, err)
		return -1
	}
	return len(parsed.Workflow.Tasks)
}

// BenchmarkFolder reads the benchmark base folder from config/folders.cfg
// (a BENCHMARK_FOLDER="..." line).
func BenchmarkFolder() (string, error) {
	basefolder := ""
	if file, err := os.Open("config/folders.cfg"); err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.Contains(line, "BENCHMARK_FOLDER") {
				if start := strings.Index(line, "\""); start >= 0 {
					if end := strings.Index(line[start+1:], "\""); end >= 0 {
						basefolder = line[start+1 : start+1+end]
					}
				}
				break
			}
		}
	}

	if info, err := os.Stat(basefolder); basefolder == "" || err != nil || !info.IsDir() {
		return "", fmt.Errorf("base folder not found, create config/folders.cfg with BENCHMARK_FOLDER=<your folder>")
	}
	return basefolder, nil
}
