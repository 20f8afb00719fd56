package sim

import (
	"fmt"
	"math"
	"os"
	"strings"
)

// genericKernel is the OpenCL template instantiated per generated kernel.
// Placeholders are replaced by GenerateKernel.
const genericKernel = `__kernel void KERNEL_NAME(unsigned int N, INPUT_PARAM __global unsigned int* res) {
    {
        const unsigned idx = get_global_id(0);
        VARIABLE_DECLARATION
        unsigned result = 1;
        for (int i = 0; i < PARALLEL_COMPLEXITY; ++i) {
            OPERATIONS
        }
        res[idx] = result;
    }
    if(SERIAL_EXISTS_AND get_global_id(0) == 0) {
        for (int idx = 0; idx < N; ++idx) {
            VARIABLE_DECLARATION
            unsigned result = 1;
            for (int i = 0; i < SERIAL_COMPLEXITY; ++i) {
                OPERATIONS
            }
            res[idx] = result;
        }
    }
}
`

// GenerateKernel writes an OpenCL kernel template for the given task
// characteristics under export/kernels/ unless it already exists, and
// returns the kernel name.
func GenerateKernel(complexity ScaleFactor, parallelizability Percent, nbrInputs int) (string, error) {
	kernelName := fmt.Sprintf("dummy_%d_%d_%d", int(complexity), int(parallelizability), nbrInputs)

	serialExists := ""
	if parallelizability == 100 {
		serialExists = "false && "
	}

	path := "export/kernels/" + kernelName + ".cl"
	if _, err := os.Stat(path); err == nil {
		return kernelName, nil
	}

	kernel := genericKernel
	kernel = strings.Replace(kernel, "KERNEL_NAME", kernelName, 1)
	kernel = strings.Replace(kernel, "SERIAL_EXISTS_AND ", serialExists, 1)
	kernel = strings.Replace(kernel, "PARALLEL_COMPLEXITY", fmt.Sprintf("%d", int(complexity*parallelizability)), 1)
	kernel = strings.Replace(kernel, "SERIAL_COMPLEXITY", fmt.Sprintf("%d", int(complexity*(100-parallelizability))), 1)

	paramName := 'a'
	var inputParam, operations, declaration strings.Builder
	for i := 0; i < nbrInputs; i++ {
		fmt.Fprintf(&inputParam, "__global unsigned int const* %c, ", paramName)
		fmt.Fprintf(&declaration, "const unsigned v%c = %c[idx]; ", paramName, paramName)
		fmt.Fprintf(&operations, "result = (result + v%c) %% 47;", paramName)
		paramName++
	}
	kernel = strings.Replace(kernel, "INPUT_PARAM", inputParam.String(), 1)
	kernel = strings.Replace(kernel, "VARIABLE_DECLARATION", declaration.String(), 1)
	kernel = strings.Replace(kernel, "VARIABLE_DECLARATION", declaration.String(), 1)
	kernel = strings.Replace(kernel, "OPERATIONS", operations.String(), 1)
	kernel = strings.Replace(kernel, "OPERATIONS", operations.String(), 1)

	if err := os.WriteFile(path, []byte(kernel), 0o644); err != nil {
		return kernelName, err
	}
	return kernelName, nil
}

// ExportGraph writes export/<label>.graph: a work-size header line and a
// CSV line per task (label, kernel, processor, work items, successors).
func ExportGraph(graph *TaskGraph, mapping MappingReader, label string) error {
	if err := os.MkdirAll("export/kernels", 0o755); err != nil {
		return err
	}
	f, err := os.Create("export/" + label + ".graph")
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintln(f, "262144") // 1 MB
	for _, task := range graph.Tasks() {
		// Ceil avoids distinct kernels with the same name.
		kernelName, err := GenerateKernel(math.Ceil(task.Complexity()), task.Parallelizability(), max(len(task.EdgesIn()), 1))
		if err != nil {
			return err
		}

		fmt.Fprintf(f, "%s,%s,%s,0", task.Label(), kernelName, mapping.Processor(task).Label())
		for _, edgeOut := range task.EdgesOut() {
			fmt.Fprintf(f, ",%s", edgeOut.Snk().Label())
		}
		fmt.Fprintln(f)
	}
	return nil
}
