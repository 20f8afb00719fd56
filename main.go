// main.go
package main

import "github.com/HTI-OVGU/task-mapping-evaluator/cmd"

func main() {
	cmd.Execute()
}
