// Package sim computes task-to-device mappings for heterogeneous compute
// platforms and predicts their makespans.
//
// # Reading Guide
//
// Start with these files to understand the core:
//   - graph.go: the task graph with cached input/output size propagation
//   - platform.go / system.go: devices, transfer rates and the timing contract
//   - sorting.go / compress.go: topological element streams and the
//     streaming-compression pass
//   - evaluator.go: the non-preemptive schedule simulation behind every cost
//
// # Mappers
//
// Mapping strategies all implement the Mapper interface:
//   - greedy.go: label-constrained baseline (the CPU reference mapping)
//   - decomposition.go / policies.go / spd.go: series-parallel
//     decomposition driving iterative improvement
//   - heft.go / peft.go: list schedulers with insertion-based slot search
//   - annealing.go / genetic.go: metaheuristics
//   - pathbased.go: longest-path packing
//
// Mappers borrow the system immutably and return an owned Mapping; an
// empty mapping means "no solution this attempt". Randomised mappers take
// an explicit *rand.Rand (see rng.go) so a fixed seed reproduces results.
package sim
