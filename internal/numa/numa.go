// Package numa detects the NUMA layout of the host and pins worker threads
// to the CPUs of a node so that each worker's partition is allocated and
// read from node-local memory.
package numa

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Topology represents the NUMA topology of the system.
type Topology struct {
	NumNodes int     // Number of NUMA nodes
	CPUs     [][]int // CPUs[nodeID] = list of CPU IDs on that node
}

// SingleNode is the fallback layout when sysfs exposes nothing useful.
func SingleNode() *Topology {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return &Topology{NumNodes: 1, CPUs: [][]int{cpus}}
}

// NodeForCPU returns the node owning cpu, or -1 if no node lists it.
func (t *Topology) NodeForCPU(cpu int) int {
	if cpu < 0 {
		return -1
	}
	for node, cpus := range t.CPUs {
		for _, c := range cpus {
			if c == cpu {
				return node
			}
		}
	}
	return -1
}

// NodeForWorker returns the node a worker is bound to. Workers are spread
// round-robin over the first nnodes nodes so that neighbouring partitions
// land on different memory controllers.
func (t *Topology) NodeForWorker(workerID, nnodes int) int {
	if nnodes <= 0 || nnodes > t.NumNodes {
		nnodes = t.NumNodes
	}
	if nnodes <= 1 {
		return 0
	}
	return workerID % nnodes
}

// String returns a human-readable representation of the topology.
func (t *Topology) String() string {
	if t.NumNodes == 1 {
		return "Single NUMA node (no NUMA)"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d NUMA nodes:\n", t.NumNodes))
	for i, cpus := range t.CPUs {
		sb.WriteString(fmt.Sprintf("  Node %d: CPUs %v\n", i, cpus))
	}
	return sb.String()
}

// CPUInfo summarises the processor the engine runs on.
type CPUInfo struct {
	Brand         string
	PhysicalCores int
	LogicalCores  int
	Usable        int
}

// Describe returns processor details for startup logging.
func Describe() CPUInfo {
	return CPUInfo{
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		Usable:        runtime.NumCPU(),
	}
}

// DefaultThreads is the worker count used when none is configured: one
// worker per usable logical CPU.
func DefaultThreads() int {
	n := runtime.NumCPU()
	if l := cpuid.CPU.LogicalCores; l > 0 && l < n {
		n = l
	}
	if n < 1 {
		n = 1
	}
	return n
}
