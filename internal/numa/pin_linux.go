//go:build linux

package numa

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinToNode locks the calling goroutine to its OS thread and restricts that
// thread to the CPUs of nodeID. Memory the thread touches first is then
// allocated on that node by the kernel's first-touch policy.
//
// The caller owns the thread lock for the rest of the goroutine's life.
func PinToNode(topo *Topology, nodeID int) error {
	runtime.LockOSThread()
	if topo == nil || nodeID < 0 || nodeID >= topo.NumNodes {
		return nil
	}
	cpus := topo.CPUs[nodeID]
	if len(cpus) == 0 {
		return nil
	}

	var set unix.CPUSet
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	return unix.SchedSetaffinity(0, &set)
}
