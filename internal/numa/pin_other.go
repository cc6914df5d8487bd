//go:build !linux

package numa

import "runtime"

// PinToNode locks the calling goroutine to its OS thread. CPU affinity is
// not available on this platform.
func PinToNode(topo *Topology, nodeID int) error {
	runtime.LockOSThread()
	return nil
}
