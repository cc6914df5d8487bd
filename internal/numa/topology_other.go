//go:build !linux

package numa

// DetectTopology returns a single-node topology on non-Linux systems.
// macOS (M-series) and most non-server systems don't have NUMA.
func DetectTopology() (*Topology, error) {
	return SingleNode(), nil
}
