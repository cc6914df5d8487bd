//go:build linux

package numa

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var sysfsNodePath = "/sys/devices/system/node"

// DetectTopology detects the NUMA topology on Linux systems.
// Returns a single-node topology if NUMA is not available.
func DetectTopology() (*Topology, error) {
	if _, err := os.Stat(sysfsNodePath); os.IsNotExist(err) {
		return SingleNode(), nil
	}

	nodes, err := filepath.Glob(filepath.Join(sysfsNodePath, "node[0-9]*"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob NUMA nodes: %w", err)
	}
	if len(nodes) == 0 {
		return SingleNode(), nil
	}
	sort.Slice(nodes, func(i, j int) bool { return nodeIndex(nodes[i]) < nodeIndex(nodes[j]) })

	topo := &Topology{
		NumNodes: len(nodes),
		CPUs:     make([][]int, len(nodes)),
	}
	for i, nodePath := range nodes {
		raw, err := os.ReadFile(filepath.Join(nodePath, "cpulist"))
		if err != nil {
			continue
		}
		cpus, err := parseCPUList(strings.TrimSpace(string(raw)))
		if err != nil {
			continue
		}
		topo.CPUs[i] = cpus
	}
	return topo, nil
}

func nodeIndex(path string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), "node"))
	if err != nil {
		return -1
	}
	return n
}

// parseCPUList parses Linux CPU list format (e.g., "0-3,8-11" or "0,2,4,6").
func parseCPUList(cpulist string) ([]int, error) {
	var cpus []int
	if cpulist == "" {
		return cpus, nil
	}

	for _, part := range strings.Split(cpulist, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.Split(part, "-")
			if len(bounds) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err1 := strconv.Atoi(strings.TrimSpace(bounds[0]))
			end, err2 := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("invalid range numbers: %s", part)
			}
			for i := start; i <= end; i++ {
				cpus = append(cpus, i)
			}
			continue
		}
		cpu, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid cpu number: %s", part)
		}
		cpus = append(cpus, cpu)
	}
	return cpus, nil
}
