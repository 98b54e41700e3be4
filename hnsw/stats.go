package hnsw

// GraphStats is a point-in-time summary of the graph shape, collected after
// a build for logging and diagnostics.
type GraphStats struct {
	Nodes         int    // Total number of elements
	MaxLayer      int    // Highest occupied layer
	EntryPoint    uint32 // Node the searches start from
	NodesPerLayer []int  // Element count by the node's top layer
	LinksPerLayer []int  // Link count by layer
}

// Stats walks the graph and collects its shape.
func (h *HNSW) Stats() GraphStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := GraphStats{
		Nodes:         len(h.nodes),
		MaxLayer:      h.maxLevel,
		EntryPoint:    h.ep,
		NodesPerLayer: make([]int, h.maxLevel+1),
		LinksPerLayer: make([]int, h.maxLevel+1),
	}

	for _, node := range h.nodes {
		if node.Layer <= h.maxLevel {
			s.NodesPerLayer[node.Layer]++
		}

		for level, conns := range node.Connections {
			if level <= h.maxLevel {
				s.LinksPerLayer[level] += len(conns)
			}
		}
	}

	return s
}
