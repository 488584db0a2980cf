package graph

import (
	"sort"

	"github.com/muninhq/munin/pkg/knowledge"
)

// ExportNode is the flattened node form returned by Export.
type ExportNode struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Tags           []string `json:"tags"`
	Status         string   `json:"status"`
	ReferenceCount int64    `json:"reference_count"`
}

// ExportEdge is the flattened edge form returned by Export.
type ExportEdge struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	Type          string  `json:"type"`
	Strength      float64 `json:"strength"`
	AutoGenerated bool    `json:"auto_generated"`
}

// ExportResult is the node/edge set for visualization.
type ExportResult struct {
	Nodes []ExportNode `json:"nodes"`
	Edges []ExportEdge `json:"edges"`
}

// Export returns the graph, optionally excluding archived items. When
// maxNodes > 0 the node set is capped, keeping the most-referenced nodes
// first (ties broken by ID). Edges with an endpoint outside the kept node
// set are dropped.
func (g *Graph) Export(includeArchived bool, maxNodes int) (*ExportResult, error) {
	nodes, err := g.engine.GetAllNodes()
	if err != nil {
		return nil, err
	}

	exported := make([]ExportNode, 0, len(nodes))
	for _, node := range nodes {
		if !includeArchived && node.Status == knowledge.StatusArchived {
			continue
		}
		item, err := knowledge.NodeToItem(node)
		if err != nil {
			continue // non-item node, nothing to export
		}
		meta := item.Common()
		exported = append(exported, ExportNode{
			ID:             meta.ID,
			Type:           string(item.Type()),
			Title:          meta.Title,
			Tags:           meta.Tags,
			Status:         meta.Status,
			ReferenceCount: meta.ReferenceCount,
		})
	}

	sort.Slice(exported, func(i, j int) bool {
		if exported[i].ReferenceCount != exported[j].ReferenceCount {
			return exported[i].ReferenceCount > exported[j].ReferenceCount
		}
		return exported[i].ID < exported[j].ID
	})

	if maxNodes > 0 && len(exported) > maxNodes {
		exported = exported[:maxNodes]
	}

	kept := make(map[string]struct{}, len(exported))
	for _, n := range exported {
		kept[n.ID] = struct{}{}
	}

	edges, err := g.engine.GetAllEdges()
	if err != nil {
		return nil, err
	}

	exportedEdges := []ExportEdge{}
	for _, e := range edges {
		if _, ok := kept[string(e.StartNode)]; !ok {
			continue
		}
		if _, ok := kept[string(e.EndNode)]; !ok {
			continue
		}
		exportedEdges = append(exportedEdges, ExportEdge{
			From:          string(e.StartNode),
			To:            string(e.EndNode),
			Type:          e.Type,
			Strength:      e.Strength,
			AutoGenerated: e.AutoGenerated,
		})
	}

	sort.Slice(exportedEdges, func(i, j int) bool {
		if exportedEdges[i].From != exportedEdges[j].From {
			return exportedEdges[i].From < exportedEdges[j].From
		}
		return exportedEdges[i].To < exportedEdges[j].To
	})

	return &ExportResult{Nodes: exported, Edges: exportedEdges}, nil
}
