package knowledge

import (
	"fmt"
	"time"

	"github.com/muninhq/munin/pkg/storage"
)

// ItemToNode converts an item to its stored node form. The embedding is left
// empty; callers that have one attach it before persisting.
func ItemToNode(item Item) *storage.Node {
	meta := item.Common()

	props := map[string]any{
		"title": meta.Title,
		"tags":  append([]string{}, meta.Tags...),
	}
	if !meta.Date.IsZero() {
		props["date"] = meta.Date
	}

	switch v := item.(type) {
	case *Decision:
		props["decision"] = v.Decision
		props["context"] = v.Context
	case *Incident:
		props["root_cause"] = v.RootCause
		props["symptoms"] = v.Symptoms
		props["resolution"] = v.Resolution
	case *MeetingRecord:
		props["decisions"] = append([]string{}, v.Decisions...)
	case *Snapshot:
		props["commit_message"] = v.CommitMessage
	}

	return &storage.Node{
		ID:             storage.NodeID(meta.ID),
		Labels:         []string{string(item.Type())},
		Properties:     props,
		Status:         meta.Status,
		AccessCount30d: meta.AccessCount30d,
		ReferenceCount: meta.ReferenceCount,
		CreatedAt:      meta.CreatedAt,
		UpdatedAt:      meta.UpdatedAt,
	}
}

// NodeToItem converts a stored node back to its typed item form.
func NodeToItem(node *storage.Node) (Item, error) {
	if node == nil {
		return nil, fmt.Errorf("nil node")
	}
	if len(node.Labels) == 0 {
		return nil, fmt.Errorf("node %s has no type label", node.ID)
	}

	meta := Meta{
		ID:             string(node.ID),
		Title:          stringProp(node, "title"),
		Tags:           stringsProp(node, "tags"),
		Status:         node.Status,
		Date:           timeProp(node, "date"),
		AccessCount30d: node.AccessCount30d,
		ReferenceCount: node.ReferenceCount,
		CreatedAt:      node.CreatedAt,
		UpdatedAt:      node.UpdatedAt,
	}

	switch ItemType(node.Labels[0]) {
	case TypeDecision:
		return &Decision{
			Meta:     meta,
			Decision: stringProp(node, "decision"),
			Context:  stringProp(node, "context"),
		}, nil
	case TypeIncident:
		return &Incident{
			Meta:       meta,
			RootCause:  stringProp(node, "root_cause"),
			Symptoms:   stringProp(node, "symptoms"),
			Resolution: stringProp(node, "resolution"),
		}, nil
	case TypeMeetingRecord:
		return &MeetingRecord{
			Meta:      meta,
			Decisions: stringsProp(node, "decisions"),
		}, nil
	case TypeSnapshot:
		return &Snapshot{
			Meta:          meta,
			CommitMessage: stringProp(node, "commit_message"),
		}, nil
	default:
		return nil, fmt.Errorf("node %s has unknown type label %q", node.ID, node.Labels[0])
	}
}

func stringProp(node *storage.Node, key string) string {
	if v, ok := node.Properties[key].(string); ok {
		return v
	}
	return ""
}

func stringsProp(node *storage.Node, key string) []string {
	switch v := node.Properties[key].(type) {
	case []string:
		return append([]string{}, v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func timeProp(node *storage.Node, key string) time.Time {
	if v, ok := node.Properties[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
