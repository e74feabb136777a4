package graphdb

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sort"
	"strings"
)

// DuplicateSet is a group of nodes sharing a label set and name.
type DuplicateSet struct {
	Labels  []string
	Name    string
	NodeIDs []string
}

// MergeReport summarizes a MergeAll run.
type MergeReport struct {
	Groups   int      `json:"groups"`
	Removed  int      `json:"removed"`
	Edges    int      `json:"edges"`
	Failures []string `json:"failures,omitempty"`
}

type node struct {
	id    string
	props map[string]any
}

const findDuplicatesQuery = `MATCH (n) WHERE n.name IS NOT NULL
WITH labels(n) AS labels, n.name AS name, collect(id(n)) AS ids
WHERE size(ids) > 1
RETURN labels, name, ids`

// FindDuplicates lists every (labels, name) pair held by more than one node.
func (s *Store) FindDuplicates(ctx context.Context) ([]DuplicateSet, error) {
	rows, err := s.exec.Execute(ctx, findDuplicatesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}

	var sets []DuplicateSet
	for _, row := range rows {
		set := DuplicateSet{
			Labels:  toStrings(row["labels"]),
			Name:    toString(row["name"]),
			NodeIDs: toStrings(row["ids"]),
		}
		if len(set.NodeIDs) < 2 {
			continue
		}
		sort.Strings(set.Labels)
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool {
		a, b := strings.Join(sets[i].Labels, ":"), strings.Join(sets[j].Labels, ":")
		if a != b {
			return a < b
		}
		return sets[i].Name < sets[j].Name
	})
	return sets, nil
}

// MergeDuplicates collapses set into a single node.
//
// The surviving node is the oldest by created_at (then by id). The other
// nodes' properties are laid over it in updated_at order, so the most
// recently updated value wins; trace ids are unioned and the survivor keeps
// its own id property. Every relationship from or to a removed node is
// recreated on the survivor unless its other end is also in the set, then
// the removed nodes are detach-deleted. It returns the number of
// relationships created on the survivor; ones it already had are not counted.
func (s *Store) MergeDuplicates(ctx context.Context, set DuplicateSet) (int, error) {
	if len(set.NodeIDs) < 2 {
		return 0, nil
	}

	rows, err := s.exec.Execute(ctx,
		`MATCH (n) WHERE id(n) IN $ids RETURN id(n) AS id, properties(n) AS props`,
		map[string]any{"ids": set.NodeIDs})
	if err != nil {
		return 0, fmt.Errorf("load duplicate nodes: %w", err)
	}
	nodes := make([]node, 0, len(rows))
	for _, row := range rows {
		props, _ := row["props"].(map[string]any)
		if props == nil {
			props = map[string]any{}
		}
		nodes = append(nodes, node{id: toString(row["id"]), props: props})
	}
	if len(nodes) < 2 {
		return 0, nil
	}

	first, dups := orderForMerge(nodes)
	merged := overlay(first, dups)

	if _, err := s.exec.Execute(ctx,
		`MATCH (n) WHERE id(n) = $id SET n += $props`,
		map[string]any{"id": first.id, "props": merged}); err != nil {
		return 0, fmt.Errorf("update surviving node %s: %w", first.id, err)
	}

	group := make([]string, 0, len(nodes))
	dupIDs := make([]string, 0, len(dups))
	group = append(group, first.id)
	for _, d := range dups {
		group = append(group, d.id)
		dupIDs = append(dupIDs, d.id)
	}

	edges, err := s.reattach(ctx, first.id, dupIDs, group)
	if err != nil {
		return edges, err
	}

	if _, err := s.exec.ExecuteVerbatim(ctx,
		`MATCH (n) WHERE id(n) IN $ids DETACH DELETE n`,
		map[string]any{"ids": dupIDs}); err != nil {
		return edges, fmt.Errorf("delete duplicates: %w", err)
	}
	return edges, nil
}

func (s *Store) reattach(ctx context.Context, firstID string, dupIDs, group []string) (int, error) {
	params := map[string]any{"dups": dupIDs, "group": group}
	directions := []struct {
		outgoing bool
		query    string
	}{
		{true, `MATCH (d)-[r]->(o) WHERE id(d) IN $dups AND NOT id(o) IN $group
RETURN id(o) AS other, type(r) AS type, properties(r) AS props`},
		{false, `MATCH (o)-[r]->(d) WHERE id(d) IN $dups AND NOT id(o) IN $group
RETURN id(o) AS other, type(r) AS type, properties(r) AS props`},
	}

	inGroup := make(map[string]bool, len(group))
	for _, id := range group {
		inGroup[id] = true
	}

	created := 0
	for _, dir := range directions {
		rows, err := s.exec.Execute(ctx, dir.query, params)
		if err != nil {
			return created, fmt.Errorf("load relationships: %w", err)
		}
		for _, row := range rows {
			other := toString(row["other"])
			// Edges inside the group would become self-loops.
			if other == "" || inGroup[other] {
				continue
			}
			rel := Identifier(toString(row["type"]), "RELATED_TO")
			props, _ := row["props"].(map[string]any)
			if props == nil {
				props = map[string]any{}
			}

			existing, pattern := "(f)-[:"+rel+"]->(o)", "(f)-[r:"+rel+"]->(o)"
			if !dir.outgoing {
				existing, pattern = "(o)-[:"+rel+"]->(f)", "(o)-[r:"+rel+"]->(f)"
			}
			query := "MATCH (f), (o) WHERE id(f) = $first AND id(o) = $other AND NOT " + existing +
				"\nCREATE " + pattern + "\nSET r = $props\nRETURN count(r) AS created"
			res, err := s.exec.Execute(ctx, query, map[string]any{
				"first": firstID, "other": other, "props": props,
			})
			if err != nil {
				return created, fmt.Errorf("recreate %s relationship: %w", rel, err)
			}
			if len(res) > 0 {
				created += toInt(res[0]["created"])
			}
		}
	}
	return created, nil
}

// MergeAll finds every duplicate set and merges each one. A failed set is
// logged and recorded; the rest still run.
func (s *Store) MergeAll(ctx context.Context) (*MergeReport, error) {
	sets, err := s.FindDuplicates(ctx)
	if err != nil {
		return nil, err
	}

	report := &MergeReport{}
	for _, set := range sets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Groups++
		edges, err := s.MergeDuplicates(ctx, set)
		report.Edges += edges
		if err != nil {
			msg := fmt.Sprintf("%s %q: %v", strings.Join(set.Labels, ":"), set.Name, err)
			log.Printf("graph: merge failed for %s", msg)
			report.Failures = append(report.Failures, msg)
			continue
		}
		report.Removed += len(set.NodeIDs) - 1
	}
	return report, nil
}

// orderForMerge picks the surviving node and orders the rest for overlay.
func orderForMerge(nodes []node) (node, []node) {
	sorted := slices.Clone(nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := toString(sorted[i].props["created_at"]), toString(sorted[j].props["created_at"])
		if ci != cj {
			return ci < cj
		}
		return sorted[i].id < sorted[j].id
	})
	first := sorted[0]
	dups := sorted[1:]
	sort.SliceStable(dups, func(i, j int) bool {
		ui, uj := toString(dups[i].props["updated_at"]), toString(dups[j].props["updated_at"])
		if ui != uj {
			return ui < uj
		}
		return dups[i].id < dups[j].id
	})
	return first, dups
}

// overlay lays each duplicate's properties over first's, in order.
func overlay(first node, dups []node) map[string]any {
	merged := make(map[string]any, len(first.props))
	for k, v := range first.props {
		merged[k] = v
	}
	trace := toString(first.props["trace_id"])
	for _, d := range dups {
		for k, v := range d.props {
			switch k {
			case "id":
				continue
			case "trace_id":
				for _, t := range strings.Split(toString(v), ",") {
					trace = AppendTraceID(trace, t)
				}
			default:
				merged[k] = v
			}
		}
	}
	if trace != "" {
		merged["trace_id"] = trace
	}
	return merged
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func toInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}

func toStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s := toString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{x}
	}
	return nil
}
