package aggregate

import (
	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

// Grouper folds a stream of documents into grouped records. Documents must be
// added in ingestion order so "first" means earliest.
type Grouper struct {
	q      GroupQuery
	index  map[string]int
	groups []*group
}

type group struct {
	values []string
	first  map[string]any
	count  int64
}

func NewGrouper(q GroupQuery) *Grouper {
	return &Grouper{q: q, index: make(map[string]int)}
}

func (g *Grouper) Add(doc map[string]any) {
	values := make([]string, len(g.q.GroupBy))
	for i, f := range g.q.GroupBy {
		v, _ := Lookup(doc, f)
		values[i] = types.KeyString(v)
	}
	key := types.JoinKey(values...)
	if idx, ok := g.index[key]; ok {
		g.groups[idx].count++
		return
	}
	first := make(map[string]any, len(g.q.First))
	for _, f := range g.q.First {
		v, _ := Lookup(doc, f)
		first[f] = v
	}
	g.index[key] = len(g.groups)
	g.groups = append(g.groups, &group{values: values, first: first, count: 1})
}

func (g *Grouper) Len() int { return len(g.groups) }

func (g *Grouper) Records() []types.RawRecord {
	out := make([]types.RawRecord, 0, len(g.groups))
	for _, grp := range g.groups {
		rec := make(types.RawRecord, len(g.q.GroupBy)+len(g.q.First)+1)
		for f, v := range grp.first {
			rec[f] = v
		}
		for i, f := range g.q.GroupBy {
			rec[f] = grp.values[i]
		}
		rec[types.CountField] = grp.count
		out = append(out, rec)
	}
	return out
}

// GroupDocuments groups an in-memory, ingestion-ordered slice of documents.
func GroupDocuments(docs []map[string]any, q GroupQuery) []types.RawRecord {
	g := NewGrouper(q)
	for _, d := range docs {
		g.Add(d)
	}
	return g.Records()
}
