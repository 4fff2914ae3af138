package memory

import (
	"maps"
	"slices"
	"sort"

	"menuboard/pkg/domain"
)

// SnapshotChild is an adjacency entry with its insertion sequence.
type SnapshotChild struct {
	ID    int               `json:"id"`
	Type  domain.EntityType `json:"type"`
	Order int               `json:"order"`
	Seq   uint64            `json:"seq"`
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Categories map[int]Category              `json:"categories"`
	Products   map[int]Product               `json:"products"`
	Siblings   map[ParentKey][]SnapshotChild `json:"siblings"`
	Selection  Selection                     `json:"selection"`
	Liked      []int                         `json:"liked"`
	LikeCounts map[int]int                   `json:"likeCounts"`
	Seq        uint64                        `json:"seq"`
	// Id high-water marks for locally assigned ids.
	LastCategoryID int `json:"lastCategoryId,omitempty"`
	LastProductID  int `json:"lastProductId,omitempty"`
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Categories: make(map[int]Category, len(state.categories)),
		Products:   make(map[int]Product, len(state.products)),
		Siblings:   make(map[ParentKey][]SnapshotChild, len(state.siblings)),
		Selection:  state.selection.Clone(),
		Liked:      make([]int, 0, len(state.liked)),
		LikeCounts: maps.Clone(state.likeCounts),
		Seq:        state.seq,

		LastCategoryID: state.lastCategoryID,
		LastProductID:  state.lastProductID,
	}
	for id, c := range state.categories {
		s.Categories[id] = cloneCategory(c)
	}
	for id, p := range state.products {
		s.Products[id] = cloneProduct(p)
	}
	for key, entries := range state.siblings {
		out := make([]SnapshotChild, 0, len(entries))
		for _, entry := range entries {
			out = append(out, SnapshotChild{ID: entry.ID, Type: entry.Type, Order: entry.Order, Seq: entry.seq})
		}
		s.Siblings[key] = out
	}
	for id := range state.liked {
		s.Liked = append(s.Liked, id)
	}
	sort.Ints(s.Liked)
	if s.LikeCounts == nil {
		s.LikeCounts = make(map[int]int)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	state.seq = s.Seq
	state.lastCategoryID = s.LastCategoryID
	state.lastProductID = s.LastProductID
	for id, c := range s.Categories {
		state.categories[id] = cloneCategory(c)
	}
	for id, p := range s.Products {
		state.products[id] = cloneProduct(p)
	}
	for key, entries := range s.Siblings {
		out := make([]childEntry, 0, len(entries))
		for _, entry := range entries {
			out = append(out, childEntry{Child: Child{ID: entry.ID, Type: entry.Type, Order: entry.Order}, seq: entry.Seq})
		}
		state.siblings[key] = out
		state.sortSiblings(key)
	}
	for _, id := range s.Liked {
		state.liked[id] = struct{}{}
	}
	maps.Copy(state.likeCounts, s.LikeCounts)
	state.selection = s.Selection.Clone()
	return state
}

// normalizeSnapshot repairs snapshots written by older builds or edited by
// hand: stale adjacency entries are dropped, missing ones appended, child
// orders resynced, likes and selection filtered to existing records, and like
// counters recomputed.
func normalizeSnapshot(snapshot Snapshot) Snapshot {
	out := Snapshot{
		Categories: make(map[int]Category, len(snapshot.Categories)),
		Products:   make(map[int]Product, len(snapshot.Products)),
		Siblings:   make(map[ParentKey][]SnapshotChild, len(snapshot.Siblings)),
		LikeCounts: make(map[int]int),
		Seq:        snapshot.Seq,

		LastCategoryID: snapshot.LastCategoryID,
		LastProductID:  snapshot.LastProductID,
	}
	for id, c := range snapshot.Categories {
		c.CategoryID = id
		out.Categories[id] = cloneCategory(c)
	}
	for id, p := range snapshot.Products {
		p.ProductID = id
		out.Products[id] = cloneProduct(p)
	}

	type entityKey struct {
		entity domain.EntityType
		id     int
	}
	listed := make(map[entityKey]struct{})
	keyOf := func(entity domain.EntityType, id int) entityKey {
		return entityKey{entity: entity, id: id}
	}
	for key, entries := range snapshot.Siblings {
		kept := make([]SnapshotChild, 0, len(entries))
		for _, entry := range entries {
			order, parent, ok := lookupEntity(out, entry.Type, entry.ID)
			if !ok || parent != key {
				continue
			}
			k := keyOf(entry.Type, entry.ID)
			if _, dup := listed[k]; dup {
				continue
			}
			listed[k] = struct{}{}
			entry.Order = order
			if entry.Seq > out.Seq {
				out.Seq = entry.Seq
			}
			kept = append(kept, entry)
		}
		if len(kept) > 0 {
			out.Siblings[key] = kept
		}
	}

	appendMissing := func(entity domain.EntityType, id, order int, parent ParentKey) {
		if _, ok := listed[keyOf(entity, id)]; ok {
			return
		}
		out.Seq++
		out.Siblings[parent] = append(out.Siblings[parent], SnapshotChild{ID: id, Type: entity, Order: order, Seq: out.Seq})
	}
	for _, id := range sortedKeys(out.Categories) {
		c := out.Categories[id]
		appendMissing(domain.EntityCategory, id, c.Order, c.Parent())
	}
	for _, id := range sortedKeys(out.Products) {
		p := out.Products[id]
		appendMissing(domain.EntityProduct, id, p.Order, p.Parent())
	}

	liked := make([]int, 0, len(snapshot.Liked))
	for _, id := range snapshot.Liked {
		if _, ok := out.Products[id]; ok && !slices.Contains(liked, id) {
			liked = append(liked, id)
		}
	}
	sort.Ints(liked)
	out.Liked = liked

	state := memoryStateFromSnapshot(Snapshot{Categories: out.Categories, Products: out.Products})
	for _, id := range liked {
		for _, ancestor := range state.ancestorIDs(out.Products[id].Parent()) {
			out.LikeCounts[ancestor]++
		}
	}

	out.Selection = normalizeSelection(out, snapshot.Selection)
	return out
}

func normalizeSelection(s Snapshot, sel Selection) Selection {
	if sel.Type != domain.EntityCategory && sel.Type != domain.EntityProduct {
		return Selection{}
	}
	stale := func(id int) bool {
		_, parent, ok := lookupEntity(s, sel.Type, id)
		return !ok || parent != sel.Parent
	}
	sel = sel.Clone()
	sel.IDs = slices.DeleteFunc(sel.IDs, stale)
	sel.LastSelected = slices.DeleteFunc(sel.LastSelected, stale)
	if len(sel.IDs) == 0 {
		return Selection{}
	}
	return sel
}

func lookupEntity(s Snapshot, entity domain.EntityType, id int) (int, ParentKey, bool) {
	switch entity {
	case domain.EntityCategory:
		c, ok := s.Categories[id]
		return c.Order, c.Parent(), ok
	case domain.EntityProduct:
		p, ok := s.Products[id]
		return p.Order, p.Parent(), ok
	default:
		return 0, ParentKey{}, false
	}
}

func sortedKeys[T any](records map[int]T) []int {
	keys := make([]int, 0, len(records))
	for id := range records {
		keys = append(keys, id)
	}
	sort.Ints(keys)
	return keys
}
