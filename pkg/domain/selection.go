package domain

import "slices"

// Selection is the current multi-selection. All members share one entity type
// and one parent. An empty Type means nothing is selected.
type Selection struct {
	Type         EntityType `json:"type,omitempty"`
	Parent       ParentKey  `json:"parent"`
	IDs          []int      `json:"ids"`
	LastSelected []int      `json:"lastSelected"`
}

// Empty reports whether no node is selected.
func (s Selection) Empty() bool {
	return len(s.IDs) == 0
}

// Contains reports whether the node of the given type is selected.
func (s Selection) Contains(entity EntityType, id int) bool {
	return s.Type == entity && slices.Contains(s.IDs, id)
}

// Clone returns a deep copy.
func (s Selection) Clone() Selection {
	return Selection{
		Type:         s.Type,
		Parent:       s.Parent,
		IDs:          slices.Clone(s.IDs),
		LastSelected: slices.Clone(s.LastSelected),
	}
}
