package domain

import (
	"fmt"
	"strconv"
)

const rootKeyText = "root"

// ParentKey addresses one adjacency list. The zero value is the virtual root
// that holds every category without a parent.
type ParentKey struct {
	id  int
	set bool
}

// RootKey is the single sentinel used for the virtual root parent.
var RootKey = ParentKey{}

// ParentOf returns the key of the list owned by the given category.
func ParentOf(categoryID int) ParentKey {
	return ParentKey{id: categoryID, set: true}
}

// ParentKeyFor maps a nullable parent id onto a key.
func ParentKeyFor(parentID *int) ParentKey {
	if parentID == nil {
		return RootKey
	}
	return ParentOf(*parentID)
}

// IsRoot reports whether k is the virtual root.
func (k ParentKey) IsRoot() bool {
	return !k.set
}

// CategoryID returns the owning category id, or false for the root.
func (k ParentKey) CategoryID() (int, bool) {
	return k.id, k.set
}

// Ptr converts the key back into the nullable parent id form.
func (k ParentKey) Ptr() *int {
	if !k.set {
		return nil
	}
	id := k.id
	return &id
}

func (k ParentKey) String() string {
	if !k.set {
		return rootKeyText
	}
	return "category:" + strconv.Itoa(k.id)
}

// MarshalText encodes the key as "root" or the decimal category id, which also
// makes ParentKey usable as a JSON object key.
func (k ParentKey) MarshalText() ([]byte, error) {
	if !k.set {
		return []byte(rootKeyText), nil
	}
	return []byte(strconv.Itoa(k.id)), nil
}

// UnmarshalText decodes the MarshalText form.
func (k *ParentKey) UnmarshalText(text []byte) error {
	s := string(text)
	if s == rootKeyText || s == "" {
		*k = RootKey
		return nil
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("parent key %q: %w", s, err)
	}
	*k = ParentOf(id)
	return nil
}
