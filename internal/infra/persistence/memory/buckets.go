package memory

import (
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// Bucket names used by the snapshotting SQL stores. Each bucket holds one
// JSON document.
const (
	BucketCategories = "categories"
	BucketProducts   = "products"
	BucketSiblings   = "siblings"
	BucketSelection  = "selection"
	BucketLikes      = "likes"
)

// Buckets lists the snapshot buckets in write order.
var Buckets = []string{BucketCategories, BucketProducts, BucketSiblings, BucketSelection, BucketLikes}

type siblingBucket struct {
	Seq            uint64        `json:"seq"`
	LastCategoryID int           `json:"lastCategoryId,omitempty"`
	LastProductID  int           `json:"lastProductId,omitempty"`
	Lists          []siblingList `json:"lists"`
}

type siblingList struct {
	Parent   ParentKey       `json:"parent"`
	Children []SnapshotChild `json:"children"`
}

type likeBucket struct {
	Liked  []int       `json:"liked"`
	Counts map[int]int `json:"counts"`
}

// EncodeBuckets splits a snapshot into bucket payloads.
func EncodeBuckets(s Snapshot) (map[string][]byte, error) {
	sib := siblingBucket{
		Seq:            s.Seq,
		LastCategoryID: s.LastCategoryID,
		LastProductID:  s.LastProductID,
		Lists:          make([]siblingList, 0, len(s.Siblings)),
	}
	for key, children := range s.Siblings {
		sib.Lists = append(sib.Lists, siblingList{Parent: key, Children: children})
	}
	sort.Slice(sib.Lists, func(i, j int) bool {
		return parentLess(sib.Lists[i].Parent, sib.Lists[j].Parent)
	})

	values := map[string]any{
		BucketCategories: nonNilMap(s.Categories),
		BucketProducts:   nonNilMap(s.Products),
		BucketSiblings:   sib,
		BucketSelection:  s.Selection,
		BucketLikes:      likeBucket{Liked: s.Liked, Counts: nonNilMap(s.LikeCounts)},
	}
	out := make(map[string][]byte, len(values))
	for _, bucket := range Buckets {
		data, err := json.Marshal(values[bucket])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from bucket payloads. Unknown buckets and
// empty payloads are ignored.
func DecodeBuckets(payloads map[string][]byte) (Snapshot, error) {
	var (
		s     Snapshot
		sib   siblingBucket
		likes likeBucket
	)
	targets := map[string]any{
		BucketCategories: &s.Categories,
		BucketProducts:   &s.Products,
		BucketSiblings:   &sib,
		BucketSelection:  &s.Selection,
		BucketLikes:      &likes,
	}
	for bucket, payload := range payloads {
		target, ok := targets[bucket]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	s.Seq = sib.Seq
	s.LastCategoryID = sib.LastCategoryID
	s.LastProductID = sib.LastProductID
	if len(sib.Lists) > 0 {
		s.Siblings = make(map[ParentKey][]SnapshotChild, len(sib.Lists))
		for _, list := range sib.Lists {
			s.Siblings[list.Parent] = append(s.Siblings[list.Parent], list.Children...)
		}
	}
	s.Liked = likes.Liked
	s.LikeCounts = likes.Counts
	return s, nil
}

func parentLess(a, b ParentKey) bool {
	ai, aok := a.CategoryID()
	bi, bok := b.CategoryID()
	if aok != bok {
		return !aok
	}
	return ai < bi
}

func nonNilMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}
