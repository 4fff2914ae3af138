package memory

import (
	"slices"
	"testing"

	"menuboard/pkg/domain"
)

func TestBucketsRoundTrip(t *testing.T) {
	store := loadedStore(t)
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.ToggleLikeProduct(13)
		return err
	})
	payloads, err := EncodeBuckets(store.ExportState())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, bucket := range Buckets {
		if len(payloads[bucket]) == 0 {
			t.Fatalf("bucket %s is empty", bucket)
		}
	}

	decoded, err := DecodeBuckets(payloads)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	restored := NewStore(nil)
	restored.ImportState(decoded)
	if got := childIDs(restored.ChildrenOf(domain.RootKey)); !slices.Equal(got, []int{1, 2, 3}) {
		t.Fatalf("unexpected root children %v", got)
	}
	if !slices.Equal(decoded.Liked, []int{13}) || decoded.LikeCounts[3] != 1 {
		t.Fatalf("likes lost: %v %v", decoded.Liked, decoded.LikeCounts)
	}
	if decoded.Seq != store.ExportState().Seq {
		t.Fatalf("sibling sequence lost: %d", decoded.Seq)
	}
}

func TestDecodeBucketsIgnoresUnknownAndEmpty(t *testing.T) {
	s, err := DecodeBuckets(map[string][]byte{
		"legacy":         []byte("{"),
		BucketSelection:  nil,
		BucketCategories: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(s.Categories) != 0 || s.Siblings != nil {
		t.Fatalf("expected empty snapshot, got %+v", s)
	}

	if _, err := DecodeBuckets(map[string][]byte{BucketProducts: []byte("[")}); err == nil {
		t.Fatalf("expected decode error for corrupt bucket")
	}
}
