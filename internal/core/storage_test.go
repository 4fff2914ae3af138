package core

import (
	"context"
	"path/filepath"
	"testing"

	"menuboard/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreDefaultsToMemory(t *testing.T) {
	t.Setenv("MENUBOARD_STORAGE_DRIVER", "")
	t.Setenv("MENUBOARD_DELETE_POLICY", "cascade")
	store, err := OpenPersistentStore(context.Background(), NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mem, ok := store.(*MemoryStore)
	if !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	if mem.DeletePolicy() != DeleteCascade {
		t.Fatalf("expected cascade policy, got %v", mem.DeletePolicy())
	}
}

func TestOpenPersistentStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu.db")
	t.Setenv("MENUBOARD_STORAGE_DRIVER", string(StorageSQLite))
	t.Setenv("MENUBOARD_SQLITE_PATH", path)
	t.Setenv("MENUBOARD_DELETE_POLICY", "")
	store, err := OpenPersistentStore(context.Background(), NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	lite, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	t.Cleanup(func() { _ = lite.Close() })
	if lite.Path() != path {
		t.Fatalf("unexpected path %s", lite.Path())
	}

	svc := NewService(store)
	t.Cleanup(svc.Close)
	if _, err := svc.Load(context.Background(), drinksMenu()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := svc.FindProduct(12); !ok {
		t.Fatalf("expected product 12 after load")
	}
}

func TestOpenPersistentStoreRejectsBadConfig(t *testing.T) {
	t.Setenv("MENUBOARD_DELETE_POLICY", "")
	t.Setenv("MENUBOARD_STORAGE_DRIVER", "bolt")
	if _, err := OpenPersistentStore(context.Background(), nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}

	t.Setenv("MENUBOARD_STORAGE_DRIVER", "")
	t.Setenv("MENUBOARD_DELETE_POLICY", "shred")
	if _, err := OpenPersistentStore(context.Background(), nil); err == nil {
		t.Fatalf("expected delete policy error")
	}
}
