package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"menuboard/internal/infra/persistence/memory"
	"menuboard/internal/infra/persistence/postgres/testutil"
	"menuboard/pkg/domain"
)

func intPtr(v int) *int { return &v }

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreCreatesStateTable(t *testing.T) {
	_, conn := openStub(t)
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got execs: %v", conn.Execs)
	}
}

func TestRunInTransactionPersistsAndHydrates(t *testing.T) {
	store, conn := openStub(t)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.Load(domain.Menu{
			Categories: []domain.Category{{CategoryID: 1, Description: "Desserts"}, {CategoryID: 2, ParentID: intPtr(1), Order: 3}},
			Products:   []domain.Product{{ProductID: 5, CategoryID: 2, Label: "Tarte"}},
		})
	}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(conn.Buckets); got != len(memory.Buckets) {
		t.Fatalf("expected %d bucket rows, got %d", len(memory.Buckets), got)
	}

	db := store.DB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	reopened, err := NewStore(ctx, "ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := reopened.GetProduct(5); !ok {
		t.Fatalf("expected product hydrated from state buckets")
	}
	children := reopened.ChildrenOf(domain.ParentOf(1))
	if len(children) != 1 || children[0].ID != 2 || children[0].Order != 3 {
		t.Fatalf("unexpected hydrated children %+v", children)
	}
}

func TestRunInTransactionPersistErrorWhenExecFails(t *testing.T) {
	store, conn := openStub(t)
	conn.FailExec = true
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return nil }); err == nil {
		t.Fatalf("expected persistence error when exec fails")
	}
}

func TestRunInTransactionStopsOnUserError(t *testing.T) {
	store, conn := openStub(t)
	userErr := errors.New("user fail")
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return userErr }); !errors.Is(err, userErr) {
		t.Fatalf("expected user error to propagate, got %v", err)
	}
	if len(conn.Buckets) != 0 {
		t.Fatalf("expected no persistence when user fn errors")
	}
}

func TestPersistBeginAndCommitErrors(t *testing.T) {
	store, conn := openStub(t)
	conn.FailBegin = true
	if err := store.persist(context.Background()); err == nil || !strings.Contains(err.Error(), "begin") {
		t.Fatalf("expected begin error, got %v", err)
	}
	conn.FailBegin = false
	conn.FailCommit = true
	if err := store.persist(context.Background()); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestNewStoreErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("dial") })
	if _, err := NewStore(context.Background(), "", domain.NewRulesEngine()); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.Buckets[memory.BucketProducts] = []byte("[oops")
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "", domain.NewRulesEngine()); err == nil || !strings.Contains(err.Error(), "decode products") {
		t.Fatalf("expected decode error, got %v", err)
	}

	failing, failingConn := testutil.NewStubDB()
	failingConn.FailQuery = true
	restoreFailing := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return failing, nil })
	defer restoreFailing()
	if _, err := NewStore(context.Background(), "", domain.NewRulesEngine()); err == nil || !strings.Contains(err.Error(), "select state") {
		t.Fatalf("expected select error, got %v", err)
	}
}
