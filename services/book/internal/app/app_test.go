package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bookstore/pkg/domain"
	"bookstore/pkg/store"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	a, err := New(Config{Store: mem})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without store")
	}
}

func TestCreateBookDropsClientID(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	if err := a.CreateBook(ctx, map[string]any{"id": 42, "ID": 43, "title": "X", "price": json.Number("12.5"), "pages": json.Number("320")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	books, err := a.ListBooks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("len(books) = %d, want 1", len(books))
	}
	got := books[0]
	if got.ID() != int64(1) {
		t.Fatalf("id = %v, want store-assigned 1", got.ID())
	}
	if _, ok := got["ID"]; ok {
		t.Fatalf("case variants of id must be dropped: %v", got)
	}
	if got["price"] != 12.5 || got["pages"] != int64(320) {
		t.Fatalf("numbers not normalized: %#v", got)
	}
}

func TestCreateBookRejectsInvalidFields(t *testing.T) {
	a, mem := newTestApp(t)
	ctx := context.Background()
	cases := map[string]map[string]any{
		"sql in name":   {"title`; DROP TABLE books; --": "x"},
		"space in name": {"first name": "x"},
		"leading digit": {"1title": "x"},
		"nested object": {"meta": map[string]any{"a": 1}},
		"array value":   {"tags": []any{"a"}},
	}
	for name, fields := range cases {
		if err := a.CreateBook(ctx, fields); !errors.Is(err, ErrInvalidBook) {
			t.Fatalf("%s: err = %v, want ErrInvalidBook", name, err)
		}
	}
	books, _ := mem.ListBooks(ctx)
	if len(books) != 0 {
		t.Fatalf("invalid creates must not mutate the store, got %v", books)
	}
}

func TestUpdateBook(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	if err := a.CreateBook(ctx, map[string]any{"title": "X"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := a.UpdateBook(ctx, "1", map[string]any{"title": "Y", "author": nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	books, _ := a.ListBooks(ctx)
	if books[0]["title"] != "Y" {
		t.Fatalf("title = %v, want Y", books[0]["title"])
	}
	if err := a.UpdateBook(ctx, "1", map[string]any{"id": 9}); !errors.Is(err, ErrInvalidBook) {
		t.Fatalf("id-only update err = %v, want ErrInvalidBook", err)
	}
	if err := a.UpdateBook(ctx, "99", map[string]any{"title": "Z"}); !errors.Is(err, store.ErrBookNotFound) {
		t.Fatalf("missing book err = %v, want ErrBookNotFound", err)
	}
	if err := a.UpdateBook(ctx, " ", map[string]any{"title": "Z"}); !errors.Is(err, store.ErrBookNotFound) {
		t.Fatalf("blank id err = %v, want ErrBookNotFound", err)
	}
}

// recordingStore records the ids that reach the store.
type recordingStore struct {
	*store.MemoryStore
	ids []string
}

func (r *recordingStore) UpdateBook(ctx context.Context, id string, fields domain.Book) error {
	r.ids = append(r.ids, id)
	return r.MemoryStore.UpdateBook(ctx, id, fields)
}

func (r *recordingStore) DeleteBook(ctx context.Context, id string) error {
	r.ids = append(r.ids, id)
	return r.MemoryStore.DeleteBook(ctx, id)
}

func TestNonIntegerIDsNeverReachStore(t *testing.T) {
	rec := &recordingStore{MemoryStore: store.NewMemoryStore()}
	a, err := New(Config{Store: rec})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx := context.Background()
	if err := a.CreateBook(ctx, map[string]any{"title": "X"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, id := range []string{"abc", "1.5", "0", "-1", "1e3", "99999999999999999999", "1 OR 1=1"} {
		if err := a.UpdateBook(ctx, id, map[string]any{"title": "Z"}); !errors.Is(err, store.ErrBookNotFound) {
			t.Fatalf("update %q err = %v, want ErrBookNotFound", id, err)
		}
		if err := a.DeleteBook(ctx, id); !errors.Is(err, store.ErrBookNotFound) {
			t.Fatalf("delete %q err = %v, want ErrBookNotFound", id, err)
		}
	}
	if len(rec.ids) != 0 {
		t.Fatalf("malformed ids reached the store: %q", rec.ids)
	}

	if err := a.UpdateBook(ctx, " 01 ", map[string]any{"title": "Z"}); err != nil {
		t.Fatalf("update padded id: %v", err)
	}
	if err := a.DeleteBook(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(rec.ids) != 2 || rec.ids[0] != "1" || rec.ids[1] != "1" {
		t.Fatalf("store ids = %q, want canonical [1 1]", rec.ids)
	}
}

func TestDeleteBookTwice(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	_ = a.CreateBook(ctx, map[string]any{"title": "X"})
	_ = a.CreateBook(ctx, map[string]any{"title": "Y"})
	if err := a.DeleteBook(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := a.DeleteBook(ctx, "1"); !errors.Is(err, store.ErrBookNotFound) {
		t.Fatalf("second delete err = %v, want ErrBookNotFound", err)
	}
	books, _ := a.ListBooks(ctx)
	if len(books) != 1 || books[0]["title"] != "Y" {
		t.Fatalf("unexpected state after double delete: %v", books)
	}
}
