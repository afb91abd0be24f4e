package store

import (
	"context"
	"errors"
	"testing"

	"bookstore/pkg/domain"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.CreateBook(ctx, domain.Book{"title": "Dune", "id": int64(99)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateBook(ctx, domain.Book{"title": "Emma"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	books, err := s.ListBooks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("len(books) = %d, want 2", len(books))
	}
	if books[0].ID() != int64(1) || books[0]["title"] != "Dune" {
		t.Fatalf("unexpected first book: %v", books[0])
	}

	if err := s.UpdateBook(ctx, "1", domain.Book{"author": "Herbert", "id": int64(5)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	books, _ = s.ListBooks(ctx)
	if books[0]["author"] != "Herbert" || books[0].ID() != int64(1) {
		t.Fatalf("update not applied or id changed: %v", books[0])
	}

	if err := s.DeleteBook(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteBook(ctx, "1"); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("second delete err = %v, want ErrBookNotFound", err)
	}
	books, _ = s.ListBooks(ctx)
	if len(books) != 1 || books[0]["title"] != "Emma" {
		t.Fatalf("unexpected books after delete: %v", books)
	}
}

func TestMemoryStoreMissingIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"", "abc", "0", "-1", "42"} {
		if err := s.UpdateBook(ctx, id, domain.Book{"title": "X"}); !errors.Is(err, ErrBookNotFound) {
			t.Fatalf("update %q err = %v, want ErrBookNotFound", id, err)
		}
		if err := s.DeleteBook(ctx, id); !errors.Is(err, ErrBookNotFound) {
			t.Fatalf("delete %q err = %v, want ErrBookNotFound", id, err)
		}
	}
}

func TestMemoryStoreListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.CreateBook(ctx, domain.Book{"title": "Dune"})
	books, _ := s.ListBooks(ctx)
	books[0]["title"] = "mutated"
	again, _ := s.ListBooks(ctx)
	if again[0]["title"] != "Dune" {
		t.Fatalf("store state leaked through ListBooks")
	}
}
