package store

import (
	"context"
	"errors"

	"bookstore/pkg/domain"
)

// BooksTable is the relational table backing the catalog.
const BooksTable = "books"

// ErrBookNotFound is returned when an update or delete matches no row.
var ErrBookNotFound = errors.New("book not found")

// BookStore defines persistence operations for the books table.
type BookStore interface {
	ListBooks(ctx context.Context) ([]domain.Book, error)
	CreateBook(ctx context.Context, fields domain.Book) error
	UpdateBook(ctx context.Context, id string, fields domain.Book) error
	DeleteBook(ctx context.Context, id string) error
}
