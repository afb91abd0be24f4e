package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"bookstore/pkg/domain"
	"bookstore/pkg/store"
)

const maxColumnNameLength = 64

var columnNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds runtime configuration for the core application.
type Config struct {
	Store store.BookStore
}

// App is the core application service between the HTTP layer and the store.
type App struct {
	store store.BookStore
}

// New constructs the application around an already connected store.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("book store required")
	}
	return &App{store: cfg.Store}, nil
}

// ListBooks returns every row in the books table.
func (a *App) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return a.store.ListBooks(ctx)
}

// CreateBook inserts a new row from client-supplied fields.
func (a *App) CreateBook(ctx context.Context, fields map[string]any) error {
	book, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	return a.store.CreateBook(ctx, book)
}

// UpdateBook sets the given fields on book id.
func (a *App) UpdateBook(ctx context.Context, id string, fields map[string]any) error {
	id, err := bookID(id)
	if err != nil {
		return err
	}
	book, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	if len(book) == 0 {
		return fmt.Errorf("%w: no fields to update", ErrInvalidBook)
	}
	return a.store.UpdateBook(ctx, id, book)
}

// DeleteBook removes book id.
func (a *App) DeleteBook(ctx context.Context, id string) error {
	id, err := bookID(id)
	if err != nil {
		return err
	}
	return a.store.DeleteBook(ctx, id)
}

// bookID canonicalizes a path id. Ids are positive integers assigned by the
// store, so anything else cannot name a book.
func bookID(raw string) (string, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return "", store.ErrBookNotFound
	}
	return strconv.FormatInt(n, 10), nil
}

// normalizeFields drops the store-assigned id and keeps only scalar values
// under plain column names.
func normalizeFields(fields map[string]any) (domain.Book, error) {
	book := make(domain.Book, len(fields))
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.EqualFold(name, domain.BookIDField) {
			continue
		}
		if len(name) > maxColumnNameLength || !columnNamePattern.MatchString(name) {
			return nil, fmt.Errorf("%w: invalid field name %q", ErrInvalidBook, name)
		}
		value, ok := scalarValue(fields[name])
		if !ok {
			return nil, fmt.Errorf("%w: field %q must be a string, number, boolean or null", ErrInvalidBook, name)
		}
		book[name] = value
	}
	return book, nil
}

func scalarValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil, string, bool, float64, int, int64:
		return val, true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		if f, err := val.Float64(); err == nil {
			return f, true
		}
		return nil, false
	default:
		return nil, false
	}
}
