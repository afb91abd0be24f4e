package store

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"bookstore/pkg/domain"
)

// GormStore implements BookStore over a gorm connection. Rows are read and
// written as column maps because the attribute schema belongs to the table,
// not to the service.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an established connection (see Supervisor).
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	var rows []map[string]any
	if err := s.db.WithContext(ctx).Table(BooksTable).Order(domain.BookIDField).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	books := make([]domain.Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, normalizeRow(row))
	}
	return books, nil
}

func (s *GormStore) CreateBook(ctx context.Context, fields domain.Book) error {
	if err := s.db.WithContext(ctx).Table(BooksTable).Create(map[string]any(fields)).Error; err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateBook(ctx context.Context, id string, fields domain.Book) error {
	res := s.db.WithContext(ctx).Table(BooksTable).
		Where(domain.BookIDField+" = ?", id).
		Updates(map[string]any(fields))
	if res.Error != nil {
		return fmt.Errorf("update book: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

func (s *GormStore) DeleteBook(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Exec("DELETE FROM "+BooksTable+" WHERE "+domain.BookIDField+" = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete book: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// normalizeRow turns driver byte slices into strings so rows encode as JSON
// text rather than base64.
func normalizeRow(row map[string]any) domain.Book {
	book := make(domain.Book, len(row))
	for col, v := range row {
		switch val := v.(type) {
		case []byte:
			book[col] = string(val)
		case sql.RawBytes:
			book[col] = string(val)
		default:
			book[col] = val
		}
	}
	return book
}
