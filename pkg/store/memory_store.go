package store

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"bookstore/pkg/domain"
)

// MemoryStore keeps books in-process. It mirrors the relational store's
// semantics (auto-increment ids, id order) for tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	books  map[int64]domain.Book
	orders []int64
	nextID int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:  make(map[int64]domain.Book),
		nextID: 1,
	}
}

// ListBooks returns copies of all books in id order.
func (m *MemoryStore) ListBooks(_ context.Context) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.orders))
	for _, id := range m.orders {
		res = append(res, copyBook(m.books[id]))
	}
	return res, nil
}

// CreateBook stores fields under a freshly assigned id.
func (m *MemoryStore) CreateBook(_ context.Context, fields domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	book := copyBook(fields)
	book[domain.BookIDField] = id
	m.books[id] = book
	m.orders = append(m.orders, id)
	return nil
}

// UpdateBook overwrites the given columns of book id.
func (m *MemoryStore) UpdateBook(_ context.Context, id string, fields domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := parseMemoryID(id)
	if !ok {
		return ErrBookNotFound
	}
	book, ok := m.books[key]
	if !ok {
		return ErrBookNotFound
	}
	for col, v := range fields {
		if col == domain.BookIDField {
			continue
		}
		book[col] = v
	}
	return nil
}

// DeleteBook removes book id.
func (m *MemoryStore) DeleteBook(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := parseMemoryID(id)
	if !ok {
		return ErrBookNotFound
	}
	if _, ok := m.books[key]; !ok {
		return ErrBookNotFound
	}
	delete(m.books, key)
	for i, existing := range m.orders {
		if existing == key {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			break
		}
	}
	return nil
}

func parseMemoryID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func copyBook(b domain.Book) domain.Book {
	out := make(domain.Book, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
