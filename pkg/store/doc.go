// Package store owns the book table and the process's single connection to it.
//
// A Supervisor acquires the connection at startup with a bounded number of
// fixed-delay attempts. Once connected, GormStore serves the four book
// operations over that connection; MemoryStore implements the same BookStore
// contract for tests.
//
// Store failures are returned wrapped. ErrorDetail decides how much of a
// failure may be shown to a client.
package store
