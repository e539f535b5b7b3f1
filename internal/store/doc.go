// Package store defines the document persistence contract shared by the
// Postgres and in-memory stores. Implementations live in other packages; this
// package must not import database drivers or concrete clients.
package store
