// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The Store interface is composed of smaller interfaces:
//
//   - UserStore: registered customers and sales reps
//   - MessageStore: chat turns and support-request transitions
//   - ConversationStore: dashboard listings and statistics aggregates
//   - AuditStore: conversation transition log
//
// SQLiteStore implements all of them in a single struct. MockStore is an
// in-memory implementation with the same semantics for unit tests.
//
// # Threads
//
// A support thread is keyed by the customer's user id. Rep replies and
// assistant replies are stored under the customer's id so one query returns
// the whole conversation. Support requests are messages with
// requesting_sales = 1; claiming, releasing and completing a conversation
// update those rows:
//
//	waiting --claim--> active --complete--> completed
//	   ^                  |
//	   +----release-------+   (owning rep disconnected)
//
// # SQLite Configuration
//
// Two drivers are supported, chosen with WithDriver:
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//
// The store runs with a single connection in WAL mode. Timestamps are stored
// as fixed-width UTC strings with nanosecond precision so they order
// correctly in SQL comparisons.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateUser: username already taken
//
// All methods accept context.Context for cancellation support.
package store
