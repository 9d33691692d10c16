// Package store provides the transactional record store the registry core
// runs on.
//
// Records are JSON documents addressed by Key{Group, Kind, ID}. Group is the
// entity-group key: the unit of mutual exclusion. A resource, its history, its
// billing events and the poll messages about it share the resource's group;
// each foreign key index name, each resource's link markers and each
// registrar's delivery receipts have their own group.
//
// # Concurrency
//
// Transactions are optimistic. Every group carries a version. A Tx records the
// version of each group the first time it reads from it, buffers its writes,
// and on Commit the backend checks every recorded version under lock, applies
// the writes atomically and bumps the version of every written group. If any
// recorded version moved, Commit fails with ErrConflict and nothing is
// applied. Transactions touching disjoint groups never contend.
//
// # Backends
//
//   - Memory: 128 sharded mutexes keyed by group hash
//   - SQL: SQLite (mattn/go-sqlite3, WAL, busy_timeout=5000) or Postgres
//     (jackc/pgx stdlib, SELECT ... FOR UPDATE on group rows)
//
// Ancestor queries (List) return records of one kind within one group ordered
// by ID. Scan walks one kind across all groups and is not transactional.
package store
