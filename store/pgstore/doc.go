// Package pgstore implements store.Store on PostgreSQL through database/sql
// and the pgx driver.
//
// Queries are built with squirrel using dollar placeholders. The schema is
// embedded and applied with goose via [Migrate]. Multi-row writes run in one
// transaction; read-modify-write updates lock the row with SELECT ... FOR
// UPDATE and retry when a concurrent insert wins the race for a new key.
//
// Unique violations map to store.ErrConflict and foreign key violations to
// store.ErrNotFound.
package pgstore
