// Package database provides connection pool management for PostgreSQL.
//
// The pool backs the local history of inbound real-time messages.
package database
