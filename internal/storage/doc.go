// Package storage is the embedded document engine: a single SQLite database
// holding named collections of JSON documents keyed by id, with secondary
// indices over document fields, additive schema migrations and
// all-or-nothing transactions.
package storage
