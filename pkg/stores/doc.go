// Package stores provides the SQLite persistence layer: the plant data
// snapshots cycles read from, the recommendation sets they produce, and
// service bookkeeping such as the last completed run.
package stores
