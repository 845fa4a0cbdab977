// Package journal keeps a local history of lifecycle commands in SQLite.
//
// Each start, stop, restart, compose or clear run is stored once it
// finishes, with its outcome. The history is informational: a failure to
// open or write the journal never blocks a command.
package journal
