// Package database provides SQLite storage for the video catalog.
//
// It stores:
//   - Video records (source file reference, thumbnail reference, metadata)
//   - Categories
//   - The job ledger: the last known outcome of every pipeline job key
//
// The database runs in WAL mode with immediate write transactions. Paths
// are stored relative to the media root ("videos/clip.mp4") so the root can
// move without rewriting rows.
//
// Components subscribe to record lifecycle events with Subscribe. VideoCreated
// fires once the insert has committed; VideoDeleted fires inside the delete
// transaction so listeners still see the record's file references. A panicking
// listener is logged and never aborts the delete.
package database
