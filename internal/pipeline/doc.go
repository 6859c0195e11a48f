// Package pipeline turns video record lifecycle events into derived
// artifacts on disk.
//
// A Pipeline subscribes to the record store. When a video with a source file
// is created it enqueues one render job per width in the ladder, one
// thumbnail job and one HLS package job per width. When a video is deleted
// it removes every artifact the jobs could have produced. Jobs are executed
// by Pipeline.Handle, which the queue workers call.
package pipeline
