/*
Package filesystem wraps the filesystem calls made by the pipeline with retry
logic for NFS stale file handle errors.

Media roots are frequently NFS mounts. A stale handle (ESTALE) is transient,
so Stat, Open, Remove and RemoveAll are retried with exponential backoff when
they fail with ESTALE; every other error is returned immediately.

Removal helpers treat a missing path as success, which is what the artifact
reaper needs when some of a video's files were never produced.

Usage:

	cfg := filesystem.DefaultRetryConfig()
	if err := filesystem.RemoveAllWithRetry(hlsRoot, cfg); err != nil {
	    logging.Warn("failed to remove %s: %v", hlsRoot, err)
	}

Metrics are reported through an Observer installed with SetObserver; the
metrics package provides the Prometheus implementation. Paths are labelled
by volume using a VolumeResolver ("media", "database", ...).
*/
package filesystem
