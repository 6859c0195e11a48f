/*
Package mediaexec runs the external media tools (ffprobe and ffmpeg) used by
the pipeline.

Commands are always started from an explicit argument list; nothing is ever
passed through a shell. Standard output and standard error are captured into
separate buffers so callers can parse stdout (probe results, piped frames)
while keeping stderr for diagnostics.

Every child is placed in its own process group. When the caller's context is
cancelled or its deadline expires, the whole group is killed so encoder
helper processes do not outlive the job that started them. Callers impose a
wall-clock bound with context.WithTimeout.

The Runner interface exists so tests can substitute a fake that writes the
files a real encoder would produce.
*/
package mediaexec
