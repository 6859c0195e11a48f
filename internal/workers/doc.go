/*
Package workers sizes worker pools from the CPUs actually available to the
process.

runtime.NumCPU reports host CPUs, while GOMAXPROCS follows cgroup limits
(Go 1.19+ in containers, Go 1.25 also tracks limit changes). All helpers use
GOMAXPROCS:

	// encoder jobs: ffmpeg is itself multi-threaded
	n := workers.ForEncoding(8)

	// filesystem or network bound work
	n := workers.ForIO(16)

# Environment Variable Override

PIPELINE_WORKERS pins the count regardless of CPU detection, still capped by
the limit argument:

	env:
	- name: PIPELINE_WORKERS
	  value: "2"

Invalid or non-positive values are ignored.
*/
package workers
