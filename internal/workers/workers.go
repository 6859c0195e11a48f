package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride pins the pipeline worker count when set to a positive integer.
const EnvOverride = "PIPELINE_WORKERS"

// encodeMultiplier is below 1 because every ffmpeg process already runs
// several threads.
const encodeMultiplier = 0.5

// Count returns multiplier workers per available CPU, at least 1 and at
// most limit (0 means no limit). Available CPUs come from GOMAXPROCS, which
// follows container limits. A valid EnvOverride value wins over the
// calculation but is still capped by limit.
func Count(multiplier float64, limit int) int {
	if n, ok := Override(); ok {
		return capAt(n, limit)
	}

	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if n < 1 {
		n = 1
	}
	return capAt(n, limit)
}

// Override returns the EnvOverride value if it is a positive integer.
func Override() (int, bool) {
	v := os.Getenv(EnvOverride)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ForEncoding returns the worker count for encoder jobs: one per two CPUs.
func ForEncoding(limit int) int {
	return Count(encodeMultiplier, limit)
}

// ForCPU returns one worker per CPU.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns two workers per CPU.
func ForIO(limit int) int {
	return Count(2.0, limit)
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
