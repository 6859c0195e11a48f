package metrics

import (
	"time"

	"media-pipeline/internal/logging"
)

// StatsProvider supplies the catalog figures exported as gauges.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current catalog statistics.
type Stats struct {
	TotalVideos  int
	JobsByStatus map[string]int
	ActiveProcs  int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	VideosTotal.Set(float64(stats.TotalVideos))
	for status, n := range stats.JobsByStatus {
		JobRunsByStatus.WithLabelValues(status).Set(float64(n))
	}
	EncoderProcessesActive.Set(float64(stats.ActiveProcs))

	logging.Debug("Metrics collected: videos=%d, jobs=%v, encoders=%d",
		stats.TotalVideos, stats.JobsByStatus, stats.ActiveProcs)
}
