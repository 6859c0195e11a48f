package filesystem

// Observer records filesystem operation metrics. The Prometheus
// implementation lives in the metrics package.
type Observer interface {
	// ObserveOperation records duration and error status for one call.
	// operation is "stat", "open", "remove" or "remove_all".
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveRetryDuration(retryOp, volume string, durationSeconds float64)
	ObserveStaleError(retryOp, volume string)
}

// defaultObserver is nil until SetObserver is called; recording is then skipped.
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver = o
}

// nopObserver discards everything.
type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, float64, error) {}
func (nopObserver) ObserveRetryAttempt(string, string)               {}
func (nopObserver) ObserveRetrySuccess(string, string)               {}
func (nopObserver) ObserveRetryFailure(string, string)               {}
func (nopObserver) ObserveRetryDuration(string, string, float64)     {}
func (nopObserver) ObserveStaleError(string, string)                 {}

func observe() Observer {
	if defaultObserver == nil {
		return nopObserver{}
	}
	return defaultObserver
}
