// Package metrics records reminder cycle and delivery metrics.
//
// Components depend on the Recorder interface and default to NoopRecorder, so tests
// and embedded uses need no registry. The app wires a PrometheusRecorder and serves
// its registry on /metrics.
package metrics

import "time"

// Recorder receives observations from the scheduler and the reminder core.
type Recorder interface {
	// IncDelivery counts one subscriber outcome; stage is "recipient", "delivery" or "" on success.
	IncDelivery(stage string, success bool)
	// IncCycle counts one evaluation by outcome (baseline, not_due, fired, reset, interrupted).
	IncCycle(outcome string)
	ObserveDispatchDuration(d time.Duration)
	SetSubscribers(n int)
	IncPersistFailure(op string)
	ObserveJob(name string, d time.Duration, err error)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) IncDelivery(string, bool)                 {}
func (NoopRecorder) IncCycle(string)                          {}
func (NoopRecorder) ObserveDispatchDuration(time.Duration)    {}
func (NoopRecorder) SetSubscribers(int)                       {}
func (NoopRecorder) IncPersistFailure(string)                 {}
func (NoopRecorder) ObserveJob(string, time.Duration, error) {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
