package metrics

// PublishObserver receives pipeline events from the executor and reconciler.
type PublishObserver interface {
	RecordClaims(n int)
	RecordAttempt(platform string, success bool, classification string)
	RecordJobFinal(status string)
	RecordReconciled(n int)
	ObservePassDuration(seconds float64)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) RecordClaims(int) {}
func (NopObserver) RecordAttempt(string, bool, string) {}
func (NopObserver) RecordJobFinal(string) {}
func (NopObserver) RecordReconciled(int) {}
func (NopObserver) ObservePassDuration(float64) {}
