package ports

// Metrics collects counters of the conversation use-cases.
type Metrics interface {
	// RecordContact records a Contact call and whether it created the conversation.
	RecordContact(created bool)

	// RecordMessage records an appended message.
	RecordMessage()

	// RecordNotification records a raised or published notification.
	RecordNotification()

	// RecordStoreRetry records a retried store operation.
	RecordStoreRetry(operation string)

	// RecordStaleRead records a read served from the last-known view.
	RecordStaleRead()
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordContact(bool) {}
func (NoopMetrics) RecordMessage() {}
func (NoopMetrics) RecordNotification() {}
func (NoopMetrics) RecordStoreRetry(string) {}
func (NoopMetrics) RecordStaleRead() {}

var _ Metrics = NoopMetrics{}
