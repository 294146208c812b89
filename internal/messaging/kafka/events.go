package kafka

// Topics для Kafka.
const (
	TopicAuditEvents     = "capacity.audit.events"
	TopicDeadLetterQueue = "capacity.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для DLQ/retry логики.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)
