package events

// Topic constants for domain events emitted by the fulfillment service.
const (
	TopicFulfillmentCommitted = "fulfillment.committed"
	TopicFulfillmentShortfall = "fulfillment.shortfall"
	TopicInstrumentSettled    = "instrument.settled"
)

// DefaultTopics returns every topic the service emits.
func DefaultTopics() []string {
	return []string{
		TopicFulfillmentCommitted,
		TopicFulfillmentShortfall,
		TopicInstrumentSettled,
	}
}
