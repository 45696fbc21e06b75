package ports

// Topics trade events are published for.
const (
	AnyTopic            = "*"
	TopicTradeUpdated   = "TRADE_UPDATED"
	TopicTradeCompleted = "TRADE_COMPLETED"
	TopicTradeFailed    = "TRADE_FAILED"
)

type Subscription interface {
	Topic() string
	Id() string
	IsSecured() bool
	NotifyAt() string
}

// Notifier defines the methods of a pubsub service delivering trade events to
// external subscribers.
type Notifier interface {
	// Subscribe adds a new subscription for the requested topic.
	Subscribe(topic, endpoint, secret string) (string, error)
	// Unsubscribe removes some client defined by its id for a topic.
	Unsubscribe(topic, id string) error
	// ListSubscriptionsForTopic returns the info of all clients subscribed for
	// a certain topic.
	ListSubscriptionsForTopic(topic string) []Subscription
	// Publish publishes a message for a certain topic. All clients subscribed
	// for such topic, or for any topic, will receive the message.
	Publish(topic string, message string) error
	// Close should be used to gracefully close the connection with the store.
	Close() error
}
