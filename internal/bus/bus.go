// Package bus fans view events out to renderers: the bridge's local sockets
// and the terminal client.
package bus

import (
	"reflect"

	"github.com/cskr/pubsub"
	"go.uber.org/zap"
)

type Subscription chan any

type MessageBus interface {
	Publish(topic string, msg any)
	Subscribe(topics ...string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

// DealTopic carries every event of one deal's chat.
func DealTopic(dealID string) string {
	return "deal:" + dealID
}

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *zap.Logger
}

func New(logger *zap.Logger) *PubSubBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubBus{
		ps:     pubsub.New(128),
		logger: logger.Named("bus"),
	}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	b.logger.Debug("publish", zap.String("topic", topic), zap.String("payload_type", payloadType(msg)))
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) Subscribe(topics ...string) Subscription {
	ch := b.ps.Sub(topics...)
	b.logger.Debug("subscribe", zap.Strings("topics", topics))
	return ch
}

// Unsubscribe detaches ch. Without topics ch leaves every topic and is
// drained until the bus closes it, so a late publish never blocks.
func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		go func() {
			for range ch {
			}
		}()
		b.ps.Unsub(ch)
		b.logger.Debug("unsubscribe", zap.String("mode", "all"))
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", zap.Strings("topics", topics))
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
