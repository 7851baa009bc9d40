package bus

import "context"

// defaultCapacity bounds each queue. Ordering within a single (channel, chat_id)
// is preserved because both queues are strict FIFOs; ordering across distinct
// chats is not guaranteed or required (§4.1).
const defaultCapacity = 256

// MessageBus implements MessageRouter with two bounded FIFO queues. It owns
// no persistence: an unprocessed message is lost on crash, by design (§3,
// "Ownership" — the bus owns the two queues; its lifetime equals the process).
type MessageBus struct {
	inbound  *boundedQueue[InboundMessage]
	outbound *boundedQueue[OutboundMessage]
}

// New creates a MessageBus with the default queue capacity.
func New() *MessageBus {
	return NewWithCapacity(defaultCapacity)
}

// NewWithCapacity creates a MessageBus whose queues each hold at most capacity
// items before inbound publishers block and outbound publishers drop the
// oldest pending message.
func NewWithCapacity(capacity int) *MessageBus {
	return &MessageBus{
		inbound:  newBoundedQueue[InboundMessage](capacity),
		outbound: newBoundedQueue[OutboundMessage](capacity),
	}
}

// PublishInbound enqueues a message from a channel adapter, blocking while the
// inbound queue is full (back-pressure). It waits with no cancellation point;
// use PublishInboundContext to bound the wait with a context.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.PublishInboundContext(context.Background(), msg)
}

// PublishInboundContext is PublishInbound with an explicit context so a
// channel adapter can abandon the publish attempt on shutdown.
func (b *MessageBus) PublishInboundContext(ctx context.Context, msg InboundMessage) {
	if msg.SessionKey == "" {
		msg.SessionKey = msg.Channel + ":" + msg.ChatID
	}
	b.inbound.pushBlocking(ctx, msg)
}

// ConsumeInbound blocks until a message is available or ctx is done, returning
// ok=false on the latter. The agent loop's run() wraps this with a short
// (~1s) timeout so it can check for shutdown between polls.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return b.inbound.pop(ctx)
}

// PublishOutbound enqueues an agent reply, dropping the oldest queued reply
// if the outbound queue is full. Publishers never block.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound.pushDropOldest(msg)
}

// SubscribeOutbound blocks until an outbound message is available or ctx is
// done. Channel adapters run this in their own dispatch loop.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return b.outbound.pop(ctx)
}

var _ MessageRouter = (*MessageBus)(nil)
