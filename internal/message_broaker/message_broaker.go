package message_broaker

import "context"

// MessageBroker carries serialized jobs from queue writers to the server
// that persists them.
type MessageBroker interface {
	// Publish sends message on behalf of the given job queue.
	Publish(ctx context.Context, queue string, message []byte) error
	// Consume receives every published message until ctx is done.
	Consume(ctx context.Context) (<-chan []byte, error)
	Close() error
}

const consumeBufferSize = 1000

// forward copies message bodies from in to a buffered channel until in is
// closed or ctx is done.
func forward[T any](ctx context.Context, in <-chan T, body func(T) []byte) <-chan []byte {
	out := make(chan []byte, consumeBufferSize)

	go func() {
		defer close(out)

		for {
			select {
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- body(msg):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
