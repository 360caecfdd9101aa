package audit

import "context"

// ChannelStore buffers events for an asynchronous worker so emitters never
// block on a slow sink. Append drops when the buffer is full: lifecycle
// events are best-effort by contract.
type ChannelStore struct {
	ch chan Event
}

func NewChannelStore(buffer int) *ChannelStore {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelStore{ch: make(chan Event, buffer)}
}

func (s *ChannelStore) Append(_ context.Context, event Event) error {
	select {
	case s.ch <- event:
	default:
	}
	return nil
}

// Inbox is the worker's read side.
func (s *ChannelStore) Inbox() <-chan Event { return s.ch }
