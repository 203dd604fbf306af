package bus

import "context"

// Bus is the abstraction component (C5), network (C6), and executor (C9)
// depend on, so they can be tested against an in-memory double instead of
// real ZMQ sockets.
type Bus interface {
	Handle(messageType string, h Handler)
	Request(ctx context.Context, dest string, f Frame) (Frame, error)
	Send(dest string, f Frame) error
	Serve(ctx context.Context) error
	Close() error
}

var _ Bus = (*ZMQBus)(nil)
