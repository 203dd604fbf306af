package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/luxfi/log"
)

// Handler answers one inbound request frame, optionally returning a
// response frame to route back to the sender.
type Handler func(ctx context.Context, from string, f Frame) (*Frame, error)

// ZMQBus is the Bus implementation used by the component endpoint (C5) and
// network endpoint (C6): a bound ROUTER socket for inbound messages plus a
// pool of DEALER sockets, one per destination endpoint, for outbound ones.
//
// Grounded on utils/transport/zmq.Transport's NewPub/NewSub/
// NewRouter, Listen/Dial, a handlers map guarded by sync.RWMutex, adapted
// from fire-and-forget broadcast to correlation-id-tracked request/reply.
type ZMQBus struct {
	router   zmq4.Socket
	endpoint string

	mu       sync.RWMutex
	dealers  map[string]zmq4.Socket
	handlers map[string]Handler

	pendingMu sync.Mutex
	pending   map[string]chan Frame

	log log.Logger
}

// NewZMQBus binds a ROUTER socket at endpoint.
func NewZMQBus(endpoint string, logger log.Logger) (*ZMQBus, error) {
	router := zmq4.NewRouter(context.Background())
	if err := router.Listen(endpoint); err != nil {
		return nil, fmt.Errorf("bus: listen %s: %w", endpoint, err)
	}
	return &ZMQBus{
		router:   router,
		endpoint: endpoint,
		dealers:  make(map[string]zmq4.Socket),
		handlers: make(map[string]Handler),
		pending:  make(map[string]chan Frame),
		log:      logger,
	}, nil
}

// Handle registers the handler invoked for inbound frames of messageType.
func (b *ZMQBus) Handle(messageType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[messageType] = h
}

// Dial opens (or reuses) a DEALER connection to dest.
func (b *ZMQBus) Dial(dest string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.dealers[dest]; ok {
		return nil
	}
	dealer := zmq4.NewDealer(context.Background())
	if err := dealer.Dial(dest); err != nil {
		return fmt.Errorf("bus: dial %s: %w", dest, err)
	}
	b.dealers[dest] = dealer
	return nil
}

func (b *ZMQBus) dealerFor(dest string) (zmq4.Socket, error) {
	b.mu.RLock()
	dealer, ok := b.dealers[dest]
	b.mu.RUnlock()
	if ok {
		return dealer, nil
	}
	if err := b.Dial(dest); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dealers[dest], nil
}

// Request sends f to dest and blocks until a frame carrying the same
// correlation id arrives, or ctx is done (spec.md §6 request/response
// framing).
func (b *ZMQBus) Request(ctx context.Context, dest string, f Frame) (Frame, error) {
	if f.CorrelationID == "" {
		f.CorrelationID = uuid.NewString()
	}
	dealer, err := b.dealerFor(dest)
	if err != nil {
		return Frame{}, err
	}

	respCh := make(chan Frame, 1)
	b.pendingMu.Lock()
	b.pending[f.CorrelationID] = respCh
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, f.CorrelationID)
		b.pendingMu.Unlock()
	}()

	if err := dealer.Send(zmq4.NewMsgFrom(f.Encode())); err != nil {
		return Frame{}, fmt.Errorf("bus: send to %s: %w", dest, err)
	}
	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Send is a one-way message: no response is awaited (spec.md §6 gossip and
// heartbeat messages don't correlate a reply).
func (b *ZMQBus) Send(dest string, f Frame) error {
	if f.CorrelationID == "" {
		f.CorrelationID = uuid.NewString()
	}
	dealer, err := b.dealerFor(dest)
	if err != nil {
		return err
	}
	return dealer.Send(zmq4.NewMsgFrom(f.Encode()))
}

// Reply sends f back to a peer identified by the identity frame a Handler
// was invoked with.
func (b *ZMQBus) Reply(identity string, f Frame) error {
	return b.router.Send(zmq4.NewMsgFrom([]byte(identity), f.Encode()))
}

// Serve runs the ROUTER accept loop until ctx is cancelled. Each inbound
// frame either completes a pending Request call or is dispatched to its
// registered Handler, whose reply (if any) is routed back by identity.
func (b *ZMQBus) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		msg, err := b.router.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if len(msg.Frames) < 2 {
			continue
		}
		identity := string(msg.Frames[0])
		frame, err := DecodeFrame(msg.Frames[1])
		if err != nil {
			if b.log != nil {
				b.log.Warn("bus: dropping malformed frame", "from", identity, "err", err)
			}
			continue
		}
		go b.dispatch(ctx, identity, frame)
	}
}

func (b *ZMQBus) dispatch(ctx context.Context, identity string, f Frame) {
	b.pendingMu.Lock()
	ch, isResponse := b.pending[f.CorrelationID]
	b.pendingMu.Unlock()
	if isResponse {
		select {
		case ch <- f:
		default:
		}
		return
	}

	b.mu.RLock()
	handler, ok := b.handlers[f.MessageType]
	b.mu.RUnlock()
	if !ok {
		if b.log != nil {
			b.log.Debug("bus: no handler registered", "message_type", f.MessageType)
		}
		return
	}
	reply, err := handler(ctx, identity, f)
	if err != nil || reply == nil {
		return
	}
	reply.CorrelationID = f.CorrelationID
	if err := b.Reply(identity, *reply); err != nil && b.log != nil {
		b.log.Warn("bus: failed to send reply", "to", identity, "err", err)
	}
}

// Close tears down the router and every dealer connection.
func (b *ZMQBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.dealers {
		_ = d.Close()
	}
	return b.router.Close()
}
