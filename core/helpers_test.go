package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ============== test actors ==============

const (
	msgEcho   = "ECHO"
	msgAdd    = "ADD"
	msgGet    = "GET"
	msgFail   = "FAIL"
	msgPanic  = "PANIC"
	msgBlock  = "BLOCK"
	kindProbe = "Probe"
)

// probe records lifecycle hooks and keeps an unsynchronised counter that is
// only safe under mailbox dispatch.
type probe struct {
	*BaseActor

	starts   atomic.Int32
	stops    atomic.Int32
	handled  atomic.Int32
	restarts atomic.Int32

	total int

	failWith  error
	cancelled chan struct{}
}

func newProbe(id string, opts ...BaseOption) *probe {
	p := &probe{cancelled: make(chan struct{}, 1)}
	p.BaseActor = NewBaseActor(kindProbe, id, p, opts...)
	return p
}

func (p *probe) OnStart(context.Context) error {
	p.starts.Add(1)
	return nil
}

func (p *probe) OnStop() {
	p.stops.Add(1)
}

func (p *probe) Restart(error) error {
	p.restarts.Add(1)
	p.total = 0
	return nil
}

func (p *probe) HandleMessage(ctx context.Context, msg Message) (any, error) {
	p.handled.Add(1)
	switch msg.Type {
	case msgEcho:
		return fmt.Sprintf("Received: %v", msg.Payload), nil
	case msgAdd:
		n, err := DecodePayload[int](msg)
		if err != nil {
			return nil, err
		}
		p.total += n
		return nil, nil
	case msgGet:
		return p.total, nil
	case msgFail:
		if p.failWith != nil {
			return nil, p.failWith
		}
		return nil, errors.New("boom")
	case msgPanic:
		panic("handler exploded")
	case msgBlock:
		<-ctx.Done()
		p.cancelled <- struct{}{}
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("%w: unknown message %s", ErrInvalidArgument, msg.Type)
	}
}

// racyCounter loses updates when handlers overlap, without tripping the race
// detector.
type racyCounter struct {
	*BaseActor
	total   atomic.Int64
	handled atomic.Int64
}

func newRacyCounter(id string) *racyCounter {
	c := &racyCounter{}
	c.BaseActor = NewBaseActor("Counter", id, c)
	return c
}

func (c *racyCounter) HandleMessage(_ context.Context, msg Message) (any, error) {
	c.handled.Add(1)
	switch msg.Type {
	case msgAdd:
		v := c.total.Load()
		runtime.Gosched()
		c.total.Store(v + 1)
		return nil, nil
	default:
		return c.total.Load(), nil
	}
}

// ============== helpers ==============

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSystem(t *testing.T, opts ...Option) *ActorSystem {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	sys := NewActorSystem(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sys.Shutdown(ctx)
	})
	return sys
}

func mustCreate(t *testing.T, sys *ActorSystem, a Actor) *LocalRef {
	t.Helper()
	ref, err := sys.CreateActor(context.Background(), a)
	require.NoError(t, err)
	return ref
}

type recordingRegistrar struct {
	registered   atomic.Int32
	unregistered atomic.Int32
}

func (r *recordingRegistrar) RegisterLocalActor(string, ActorRef) { r.registered.Add(1) }
func (r *recordingRegistrar) UnregisterActor(string)              { r.unregistered.Add(1) }
