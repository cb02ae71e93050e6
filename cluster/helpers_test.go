package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/najoast/actorkit/core"
)

const kindEcho = "Echo"

// echoActor answers ECHO and SUM, fails on FAIL, blocks on SLOW until its
// context ends and forwards NOTE messages to told.
type echoActor struct {
	*core.BaseActor
	told chan core.Message
}

func newEcho(id string) *echoActor {
	a := &echoActor{told: make(chan core.Message, 16)}
	a.BaseActor = core.NewBaseActor(kindEcho, id, a, core.WithActorLogger(quietLogger()))
	return a
}

func (a *echoActor) HandleMessage(ctx context.Context, msg core.Message) (any, error) {
	switch msg.Type {
	case "ECHO":
		return fmt.Sprintf("Received: %v", msg.Payload), nil
	case "SUM":
		nums, err := core.DecodePayload[[]int](msg)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, n := range nums {
			total += n
		}
		return map[string]int{"total": total}, nil
	case "FAIL":
		return nil, fmt.Errorf("%w: bad input", core.ErrInvalidArgument)
	case "SLOW":
		<-ctx.Done()
		return nil, ctx.Err()
	case "NOTE":
		a.told <- msg
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown message type %s", core.ErrInvalidArgument, msg.Type)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSystem(t *testing.T, opts ...core.Option) *core.ActorSystem {
	t.Helper()
	base := []core.Option{core.WithName("test-node"), core.WithLogger(quietLogger())}
	sys := core.NewActorSystem(append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sys.Shutdown(ctx)
	})
	return sys
}

func mustCreate(t *testing.T, sys *core.ActorSystem, a core.Actor) *core.LocalRef {
	t.Helper()
	ref, err := sys.CreateActor(context.Background(), a)
	require.NoError(t, err)
	return ref
}

func newTestTransport(t *testing.T, fallback map[string]string, cfg TransportConfig) *Transport {
	t.Helper()
	tr := NewTransport(NewResolver(nil, nil, fallback, quietLogger()), cfg, quietLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tr.Close(ctx)
	})
	return tr
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// stubNode is an httptest server speaking the actor wire protocol with
// canned behavior per message type.
type stubNode struct {
	*httptest.Server
	received chan core.Message
	down     atomic.Bool
}

func newStubNode(t *testing.T) *stubNode {
	t.Helper()
	n := &stubNode{received: make(chan core.Message, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+MessagePath, func(w http.ResponseWriter, r *http.Request) {
		var msg core.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n.received <- msg

		w.Header().Set("Content-Type", "application/json")
		if !msg.RequiresResponse {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		switch msg.Type {
		case "ECHO":
			_ = json.NewEncoder(w).Encode(fmt.Sprintf("Received: %v", msg.Payload))
		case "MISSING":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"actor not found"}`))
		case "BOOM":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"handler exploded"}`))
		case "LATE":
			w.WriteHeader(http.StatusGatewayTimeout)
		case "GONE":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "HANG":
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("GET "+DefaultHealthPath, func(w http.ResponseWriter, r *http.Request) {
		if n.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"UP"}`))
	})
	n.Server = httptest.NewServer(mux)
	t.Cleanup(n.Close)
	return n
}
