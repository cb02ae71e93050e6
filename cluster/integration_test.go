package cluster

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"

	"github.com/najoast/actorkit/core"
)

func TestTwoNodes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Node A hosts the echo actor behind a real listener
	port := dynaport.Get(1)[0]
	registryA := NewRegistry(nil, WithRegistryLogger(quietLogger()))
	sysA := newTestSystem(t, core.WithName("node-a"), core.WithRegistrar(registryA))
	echo := newEcho("e1")
	mustCreate(t, sysA, echo)

	endpoint := NewEndpoint(sysA, registryA, EndpointConfig{
		Address:    fmt.Sprintf("127.0.0.1:%d", port),
		AskTimeout: time.Second,
	}, quietLogger())
	require.NoError(t, endpoint.Start(ctx))
	t.Cleanup(func() { _ = endpoint.Stop(context.Background()) })

	// Node B only knows node A through its fallback table
	tr := newTestTransport(t, map[string]string{
		"echo-service": fmt.Sprintf("http://127.0.0.1:%d", port),
	}, TransportConfig{})
	registryB := NewRegistry(tr, WithRegistryLogger(quietLogger()))

	ref, err := registryB.Resolve(ctx, "/echo-service/user/Echo/e1")
	require.NoError(t, err)
	require.True(t, ref.IsAvailable(ctx))

	reply, err := ref.Ask(ctx, core.NewMessage("ECHO", "Hello"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Received: Hello", reply)

	reply, err = ref.Ask(ctx, core.NewMessage("SUM", []int{4, 5}), time.Second)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": float64(9)}, reply)

	_, err = ref.Ask(ctx, core.NewMessage("FAIL", nil), time.Second)
	assert.ErrorIs(t, err, ErrRemoteFailure)
	assert.ErrorContains(t, err, "bad input")

	_, err = ref.Ask(ctx, core.NewMessage("SLOW", nil), 100*time.Millisecond)
	assert.ErrorIs(t, err, core.ErrAskTimeout)

	require.NoError(t, ref.Tell(core.NewMessage("NOTE", "over the wire")))
	select {
	case got := <-echo.told:
		assert.Equal(t, "over the wire", got.Payload)
		assert.Equal(t, "/user/Echo/e1", got.ReceiverPath)
	case <-time.After(2 * time.Second):
		t.Fatal("remote tell never reached the actor")
	}

	missing, err := registryB.Resolve(ctx, "/echo-service/user/Echo/nobody")
	require.NoError(t, err)
	_, err = missing.Ask(ctx, core.NewMessage("ECHO", "x"), time.Second)
	assert.ErrorIs(t, err, ErrUnresolvedPath)

	require.NoError(t, endpoint.Stop(ctx))
	assert.False(t, ref.IsAvailable(ctx))
}
