package ircpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flrl/goat/ircerr"
	"github.com/flrl/goat/ircnet"
)

func newTestPool() *Pool {
	return NewPool(func() *ircnet.Connection {
		return ircnet.NewConnection(&stubResolver{}, ircnet.PlainTransport{})
	})
}

type stubResolver struct{}

func (stubResolver) Start(network, host, service string) {}
func (stubResolver) Poll() (ircnet.ResolveStatus, string, error) {
	return ircnet.ResolvePending, "", nil
}

func TestPoolNewGrowsBySixteen(t *testing.T) {
	p := newTestPool()

	var handles []Handle
	for i := 0; i < 17; i++ {
		handles = append(handles, p.New())
	}

	assert.Len(t, p.Connections(), 17)
	assert.Equal(t, Handle(16), handles[16])

	p.mu.RLock()
	assert.Equal(t, 32, len(p.slots), "vector should have grown by one allocIncr past the first 16")
	p.mu.RUnlock()
}

func TestPoolHandleReuseAfterDelete(t *testing.T) {
	p := newTestPool()

	h0 := p.New()
	h1 := p.New()
	require.NoError(t, p.Delete(h0))

	h2 := p.New()
	assert.Equal(t, h0, h2, "freed slot should be reused before growing")
	assert.NotEqual(t, h1, h2)
}

func TestPoolGetInvalidHandle(t *testing.T) {
	p := newTestPool()
	_, err := p.Get(Handle(99))
	require.Error(t, err)
	assert.Equal(t, ircerr.Inval, ircerr.KindOf(err))

	h := p.New()
	require.NoError(t, p.Delete(h))
	_, err = p.Get(h)
	require.Error(t, err)
}

func TestSelectFDsDisconnectedConnection(t *testing.T) {
	p := newTestPool()
	p.New()
	readers, writers := p.SelectFDs()
	assert.Empty(t, readers)
	assert.Empty(t, writers, "a freshly-allocated DISCONNECTED connection wants neither")
}
