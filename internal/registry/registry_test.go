package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relayhub/internal/wsconn"
)

func newConn() *wsconn.Conn {
	return &wsconn.Conn{}
}

func TestRegisterHostReplacesExisting(t *testing.T) {
	r := New()
	h1 := newConn()
	h2 := newConn()

	previous := r.RegisterHost("alpha", nil, h1)
	assert.Nil(t, previous)

	previous = r.RegisterHost("alpha", nil, h2)
	require.NotNil(t, previous)
	assert.Same(t, h1, previous)

	got, ok := r.HostConn("alpha")
	require.True(t, ok)
	assert.Same(t, h2, got)
}

func TestAttachControllerRequiresExistingHost(t *testing.T) {
	r := New()
	c := newConn()

	_, ok := r.AttachController("alpha", c, "sess-1", nil)
	assert.False(t, ok)

	h := newConn()
	r.RegisterHost("alpha", nil, h)

	hostConn, ok := r.AttachController("alpha", c, "sess-1", nil)
	require.True(t, ok)
	assert.Same(t, h, hostConn)
	assert.Equal(t, wsconn.Controller, c.Role)
	assert.Equal(t, "sess-1", c.SessionID)
}

func TestDetachHostReturnsAttachedControllers(t *testing.T) {
	r := New()
	h := newConn()
	c1, c2 := newConn(), newConn()
	r.RegisterHost("alpha", nil, h)
	r.AttachController("alpha", c1, "s1", nil)
	r.AttachController("alpha", c2, "s2", nil)

	controllers, existed := r.DetachHost(h)
	require.True(t, existed)
	assert.ElementsMatch(t, []*wsconn.Conn{c1, c2}, controllers)

	_, ok := r.HostConn("alpha")
	assert.False(t, ok)
}

func TestDetachControllerUpdatesSiblings(t *testing.T) {
	r := New()
	h := newConn()
	c1, c2 := newConn(), newConn()
	r.RegisterHost("alpha", nil, h)
	r.AttachController("alpha", c1, "s1", nil)
	r.AttachController("alpha", c2, "s2", nil)

	rec, hostConn, siblings := r.DetachController(c1)
	require.NotNil(t, rec)
	assert.Same(t, h, hostConn)
	assert.Equal(t, []*wsconn.Conn{c2}, siblings)

	remaining := r.ControllersOf(h)
	assert.Equal(t, []*wsconn.Conn{c2}, remaining)
}

func TestAtMostOneHostPerPassword(t *testing.T) {
	r := New()
	r.RegisterHost("alpha", nil, newConn())
	r.RegisterHost("alpha", nil, newConn())
	assert.True(t, r.HostExists("alpha"))
	stats := r.Stats()
	assert.Equal(t, 1, stats.Computers)
}
