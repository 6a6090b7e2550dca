package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	c, err := New(1 << 20)
	require.NoError(t, err)
	defer c.Close()

	c.Set("k", []byte("v"), time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	c, err := New(0)
	require.NoError(t, err)
	defer c.Close()

	type card struct{ Name string }
	SetJSON(c, "card", card{Name: "market"}, time.Minute)
	got, ok := GetJSON[card](c, "card")
	require.True(t, ok)
	assert.Equal(t, "market", got.Name)

	_, ok = GetJSON[card](c, "missing")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c, err := New(1 << 20)
	require.NoError(t, err)
	defer c.Close()

	c.Set("short", []byte("x"), 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	_, ok := c.Get("short")
	assert.False(t, ok)
}
