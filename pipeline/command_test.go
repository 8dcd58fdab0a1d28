package pipeline

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestParseCommand(t *testing.T) {

	tests := []struct {
		in   string
		want Command
	}{
		{"quit", Quit},
		{" Q ", Quit},
		{"reset", ResetCounts},
		{"R", ResetCounts},
		{"snapshot", SaveSnapshot},
		{"save", SaveSnapshot},
	}

	for _, tc := range tests {
		cmd, err := ParseCommand(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, cmd, tc.in)
	}

	_, err := ParseCommand("pause")
	assert.Error(t, err)
}

func TestKeyCommand(t *testing.T) {

	tests := []struct {
		key  int
		want Command
		ok   bool
	}{
		{'q', Quit, true},
		{27, Quit, true},
		{'r', ResetCounts, true},
		{'S', SaveSnapshot, true},
		// modifier bits above the key code are ignored
		{0x100000 | 's', SaveSnapshot, true},
		{-1, 0, false},
		{'x', 0, false},
	}

	for _, tc := range tests {
		cmd, ok := KeyCommand(tc.key)
		assert.Equal(t, tc.ok, ok, "key %d", tc.key)
		assert.Equal(t, tc.want, cmd, "key %d", tc.key)
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "quit", Quit.String())
	assert.Equal(t, "reset", ResetCounts.String())
	assert.Equal(t, "snapshot", SaveSnapshot.String())
	assert.Equal(t, "command(9)", Command(9).String())
}

func TestBroadcaster(t *testing.T) {

	b := newBroadcaster()
	assert.False(t, b.active())

	id, ch := b.subscribe()
	assert.True(t, b.active())

	b.publish([]byte{1})
	b.publish([]byte{2})
	// dropped, the client buffer is full
	b.publish([]byte{3})

	assert.Equal(t, []byte{1}, <-ch)
	assert.Equal(t, []byte{2}, <-ch)

	b.unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	assert.False(t, b.active())

	// unsubscribing twice is harmless
	b.unsubscribe(id)

	_, ch2 := b.subscribe()
	b.close()
	_, open = <-ch2
	assert.False(t, open)

	_, ch3 := b.subscribe()
	_, open = <-ch3
	assert.False(t, open)
}
