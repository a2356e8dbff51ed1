package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopRespectsDelay(t *testing.T) {
	f := New("test", 4, 100)

	require.NoError(t, f.Push(0, []byte("a")))

	_, ok := f.Pop(50)
	assert.False(t, ok, "element must not be poppable before tick_out")

	e, ok := f.Pop(100)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), e.Payload)
	assert.Equal(t, int64(0), e.TickIn)
	assert.Equal(t, int64(100), e.TickOut)
}

func TestPushFullFIFOFails(t *testing.T) {
	f := New("bounded", 2, 0)
	require.NoError(t, f.Push(0, []byte("a")))
	require.NoError(t, f.Push(0, []byte("b")))

	err := f.Push(0, []byte("c"))
	require.Error(t, err)
}

func TestDrainReadyOrdersByPush(t *testing.T) {
	f := New("order", 0, 10)
	require.NoError(t, f.Push(0, []byte("1")))
	require.NoError(t, f.Push(5, []byte("2")))
	require.NoError(t, f.Push(5, []byte("3")))

	out := f.DrainReady(20)
	require.Len(t, out, 3)
	assert.Equal(t, []byte("1"), out[0].Payload)
	assert.Equal(t, []byte("2"), out[1].Payload)
	assert.Equal(t, []byte("3"), out[2].Payload)
}

func TestFlushEmpties(t *testing.T) {
	f := New("flush", 0, 0)
	require.NoError(t, f.Push(0, []byte("x")))
	f.Flush()
	assert.Equal(t, 0, f.Len())
}

func TestRequeuePlacesElementAtHead(t *testing.T) {
	f := New("requeue", 0, 10)
	require.NoError(t, f.Push(0, []byte("1")))
	require.NoError(t, f.Push(0, []byte("2")))

	f.Requeue(Element{Payload: []byte("tail"), TickIn: 0, TickOut: 5})

	out := f.DrainReady(20)
	require.Len(t, out, 3)
	assert.Equal(t, []byte("tail"), out[0].Payload)
	assert.Equal(t, []byte("1"), out[1].Payload)
	assert.Equal(t, []byte("2"), out[2].Payload)
}

func TestBacklogBytes(t *testing.T) {
	f := New("backlog", 0, 1000)
	require.NoError(t, f.Push(0, []byte("abc")))
	require.NoError(t, f.Push(0, []byte("de")))
	assert.Equal(t, 5, f.BacklogBytes())
	assert.Equal(t, 2, f.BacklogCount())
}
