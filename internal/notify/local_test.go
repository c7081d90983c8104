package notify

import (
	"context"
	"testing"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan domain.ChangeEvent) domain.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "通道不应关闭")
		return ev
	case <-time.After(time.Second):
		t.Fatal("等待事件超时")
	}
	return domain.ChangeEvent{}
}

func TestLocalFanout(t *testing.T) {
	n := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := n.Listen(ctx)
	require.NoError(t, err)
	b, err := n.Listen(ctx)
	require.NoError(t, err)

	require.NoError(t, n.Publish(ctx, domain.ChangeEvent{Date: "2024-02-10", User: "Alice", Vote: domain.VoteAvailable}))

	assert.Equal(t, "2024-02-10", receive(t, a).Date)
	assert.Equal(t, "2024-02-10", receive(t, b).Date)
}

func TestLocalListenerClosedWhenContextEnds(t *testing.T) {
	n := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := n.Listen(ctx)
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// 已经退出的监听者不应阻塞发布
	require.NoError(t, n.Publish(context.Background(), domain.ChangeEvent{Date: "2024-02-10"}))
}

func TestLocalClose(t *testing.T) {
	n := NewLocal()

	ch, err := n.Listen(context.Background())
	require.NoError(t, err)
	n.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, err := n.Listen(context.Background())
	require.NoError(t, err)
	_, ok = <-late
	assert.False(t, ok)
}
