package notify

import (
	"context"
	"sync"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
)

const localBufferSize = 64

type localListener struct {
	ch   chan domain.ChangeEvent
	done chan struct{}
	once sync.Once
}

// Local 是单进程内的通知器，用于单副本部署和测试
type Local struct {
	mu        sync.RWMutex
	listeners map[*localListener]struct{}
	closed    bool
}

func NewLocal() *Local {
	return &Local{
		listeners: make(map[*localListener]struct{}),
	}
}

func (n *Local) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for l := range n.listeners {
		select {
		case l.ch <- ev:
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (n *Local) Listen(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	l := &localListener{
		ch:   make(chan domain.ChangeEvent, localBufferSize),
		done: make(chan struct{}),
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(l.ch)
		return l.ch, nil
	}
	n.listeners[l] = struct{}{}
	n.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			n.remove(l)
		case <-l.done:
		}
	}()

	return l.ch, nil
}

// Close 关闭所有监听通道，之后的 Listen 会拿到已关闭的通道
func (n *Local) Close() {
	n.mu.Lock()
	n.closed = true
	listeners := make([]*localListener, 0, len(n.listeners))
	for l := range n.listeners {
		listeners = append(listeners, l)
	}
	n.mu.Unlock()

	for _, l := range listeners {
		n.remove(l)
	}
}

func (n *Local) remove(l *localListener) {
	l.once.Do(func() {
		// 先关闭 done 让正在发送的 Publish 退出，再在写锁下关闭 ch
		close(l.done)
		n.mu.Lock()
		delete(n.listeners, l)
		close(l.ch)
		n.mu.Unlock()
	})
}

// Listeners 返回当前的监听者数量
func (n *Local) Listeners() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.listeners)
}
