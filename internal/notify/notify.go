package notify

import (
	"context"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
)

// Notifier 在写入成功后传播变更事件，所有副本上的订阅中心都会收到
type Notifier interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
	// Listen 返回的通道在 ctx 结束或底层连接断开时关闭
	Listen(ctx context.Context) (<-chan domain.ChangeEvent, error)
}
