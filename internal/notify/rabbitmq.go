package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/qunqun-dev/date-poll/backend/internal/config"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"
)

// RabbitMQ 通过 fanout 交换机把变更事件广播给所有 API 副本
type RabbitMQ struct {
	cfg      *config.Config
	conn     *amqp.Connection
	exchange string

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

func NewRabbitMQ(cfg *config.Config, conn *amqp.Connection) (*RabbitMQ, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	// 声明交换机
	if err := ch.ExchangeDeclare(
		cfg.RabbitMQ.Exchange, // 交换机名称
		"fanout",              // 类型，每个副本各自绑定一个队列
		true,                  // 是否持久化
		false,                 // 是否自动删除
		false,                 // 是否为内部交换机
		false,                 // 是否不等待
		nil,                   // 额外参数
	); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &RabbitMQ{
		cfg:      cfg,
		conn:     conn,
		exchange: cfg.RabbitMQ.Exchange,
		pubCh:    ch,
	}, nil
}

func (n *RabbitMQ) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(n.cfg.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	n.pubMu.Lock()
	defer n.pubMu.Unlock()

	return n.pubCh.PublishWithContext(ctx,
		n.exchange, // 交换机
		"",         // fanout 交换机忽略路由键
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   ev.UpdatedAt,
			Body:        body,
		},
	)
}

func (n *RabbitMQ) Listen(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	ch, err := n.conn.Channel()
	if err != nil {
		return nil, err
	}

	// 每个副本一个独占的临时队列，连接断开后自动删除
	q, err := ch.QueueDeclare(
		"",    // 由 RabbitMQ 自动命名
		false, // 不持久化
		true,  // 自动删除
		true,  // 独占
		false, // 等待确认
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	if err := ch.QueueBind(q.Name, "", n.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}

	msgs, err := ch.Consume(
		q.Name, // 队列
		"",     // 消费者标识由 RabbitMQ 分配
		true,   // 自动确认，变更事件丢了也只是少一次刷新
		true,   // 独占队列
		false,  // no-local，RabbitMQ 不支持
		false,  // 等待响应
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	out := make(chan domain.ChangeEvent, localBufferSize)
	go func() {
		defer close(out)
		defer ch.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Error("变更事件通道已关闭")
					return
				}
				ev := domain.ChangeEvent{}
				if err := json.Unmarshal(msg.Body, &ev); err != nil {
					slog.Error("变更事件反序列化失败", slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (n *RabbitMQ) Close() error {
	n.pubMu.Lock()
	defer n.pubMu.Unlock()

	return n.pubCh.Close()
}
