package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/qunqun-dev/date-poll/backend/internal/config"
	"github.com/qunqun-dev/date-poll/backend/internal/notify"
	amqp "github.com/rabbitmq/amqp091-go"
)

// audit 订阅变更交换机，把每一次投票写成一行日志，便于事后排查谁在什么时候改了什么
func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	/**********************************************
	 * 读取配置文件
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		return
	}
	if !cfg.RabbitMQ.Enabled {
		logger.Error("审计日志需要启用 RabbitMQ (RABBITMQ_ENABLED=true)")
		return
	}

	/**********************************************
	 * 连接 RabbitMQ
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("无法连接到 RabbitMQ", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	mq, err := notify.NewRabbitMQ(cfg, conn)
	if err != nil {
		logger.Error("无法声明交换机", slog.String("error", err.Error()))
		return
	}
	defer mq.Close()

	// 监听 CTRL+C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := mq.Listen(ctx)
	if err != nil {
		logger.Error("无法消费消息", slog.String("error", err.Error()))
		return
	}

	logger.Info("开始记录投票变更", "exchange", cfg.RabbitMQ.Exchange)
	for ev := range events {
		logger.Info("投票变更",
			"date", ev.Date,
			"user", ev.User,
			"vote", string(ev.Vote),
			"updated_at", ev.UpdatedAt,
		)
	}

	if ctx.Err() == nil {
		logger.Error("变更通道意外关闭")
		os.Exit(1)
	}
	logger.Info("审计日志已退出")
}
