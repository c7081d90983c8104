package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/availability"
	"github.com/qunqun-dev/date-poll/backend/internal/cache"
	"github.com/qunqun-dev/date-poll/backend/internal/config"
	"github.com/qunqun-dev/date-poll/backend/internal/handler"
	"github.com/qunqun-dev/date-poll/backend/internal/live"
	"github.com/qunqun-dev/date-poll/backend/internal/notify"
	"github.com/qunqun-dev/date-poll/backend/internal/repository"
	"github.com/qunqun-dev/date-poll/backend/internal/session"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * 加载配置
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法加载配置文件", "error", err)
		return
	}

	/**********************************************
	 * 连接存储
	 **********************************************/
	repo, closeRepo, err := repository.Open(context.Background(), cfg)
	if err != nil {
		logger.Error("无法连接到存储", "driver", cfg.Store.Driver, "error", err)
		return
	}
	defer closeRepo()
	logger.Info("已连接到存储", "driver", cfg.Store.Driver)

	/**********************************************
	 * 连接 redis（可选）
	 **********************************************/
	var rangeCache availability.RangeCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       0,
		})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Redis.ConnectTimeout)*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Error("无法连接到 redis", "error", err)
			return
		}
		rangeCache = cache.NewRangeCache(rdb, time.Duration(cfg.Redis.RangeTTL)*time.Second)
	}

	/**********************************************
	 * 建立变更通知通道
	 **********************************************/
	var notifier notify.Notifier
	if cfg.RabbitMQ.Enabled {
		conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
		if err != nil {
			logger.Error("无法连接到 rabbitmq", "error", err)
			return
		}
		defer conn.Close()

		mq, err := notify.NewRabbitMQ(cfg, conn)
		if err != nil {
			logger.Error("无法声明交换机", "error", err)
			return
		}
		defer mq.Close()
		notifier = mq
	} else {
		// 只有一个 API 实例时在进程内通知即可
		local := notify.NewLocal()
		defer local.Close()
		notifier = local
	}

	/**********************************************
	 * 启动订阅中心
	 **********************************************/
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hub := live.NewHub(repo)
	hubErr := make(chan error, 1)
	go func() {
		hubErr <- hub.Run(hubCtx, notifier)
	}()

	store := availability.NewStore(repo, hub, notifier, rangeCache)

	/**********************************************
	 * 创建 handler
	 **********************************************/
	identity := session.NewJWTIdentity(cfg.Session.Secret, time.Duration(cfg.Session.Expiration)*time.Second)
	handler, err := handler.NewHandler(cfg, store, identity, repo)
	if err != nil {
		logger.Error("无法创建 handler", "error", err)
		return
	}
	handler.RegisterRoutes()

	/**********************************************
	 * 启动 HTTP 服务器
	 **********************************************/
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      handler.Mux,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("正在启动服务器...", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("无法启动服务器", slog.String("error", err.Error()))
			return
		}
	}()

	select {
	case <-quit:
	case err := <-hubErr:
		// 变更通知断开后实时订阅无法继续，交给外部重启
		logger.Error("变更通知已中断", "error", err)
	}
	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("关闭服务器失败", slog.String("error", err.Error()))
	}
	stopHub()
	logger.Info("服务器已成功关闭")
}
