package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/qunqun-dev/date-poll/backend/internal/availability"
	"github.com/qunqun-dev/date-poll/backend/internal/config"
	"github.com/qunqun-dev/date-poll/backend/internal/live"
	"github.com/qunqun-dev/date-poll/backend/internal/notify"
	"github.com/qunqun-dev/date-poll/backend/internal/repository"
	"github.com/qunqun-dev/date-poll/backend/internal/seed"
)

func main() {
	var n int
	var year int
	var month int
	var density float64
	var csvPath string

	flag.IntVar(&n, "n", 8, "要生成的投票人数")
	flag.IntVar(&year, "year", 0, "要生成投票的年份")
	flag.IntVar(&month, "month", 0, "要生成投票的月份 (1-12)")
	flag.Float64Var(&density, "density", -1, "每人每天投票的概率，默认使用 SEED_DENSITY")
	flag.StringVar(&csvPath, "csv", "", "从 CSV 文件导入投票，指定后忽略其他参数")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if density < 0 {
		density = cfg.Seed.Density
	}

	ctx := context.Background()

	// 连接存储
	repo, closeRepo, err := repository.Open(ctx, cfg)
	if err != nil {
		logger.Error("无法连接到存储", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	// 没有订阅者，进程内通知即可；正在运行的 API 实例不会收到这些变更，需要刷新页面
	notifier := notify.NewLocal()
	defer notifier.Close()
	hub := live.NewHub(repo)
	defer hub.Close()
	store := availability.NewStore(repo, hub, notifier, nil)

	var result seed.Result
	if csvPath != "" {
		file, err := os.Open(csvPath)
		if err != nil {
			logger.Error("打开文件失败", "error", err)
			os.Exit(1)
		}
		defer file.Close()

		result, err = seed.ImportCSV(ctx, store, file, cfg.Commit.Concurrency)
		if err != nil {
			logger.Error("导入投票失败", "error", err)
			return
		}
	} else {
		result, err = seed.SeedRandomMonth(ctx, store, seed.Options{
			Voters:      n,
			Year:        year,
			Month:       month,
			Density:     density,
			Concurrency: cfg.Commit.Concurrency,
		})
		if err != nil {
			logger.Error("生成投票失败", "error", err)
			return
		}
	}

	logger.Info("插入投票完成", "voters", len(result.Voters), "written", result.Written, "failed", result.Failed)
}
