package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watchdash/internal/config"
	"watchdash/internal/engine"
	"watchdash/internal/logger"
	"watchdash/internal/marketdata"
	"watchdash/internal/models"
	"watchdash/internal/notify"
	"watchdash/internal/persistence"
	"watchdash/internal/positions"
	"watchdash/internal/reporter"
	"watchdash/internal/server"
	"watchdash/internal/watchlist"

	"github.com/joho/godotenv"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.yaml", "path to the config file (yaml or json)")
	mode := flag.String("mode", "run", "running mode: run, serve, chart, enter, half, close, positions or notify")
	symbol := flag.String("symbol", "", "position symbol, e.g. NASDAQ:TSLA")
	price := flag.Float64("price", 0, "entry or close price")
	round := flag.Int("round", 1, "strategy round of the entry")
	quantity := flag.Float64("qty", 0, "quantity of the entry (display only)")
	date := flag.String("date", "", "entry or close date (YYYY-MM-DD), defaults to today")
	message := flag.String("msg", "watchdash test message", "text sent in notify mode")
	bars := flag.Int("bars", 30, "number of recent bars shown in chart mode")
	flag.Parse()

	// --- 初始化日志 (提前) ---
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	loc := config.Location(cfg)
	repo, err := persistence.Open(cfg.Store)
	if err != nil {
		logger.S().Fatalf("无法打开持仓存储 (%s): %v", cfg.Store.Driver, err)
	}
	defer repo.Close()
	store := positions.NewStore(repo, logger.L(), positions.WithLocation(loc))

	switch *mode {
	case "run":
		runOnce(cfg, store)
	case "serve":
		runServe(cfg, store, loc)
	case "chart":
		runChart(cfg, store, *symbol, *bars)
	case "enter":
		var opts []positions.EntryOption
		if *quantity > 0 {
			opts = append(opts, positions.WithQuantity(*quantity))
		}
		if *date != "" {
			opts = append(opts, positions.WithEntryDate(*date))
		}
		id, err := store.CreateEntry(*symbol, *price, *round, opts...)
		if err != nil {
			logger.S().Fatalf("记录入场失败: %v", err)
		}
		logger.S().Infof("入场记录完成: %s @ %.4f (id=%s)", *symbol, *price, id)
	case "half":
		if err := store.RecordHalfExit(*symbol); err != nil {
			logger.S().Fatalf("记录止盈一半失败: %v", err)
		}
		logger.S().Infof("已记录 %s 止盈一半", *symbol)
	case "close":
		closeDate, err := parseDate(*date, loc)
		if err != nil {
			logger.S().Fatal(err)
		}
		if err := store.RecordClose(*symbol, *price, closeDate); err != nil {
			logger.S().Fatalf("记录清仓失败: %v", err)
		}
		logger.S().Infof("已记录 %s 清仓 @ %.4f", *symbol, *price)
	case "positions":
		all, err := store.List()
		if err != nil {
			logger.S().Fatalf("读取持仓失败: %v", err)
		}
		reporter.RenderPositions(os.Stdout, all)
	case "notify":
		n := notify.New(cfg.Notify.Telegram, logger.L())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if !n.Send(ctx, "", *message) {
			logger.S().Fatal("发送通知失败")
		}
		logger.S().Info("通知已发送")
	default:
		logger.S().Fatalf("未知的运行模式: %s", *mode)
	}
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(models.DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式错误，请使用 YYYY-MM-DD 格式: %w", err)
	}
	return t, nil
}

// runOnce 执行一个周期并以表格形式输出
func runOnce(cfg *models.Config, store *positions.Store) {
	ctx := context.Background()
	fetcher, closeCache := marketdata.NewFromConfig(ctx, cfg.Data, logger.L())
	defer closeCache()

	items, err := watchlist.NewCatalog(cfg.Watchlist.Path).Items()
	if err != nil {
		logger.S().Fatalf("无法加载关注列表: %v", err)
	}

	eng := engine.New(fetcher, store, cfg.Params, cfg.Data, logger.L())
	rows, err := eng.RunCycle(ctx, items)
	if err != nil {
		logger.S().Errorf("周期执行出错: %v", err)
	}
	if rows != nil {
		reporter.RenderStatus(os.Stdout, rows)
	}

	if cfg.Notify.OnSignal {
		alerter := notify.NewSignalAlerter(notify.New(cfg.Notify.Telegram, logger.L()), "", logger.L())
		alerter.Observe(ctx, rows)
	}
}

// runChart 输出单个标的的指标序列
func runChart(cfg *models.Config, store *positions.Store, symbol string, bars int) {
	if symbol == "" {
		logger.S().Fatal("chart 模式需要 -symbol 参数")
	}
	ctx := context.Background()
	fetcher, closeCache := marketdata.NewFromConfig(ctx, cfg.Data, logger.L())
	defer closeCache()

	series, err := engine.New(fetcher, store, cfg.Params, cfg.Data, logger.L()).Series(ctx, symbol)
	if err != nil {
		logger.S().Fatalf("无法计算 %s 的指标: %v", symbol, err)
	}
	if bars > 0 && len(series) > bars {
		series = series[len(series)-bars:]
	}
	reporter.RenderSeries(os.Stdout, symbol, series)
}

// runServe 启动 HTTP 服务与定时周期
func runServe(cfg *models.Config, store *positions.Store, loc *time.Location) {
	logger.S().Info("--- 启动服务模式 ---")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher, closeCache := marketdata.NewFromConfig(ctx, cfg.Data, logger.L())
	defer closeCache()

	var alerter *notify.SignalAlerter
	if cfg.Notify.OnSignal {
		alerter = notify.NewSignalAlerter(notify.New(cfg.Notify.Telegram, logger.L()), "", logger.L())
	}

	metrics := server.NewMetrics()
	hub := server.NewHub(metrics, logger.L())
	eng := engine.New(fetcher, store, cfg.Params, cfg.Data, logger.L())
	cycler := server.NewCycler(eng, watchlist.NewCatalog(cfg.Watchlist.Path), hub, metrics, alerter, logger.L())
	srv := server.New(cfg.Server.Addr, cycler, eng, store, hub, metrics, loc, logger.L())

	scheduler := server.NewScheduler(cycler, cfg.Server.Schedule, logger.L())
	if err := scheduler.Start(ctx); err != nil {
		logger.S().Fatalf("定时任务启动失败: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	// 等待中断信号以实现优雅退出
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.S().Errorf("HTTP 服务异常退出: %v", err)
		}
	}

	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.S().Warnf("关闭 HTTP 服务失败: %v", err)
	}
	logger.S().Info("服务已停止。")
}
