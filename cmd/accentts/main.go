package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/iabetor/accentts/internal/app"
	"github.com/iabetor/accentts/internal/config"
	"github.com/iabetor/accentts/internal/logger"
	"github.com/iabetor/accentts/internal/pipeline"
	"github.com/iabetor/accentts/internal/server"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，为空则只使用环境变量和默认值")
	addr := flag.String("addr", "", "监听地址，覆盖配置中的 server.addr")
	skipPreload := flag.Bool("skip-preload", false, "启动时不预加载模型")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *skipPreload); err != nil {
		logger.Errorf("[main] %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("[main] accentts 已停止")
}

func run(cfg *config.Config, skipPreload bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, pipeline.WithObserver(func(id string, from, to pipeline.State) {
		if to == pipeline.StateFailed {
			logger.Debugf("[main] 请求 %s 在 %s 阶段失败", id, from)
		}
	}))
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer a.Close()

	if !skipPreload {
		logger.Info("[main] 正在预加载模型...")
		if err := a.Preload(ctx); err != nil {
			return fmt.Errorf("预加载模型失败: %w", err)
		}
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: server.New(a.Pipeline, server.Options{
			MaxTextChars:           cfg.Server.MaxTextChars,
			AllowReferenceOverride: cfg.Server.AllowReferenceOverride,
			CORSOrigins:            cfg.Server.CORSOrigins,
			RateLimit:              cfg.Server.RateLimit,
			RateBurst:              cfg.Server.RateBurst,
			StaticDir:              cfg.Server.StaticDir,
			Ready:                  a.Ready,
			ReloadReference:        a.ReloadReference,
		}).Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("[main] accentts 监听 %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务异常退出: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("[main] 收到退出信号，正在关闭...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
