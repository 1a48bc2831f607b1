package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jengzang/legs-backend-go/internal/api"
	"github.com/jengzang/legs-backend-go/internal/app"
	"github.com/jengzang/legs-backend-go/internal/config"
	"github.com/jengzang/legs-backend-go/internal/database"
	"github.com/jengzang/legs-backend-go/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	log.Printf("Config loaded: workers=%d, leg_generation=%v, cluster=%v, vehicle_poll=%v",
		cfg.Workers, cfg.LegGenerationInterval, cfg.ClusterInterval, cfg.VehiclePollInterval)

	// 初始化数据库
	if err := database.Init(database.Config{Path: cfg.DBPath}); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()

	a := app.New(cfg, database.GetDB())
	if a.Poller == nil {
		log.Printf("No vehicle positions feed configured, live matching disabled")
	}
	if a.Env.Planner == nil {
		log.Printf("No journey planner configured, planner matching disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New()
	for _, j := range a.Jobs() {
		sched.Add(j)
	}
	sched.Start(ctx)

	// 初始化路由
	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: api.SetupRouter(cfg, api.Services{Tasks: a.Tasks, Legs: a.Legs}),
	}

	// 启动服务器
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}

	sched.Wait()
	a.Tasks.Wait()
	log.Println("Stopped")
}
