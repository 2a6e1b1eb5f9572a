package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"elx/engine/internal/advisory"
	"elx/engine/internal/breaker"
	"elx/engine/internal/dlq"
	"elx/engine/internal/governor"
	"elx/engine/internal/idempotency"
	"elx/engine/internal/orchestrator"
	"elx/engine/internal/resolver"
	"elx/engine/internal/sla"
	"elx/engine/internal/worker"
	"elx/engine/pkg/config"
	"elx/engine/pkg/infra/mysql"
	redisinfra "elx/engine/pkg/infra/redis"
	"elx/engine/pkg/lmstfy"
	"elx/engine/pkg/logger"
	"elx/engine/pkg/metrics"
)

var (
	configPath = flag.String("config", "./config/worker.yaml", "配置文件路径")
)

func main() {
	flag.Parse()

	log.Println("========================================")
	log.Println("  ELX Engine Worker Starting...")
	log.Println("========================================")

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	log.Printf("Config loaded: %s, env: %s, log_level: %s\n", cfg.App.Name, cfg.App.Env, cfg.App.LogLevel)

	// 2. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx := context.Background()

	// 3. 基础设施：MySQL / Redis / Lmstfy
	db, err := mysql.Open(cfg.MySQL.DSN)
	if err != nil {
		log.Fatalf("Failed to open mysql: %v", err)
	}
	defer mysql.Close(db)

	redisClient, err := redisinfra.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	lmstfyClient, err := lmstfy.NewClient(cfg.Lmstfy.Host, cfg.Lmstfy.Port, cfg.Lmstfy.Namespace, cfg.Lmstfy.Token)
	if err != nil {
		log.Fatalf("Failed to create lmstfy client: %v", err)
	}

	// 4. 存储层
	eventDAO := mysql.NewEventDAO(db)
	exceptionDAO := mysql.NewExceptionDAO(db)
	dlqDAO := mysql.NewDLQDAO(db)

	// 5. 核心组件
	gate := idempotency.NewGate(redisClient, eventDAO, cfg.Idempotency.LockTTL, zapLogger)

	creator := governor.NewPolicyCreator(exceptionDAO, cfg.Resolution.MaxAttempts)
	slaEngine := sla.NewEngine(cfg.StagesFor, cfg.SLA.Severity, creator, zapLogger)
	detector := sla.NewProblemDetector(creator, zapLogger)

	brk := breaker.New("ai_advisory", redisinfra.NewBreakerStore(redisClient),
		cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown, cfg.Breaker.ProbeTimeout,
		func(name, from, to string) {
			metrics.BreakerTransitions.WithLabelValues(name, from, to).Inc()
		}, zapLogger)

	aiClient, err := advisory.NewOpenAIClient(cfg.AI)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}
	advisorySub := advisory.NewSubsystem(cfg.AI, aiClient, brk, redisinfra.NewTokenBudget(redisClient), zapLogger)

	gov := governor.NewGovernor(exceptionDAO, zapLogger)
	ruleResolver := resolver.NewRuleResolver(zapLogger)
	notifier := redisinfra.NewNotifier(redisClient, cfg.Redis.NotifyChannel)
	dlqService := dlq.NewService(dlqDAO, cfg.DLQ, zapLogger)

	orch := orchestrator.NewOrchestrator(
		gate, eventDAO, slaEngine, detector,
		advisorySub, exceptionDAO, gov, ruleResolver,
		notifier, dlqService, cfg.AI, zapLogger,
	)

	// 6. 指标端口
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				zapLogger.Errorf(ctx, "[Main] metrics server exited: %v", err)
			}
		}()
	}

	// 7. 死信重放驱动
	replayer := worker.NewReplayer(dlqService, orch.Reprocess, cfg.DLQ, zapLogger)
	replayer.Start(ctx)

	// 8. 创建并启动 Manager
	mgr, err := worker.NewManagerInstance(cfg, lmstfyClient, orch, zapLogger)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}

	go func() {
		if err := mgr.Start(); err != nil {
			log.Fatalf("Manager start failed: %v", err)
		}
	}()

	log.Println("Worker started. Press Ctrl+C to shutdown.")

	// 9. 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Println("========================================")
	log.Printf("  Received signal: %v\n", sig)
	log.Println("  Shutting down Worker...")
	log.Println("========================================")

	// 10. 优雅关闭
	replayer.Shutdown()
	mgr.Shutdown()

	fmt.Println("========================================")
	fmt.Println("  Worker exited gracefully")
	fmt.Println("========================================")
}
