package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"elx/engine/internal/admin"
	"elx/engine/internal/advisory"
	"elx/engine/internal/breaker"
	"elx/engine/internal/dlq"
	"elx/engine/internal/governor"
	"elx/engine/internal/idempotency"
	"elx/engine/internal/orchestrator"
	"elx/engine/internal/resolver"
	"elx/engine/internal/sla"
	"elx/engine/pkg/config"
	"elx/engine/pkg/infra/mysql"
	redisinfra "elx/engine/pkg/infra/redis"
	"elx/engine/pkg/lmstfy"
	"elx/engine/pkg/logger"
	"elx/engine/pkg/metrics"
)

var (
	configPath  = flag.String("config", "./config/worker.yaml", "配置文件路径")
	batchSize   = flag.Int("batch", 0, "replay: 单批重放数量（0 用配置值）")
	maxBatches  = flag.Int("max-batches", 1, "replay: 最大批次数")
	exceptionID = flag.Int64("exception", 0, "reset/show: 异常 ID")
	queueName   = flag.String("queue", "", "publish: 目标队列")
	eventFile   = flag.String("file", "", "publish: 事件 JSON 文件路径")
)

func usage() {
	fmt.Println("Usage: admin [flags] <command>")
	fmt.Println("Commands:")
	fmt.Println("  replay    重放到期死信")
	fmt.Println("  reset     复位异常处置跟踪（-exception 必填）")
	fmt.Println("  show      查看异常详情（-exception 必填）")
	fmt.Println("  publish   向队列投递事件（-queue -file 必填）")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	command := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx := context.Background()

	// publish 只需要队列客户端，不连 MySQL/Redis
	if command == "publish" {
		runPublish(cfg)
		return
	}

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

	eventDAO := mysql.NewEventDAO(db)
	exceptionDAO := mysql.NewExceptionDAO(db)
	dlqDAO := mysql.NewDLQDAO(db)

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

	adminSvc := admin.NewService(dlqService, orch.Reprocess, gov, exceptionDAO, zapLogger)

	switch command {
	case "replay":
		size := *batchSize
		if size <= 0 {
			size = cfg.DLQ.BatchSize
		}
		succeeded, failed, err := adminSvc.ReplayDLQ(ctx, size, *maxBatches)
		if err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		fmt.Printf("Replay done: succeeded=%d failed=%d\n", succeeded, failed)

	case "reset":
		if *exceptionID <= 0 {
			log.Fatal("-exception is required")
		}
		if err := adminSvc.ResetResolution(ctx, *exceptionID); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		fmt.Printf("Exception %d resolution tracking reset\n", *exceptionID)

	case "show":
		if *exceptionID <= 0 {
			log.Fatal("-exception is required")
		}
		exc, err := adminSvc.ShowException(ctx, *exceptionID)
		if err != nil {
			log.Fatalf("Show failed: %v", err)
		}
		out, _ := json.MarshalIndent(exc, "", "  ")
		fmt.Println(string(out))

	default:
		usage()
		os.Exit(1)
	}
}

// runPublish 向队列投递一条事件消息（联调用）
func runPublish(cfg *config.Config) {
	if *queueName == "" || *eventFile == "" {
		log.Fatal("-queue and -file are required")
	}

	data, err := os.ReadFile(*eventFile)
	if err != nil {
		log.Fatalf("Read event file failed: %v", err)
	}

	// 投递前确认消息结构合法
	var probe map[string]interface{}
	if err := json.Unmarshal(data, &probe); err != nil {
		log.Fatalf("Event file is not valid JSON: %v", err)
	}

	cli, err := lmstfy.NewClient(cfg.Lmstfy.Host, cfg.Lmstfy.Port, cfg.Lmstfy.Namespace, cfg.Lmstfy.Token)
	if err != nil {
		log.Fatalf("Failed to create lmstfy client: %v", err)
	}

	jobID, err := cli.Publish(*queueName, data, 0, 0)
	if err != nil {
		log.Fatalf("Publish failed: %v", err)
	}
	fmt.Printf("Published job %s to queue %s\n", jobID, *queueName)
}
