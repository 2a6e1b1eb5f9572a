package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Name: "elx-engine", Env: "test"},
		MySQL:  MySQLConfig{DSN: "root:pass@tcp(127.0.0.1:3306)/elx"},
		Redis:  RedisConfig{Addr: "127.0.0.1:6379"},
		Lmstfy: LmstfyConfig{Host: "127.0.0.1", Port: 7777, Namespace: "elx"},
		Workers: []WorkerConfig{
			{Name: "order-event-ingest", QueueName: "order_events"},
		},
		SLA: SLAConfig{
			Stages: []SLAStage{
				{ReasonCode: "PICK_DELAY", FromEvent: "order_paid", ToEvent: "pick_completed", Minutes: 120},
			},
			Severity: SeverityConfig{MediumBelow: 0.5, HighBelow: 1.5},
		},
		AI:         AIConfig{MinConfidence: 0.55, BlockConfidence: 0.3},
		Resolution: ResolutionConfig{MaxAttempts: 2},
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	require.Equal(t, "elx:exception:lifecycle", cfg.Redis.NotifyChannel)
	require.Equal(t, 0.5, cfg.SLA.Severity.MediumBelow)
	require.Equal(t, 1.5, cfg.SLA.Severity.HighBelow)
	require.Equal(t, 3*time.Second, cfg.AI.Timeout)
	require.Equal(t, 0.55, cfg.AI.MinConfidence)
	require.Equal(t, 0.3, cfg.AI.BlockConfidence)
	require.Equal(t, int64(1500), cfg.AI.EstimatedCallCost)
	require.Equal(t, []string{"HIGH", "CRITICAL"}, cfg.AI.SampleSeverities)
	require.Equal(t, 5, cfg.Breaker.FailureThreshold)
	require.Equal(t, 30*time.Second, cfg.Breaker.Cooldown)
	require.Equal(t, 10*time.Second, cfg.Breaker.ProbeTimeout)
	require.Equal(t, 5*time.Second, cfg.Idempotency.LockTTL)
	require.Equal(t, 2, cfg.Resolution.MaxAttempts)
	require.Equal(t, 5*time.Minute, cfg.DLQ.BaseDelay)
	require.Equal(t, 20*time.Minute, cfg.DLQ.MaxDelay)
	require.Equal(t, 5, cfg.DLQ.MaxAttempts)
	require.Equal(t, time.Minute, cfg.DLQ.ReplayInterval)
	require.Equal(t, 50, cfg.DLQ.BatchSize)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Redis.NotifyChannel = "custom:channel"
	cfg.Breaker.FailureThreshold = 3
	cfg.DLQ.MaxAttempts = 8
	cfg.applyDefaults()

	require.Equal(t, "custom:channel", cfg.Redis.NotifyChannel)
	require.Equal(t, 3, cfg.Breaker.FailureThreshold)
	require.Equal(t, 8, cfg.DLQ.MaxAttempts)
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing app name", func(c *Config) { c.App.Name = "" }, "app.name"},
		{"missing mysql dsn", func(c *Config) { c.MySQL.DSN = "" }, "mysql.dsn"},
		{"missing redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"missing lmstfy host", func(c *Config) { c.Lmstfy.Host = "" }, "lmstfy.host"},
		{"no workers", func(c *Config) { c.Workers = nil }, "worker"},
		{"no sla stages", func(c *Config) { c.SLA.Stages = nil }, "sla stage"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestValidateStagePolicy(t *testing.T) {
	cfg := validConfig()
	cfg.SLA.Stages[0].Minutes = 0
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "minutes must be positive")

	cfg = validConfig()
	cfg.SLA.Stages[0].FromEvent = ""
	require.Error(t, cfg.Validate())

	// 租户覆盖同样受校验
	cfg = validConfig()
	cfg.SLA.Tenants = map[string]SLATenant{
		"acme": {Stages: []SLAStage{{ReasonCode: "", FromEvent: "a", ToEvent: "b", Minutes: 10}}},
	}
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "sla.tenants.acme")
}

func TestValidateSeverityOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.SLA.Severity = SeverityConfig{MediumBelow: 1.5, HighBelow: 0.5}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "medium_below < high_below")
}

func TestValidateConfidenceBounds(t *testing.T) {
	cfg := validConfig()
	cfg.AI.MinConfidence = 1.2
	require.Error(t, cfg.Validate())

	// 阻断阈值不得高于低置信阈值
	cfg = validConfig()
	cfg.AI.BlockConfidence = 0.7
	cfg.AI.MinConfidence = 0.55
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "block_confidence")
}

func TestValidateResolutionAttempts(t *testing.T) {
	cfg := validConfig()
	cfg.Resolution.MaxAttempts = 0
	require.Error(t, cfg.Validate())
}

func TestStagesForTenantOverride(t *testing.T) {
	cfg := validConfig()
	cfg.SLA.Tenants = map[string]SLATenant{
		"acme-express": {Stages: []SLAStage{
			{ReasonCode: "PICK_DELAY", FromEvent: "order_paid", ToEvent: "pick_completed", Minutes: 60},
		}},
	}

	got := cfg.StagesFor("acme-express")
	require.Len(t, got, 1)
	require.Equal(t, 60, got[0].Minutes)

	// 未覆盖的租户回落到默认策略
	got = cfg.StagesFor("other")
	require.Equal(t, 120, got[0].Minutes)
}
