package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Lmstfy     LmstfyConfig     `mapstructure:"lmstfy"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Workers    []WorkerConfig   `mapstructure:"workers"`
	SLA        SLAConfig        `mapstructure:"sla"`
	AI         AIConfig         `mapstructure:"ai"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	DLQ        DLQConfig        `mapstructure:"dlq"`

	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	NotifyChannel string `mapstructure:"notify_channel"` // 生命周期通知频道
}

// LmstfyConfig Lmstfy 配置
type LmstfyConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Token     string `mapstructure:"token"`
}

// MetricsConfig 指标暴露配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // Prometheus /metrics 监听地址，空则不启动
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	Name       string           `mapstructure:"name"`
	QueueName  string           `mapstructure:"queue_name"`
	Subscriber SubscriberConfig `mapstructure:"subscriber"`
	Processor  ProcessorConfig  `mapstructure:"processor"`
}

// SubscriberConfig Subscriber 配置
type SubscriberConfig struct {
	Threads      int           `mapstructure:"threads"`       // 并发拉取数
	Rate         time.Duration `mapstructure:"rate"`          // 拉取速率
	Timeout      time.Duration `mapstructure:"timeout"`       // 拉取超时
	TTR          time.Duration `mapstructure:"ttr"`           // Time-To-Run
	ErrorBackoff time.Duration `mapstructure:"error_backoff"` // 错误退避时间
}

// ProcessorConfig Processor 配置
type ProcessorConfig struct {
	Threads    int           `mapstructure:"threads"`     // 并发处理数
	BufferSize int           `mapstructure:"buffer_size"` // Channel 缓冲大小
	Timeout    time.Duration `mapstructure:"timeout"`     // 单个任务超时
}

// SLAConfig SLA 评估配置
type SLAConfig struct {
	Stages   []SLAStage           `mapstructure:"stages"`   // 默认阶段阈值
	Tenants  map[string]SLATenant `mapstructure:"tenants"`  // 租户级覆盖
	Severity SeverityConfig       `mapstructure:"severity"` // 超时比 → 严重级别
}

// SLAStage 单个阶段的 SLA 策略（起止事件 + 分钟阈值 → 原因码）
type SLAStage struct {
	ReasonCode string `mapstructure:"reason_code"`
	FromEvent  string `mapstructure:"from_event"`
	ToEvent    string `mapstructure:"to_event"`
	Minutes    int    `mapstructure:"minutes"`
}

// SLATenant 租户级 SLA 覆盖
type SLATenant struct {
	Stages []SLAStage `mapstructure:"stages"`
}

// SeverityConfig 严重级别阈值（基于超时比 overageRatio = (elapsed-sla)/sla）
type SeverityConfig struct {
	MediumBelow float64 `mapstructure:"medium_below"` // ratio < MediumBelow → MEDIUM
	HighBelow   float64 `mapstructure:"high_below"`   // ratio < HighBelow → HIGH，否则 CRITICAL
}

// AIConfig AI 分析配置
type AIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`            // 模型端点（空则用官方默认）
	APIKey            string        `mapstructure:"api_key"`             // 可被 ELX_AI_API_KEY 覆盖
	Model             string        `mapstructure:"model"`               // 模型名
	Timeout           time.Duration `mapstructure:"timeout"`             // 单次调用硬超时
	MinConfidence     float64       `mapstructure:"min_confidence"`      // 低于该值按兜底质量处理
	BlockConfidence   float64       `mapstructure:"block_confidence"`    // 成功调用低于该值立即阻断自动处置
	DailyTokenLimit   int64         `mapstructure:"daily_token_limit"`   // 租户级日 token 预算
	EstimatedCallCost int64         `mapstructure:"estimated_call_cost"` // 单次调用预估 token 消耗
	SampleSeverities  []string      `mapstructure:"sample_severities"`   // 触发模型调用的严重级别
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"` // 连续失败阈值
	Cooldown         time.Duration `mapstructure:"cooldown"`          // OPEN → HALF_OPEN 冷却时间
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`     // 探测回报期限，应大于 ai.timeout
}

// IdempotencyConfig 幂等闸门配置
type IdempotencyConfig struct {
	LockTTL time.Duration `mapstructure:"lock_ttl"` // 事件处理锁持有时间
}

// ResolutionConfig 自动处置配置
type ResolutionConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"` // 可被 ELX_MAX_RESOLUTION_ATTEMPTS 覆盖
}

// DLQConfig 死信队列配置
type DLQConfig struct {
	BaseDelay      time.Duration `mapstructure:"base_delay"`      // 首次重试延迟
	MaxDelay       time.Duration `mapstructure:"max_delay"`       // 延迟上限
	MaxAttempts    int           `mapstructure:"max_attempts"`    // 计划内重试上限
	ReplayInterval time.Duration `mapstructure:"replay_interval"` // 定时重放扫描间隔
	BatchSize      int           `mapstructure:"batch_size"`      // 单批重放数量
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖（部署时无需改配置文件）
	viper.SetEnvPrefix("ELX")
	_ = viper.BindEnv("resolution.max_attempts", "ELX_MAX_RESOLUTION_ATTEMPTS")
	_ = viper.BindEnv("ai.api_key", "ELX_AI_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults 填充策略默认值（均可被配置覆盖）
func (c *Config) applyDefaults() {
	if c.Redis.NotifyChannel == "" {
		c.Redis.NotifyChannel = "elx:exception:lifecycle"
	}
	if c.SLA.Severity.MediumBelow == 0 {
		c.SLA.Severity.MediumBelow = 0.5
	}
	if c.SLA.Severity.HighBelow == 0 {
		c.SLA.Severity.HighBelow = 1.5
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 3 * time.Second
	}
	if c.AI.MinConfidence == 0 {
		c.AI.MinConfidence = 0.55
	}
	if c.AI.BlockConfidence == 0 {
		c.AI.BlockConfidence = 0.3
	}
	if c.AI.EstimatedCallCost == 0 {
		c.AI.EstimatedCallCost = 1500
	}
	if len(c.AI.SampleSeverities) == 0 {
		c.AI.SampleSeverities = []string{"HIGH", "CRITICAL"}
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = 30 * time.Second
	}
	if c.Breaker.ProbeTimeout == 0 {
		c.Breaker.ProbeTimeout = 10 * time.Second
	}
	if c.Idempotency.LockTTL == 0 {
		c.Idempotency.LockTTL = 5 * time.Second
	}
	if c.Resolution.MaxAttempts == 0 {
		c.Resolution.MaxAttempts = 2
	}
	if c.DLQ.BaseDelay == 0 {
		c.DLQ.BaseDelay = 5 * time.Minute
	}
	if c.DLQ.MaxDelay == 0 {
		c.DLQ.MaxDelay = 20 * time.Minute
	}
	if c.DLQ.MaxAttempts == 0 {
		c.DLQ.MaxAttempts = 5
	}
	if c.DLQ.ReplayInterval == 0 {
		c.DLQ.ReplayInterval = time.Minute
	}
	if c.DLQ.BatchSize == 0 {
		c.DLQ.BatchSize = 50
	}
}

// Validate 验证配置（启动时调用，失败即终止进程）
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Lmstfy.Host == "" {
		return fmt.Errorf("lmstfy.host is required")
	}
	if len(c.Workers) == 0 {
		return fmt.Errorf("at least one worker is required")
	}
	if len(c.SLA.Stages) == 0 {
		return fmt.Errorf("at least one sla stage is required")
	}
	for i, st := range c.SLA.Stages {
		if err := validateStage(st); err != nil {
			return fmt.Errorf("sla.stages[%d]: %w", i, err)
		}
	}
	for tenant, tc := range c.SLA.Tenants {
		for i, st := range tc.Stages {
			if err := validateStage(st); err != nil {
				return fmt.Errorf("sla.tenants.%s.stages[%d]: %w", tenant, i, err)
			}
		}
	}
	if c.SLA.Severity.MediumBelow <= 0 || c.SLA.Severity.HighBelow <= c.SLA.Severity.MediumBelow {
		return fmt.Errorf("sla.severity thresholds must satisfy 0 < medium_below < high_below")
	}
	if c.AI.MinConfidence < 0 || c.AI.MinConfidence > 1 {
		return fmt.Errorf("ai.min_confidence must be within [0, 1]")
	}
	if c.AI.BlockConfidence < 0 || c.AI.BlockConfidence > c.AI.MinConfidence {
		return fmt.Errorf("ai.block_confidence must be within [0, ai.min_confidence]")
	}
	if c.Resolution.MaxAttempts <= 0 {
		return fmt.Errorf("resolution.max_attempts must be positive")
	}
	return nil
}

// validateStage 校验单个 SLA 阶段策略
func validateStage(st SLAStage) error {
	if st.ReasonCode == "" {
		return fmt.Errorf("reason_code is required")
	}
	if st.FromEvent == "" || st.ToEvent == "" {
		return fmt.Errorf("from_event and to_event are required")
	}
	if st.Minutes <= 0 {
		return fmt.Errorf("minutes must be positive")
	}
	return nil
}

// StagesFor 返回租户生效的阶段策略（租户覆盖优先，否则默认）
func (c *Config) StagesFor(tenant string) []SLAStage {
	if tc, ok := c.SLA.Tenants[tenant]; ok && len(tc.Stages) > 0 {
		return tc.Stages
	}
	return c.SLA.Stages
}
