package breaker

import (
	"context"
	"errors"
	"time"

	"elx/engine/pkg/logger"
)

// 熔断器状态常量
const (
	StateClosed   = "CLOSED"
	StateOpen     = "OPEN"
	StateHalfOpen = "HALF_OPEN"
)

// Decision 放行决策
type Decision string

const (
	// DecisionClosed 正常放行（CLOSED 状态）
	DecisionClosed Decision = "CLOSED"
	// DecisionProbe 冷却结束后的唯一探测调用（HALF_OPEN 状态）
	DecisionProbe Decision = "PROBE"
	// DecisionDeny 快速失败，不调用下游
	DecisionDeny Decision = "DENY"
)

// ErrCircuitOpen 熔断打开，调用被快速拒绝
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Snapshot 熔断器状态快照
type Snapshot struct {
	State               string
	ConsecutiveFailures int
	OpenedAt            time.Time
	ProbeInFlight       bool
	ProbeStartedAt      time.Time
	Generation          int64
}

// Store 共享状态存储接口
// 多个 worker 实例必须对同一份状态达成一致，所有变更必须原子执行。
// 每次状态迁移递增 generation；Acquire 把放行时的 generation 交给调用方，
// Mark* 只接受同代结果。慢调用跨越了一次迁移后回报的结果一律作废，
// 否则跳闸前放行的调用迟到成功会把 OPEN 直接拉回 CLOSED，绕过冷却与探测
type Store interface {
	// Acquire 请求放行。OPEN 且冷却结束时原子切换 HALF_OPEN 并占用探测名额；
	// 探测名额超过 probeTTL 未回报按探测者已死处理，名额可被重新占用
	Acquire(ctx context.Context, name string, now time.Time, cooldown, probeTTL time.Duration) (Decision, int64, error)

	// MarkSuccess 记录成功：复位 CLOSED，失败计数归零。
	// 返回迁移前的状态；generation 不匹配时忽略本次结果并返回空串
	MarkSuccess(ctx context.Context, name string, decision Decision, generation int64) (string, error)

	// MarkFailure 记录失败：CLOSED 下累加计数、达阈值跳闸；探测失败直接回到 OPEN。
	// 返回是否发生了到 OPEN 的迁移；generation 不匹配时忽略本次结果
	MarkFailure(ctx context.Context, name string, decision Decision, generation int64, now time.Time, threshold int) (bool, error)

	// Snapshot 读取当前状态（观测用）
	Snapshot(ctx context.Context, name string) (*Snapshot, error)
}

// TransitionFunc 状态迁移回调（用于指标与日志，迁移不允许静默发生）
type TransitionFunc func(name, from, to string)

// Breaker 三态熔断器
// 包装对易故障下游（AI 端点）的调用，基于共享 Store 在实例间协同
type Breaker struct {
	name         string
	store        Store
	threshold    int
	cooldown     time.Duration
	probeTTL     time.Duration
	onTransition TransitionFunc
	logger       logger.Logger
}

// New 创建熔断器
// probeTTL 为探测回报期限，应略大于被包装调用的硬超时；非正值回落到 cooldown
func New(name string, store Store, threshold int, cooldown, probeTTL time.Duration, onTransition TransitionFunc, log logger.Logger) *Breaker {
	if probeTTL <= 0 {
		probeTTL = cooldown
	}
	return &Breaker{
		name:         name,
		store:        store,
		threshold:    threshold,
		cooldown:     cooldown,
		probeTTL:     probeTTL,
		onTransition: onTransition,
		logger:       log,
	}
}

// Execute 通过熔断器执行 op
// 熔断打开时返回 ErrCircuitOpen 且不调用 op；其余情况透传 op 的错误
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	decision, generation, err := b.store.Acquire(ctx, b.name, time.Now(), b.cooldown, b.probeTTL)
	if err != nil {
		return err
	}

	switch decision {
	case DecisionDeny:
		b.logger.Debugf(ctx, "[Breaker] %s fast-fail: circuit open", b.name)
		return ErrCircuitOpen

	case DecisionProbe:
		// OPEN → HALF_OPEN 迁移发生在 Acquire 内部，这里补上观测
		b.transition(ctx, StateOpen, StateHalfOpen)
	}

	if opErr := op(ctx); opErr != nil {
		tripped, markErr := b.store.MarkFailure(ctx, b.name, decision, generation, time.Now(), b.threshold)
		if markErr != nil {
			b.logger.Errorf(ctx, "[Breaker] %s mark failure error: %v", b.name, markErr)
		}
		if tripped {
			from := StateClosed
			if decision == DecisionProbe {
				from = StateHalfOpen
			}
			b.transition(ctx, from, StateOpen)
		}
		return opErr
	}

	prev, markErr := b.store.MarkSuccess(ctx, b.name, decision, generation)
	if markErr != nil {
		b.logger.Errorf(ctx, "[Breaker] %s mark success error: %v", b.name, markErr)
	}
	switch prev {
	case "":
		// 同代校验失败：结果回报时熔断器已经历过迁移，按过期丢弃
		b.logger.Debugf(ctx, "[Breaker] %s stale success discarded", b.name)
	case StateHalfOpen:
		b.transition(ctx, StateHalfOpen, StateClosed)
	case StateOpen:
		b.transition(ctx, StateOpen, StateClosed)
	}

	return nil
}

// transition 记录状态迁移（日志 + 回调）
func (b *Breaker) transition(ctx context.Context, from, to string) {
	b.logger.Infof(ctx, "[Breaker] %s state transition: %s -> %s", b.name, from, to)
	if b.onTransition != nil {
		b.onTransition(b.name, from, to)
	}
}
