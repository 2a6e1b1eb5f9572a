package breaker

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内状态存储
// 单实例部署和单元测试使用；多实例部署必须换用 Redis 实现
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]*Snapshot
}

// NewMemoryStore 创建 MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*Snapshot),
	}
}

func (s *MemoryStore) get(name string) *Snapshot {
	st, ok := s.states[name]
	if !ok {
		st = &Snapshot{State: StateClosed}
		s.states[name] = st
	}
	return st
}

// Acquire 请求放行
func (s *MemoryStore) Acquire(ctx context.Context, name string, now time.Time, cooldown, probeTTL time.Duration) (Decision, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(name)
	switch st.State {
	case StateOpen:
		if now.Sub(st.OpenedAt) >= cooldown {
			st.State = StateHalfOpen
			st.ProbeInFlight = true
			st.ProbeStartedAt = now
			st.Generation++
			return DecisionProbe, st.Generation, nil
		}
		return DecisionDeny, st.Generation, nil

	case StateHalfOpen:
		if st.ProbeInFlight {
			// 探测回报超期按探测者已死处理，换代后重占名额，
			// 旧探测迟到的结果会因代数不匹配被丢弃
			if now.Sub(st.ProbeStartedAt) >= probeTTL {
				st.ProbeStartedAt = now
				st.Generation++
				return DecisionProbe, st.Generation, nil
			}
			return DecisionDeny, st.Generation, nil
		}
		st.ProbeInFlight = true
		st.ProbeStartedAt = now
		return DecisionProbe, st.Generation, nil

	default:
		return DecisionClosed, st.Generation, nil
	}
}

// MarkSuccess 记录成功
func (s *MemoryStore) MarkSuccess(ctx context.Context, name string, decision Decision, generation int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(name)
	if generation != st.Generation {
		// 放行之后熔断器已经历迁移，过期结果不落账
		return "", nil
	}

	prev := st.State
	if prev != StateClosed {
		st.Generation++
	}
	st.State = StateClosed
	st.ConsecutiveFailures = 0
	st.ProbeInFlight = false
	return prev, nil
}

// MarkFailure 记录失败
func (s *MemoryStore) MarkFailure(ctx context.Context, name string, decision Decision, generation int64, now time.Time, threshold int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(name)
	if generation != st.Generation {
		return false, nil
	}

	if decision == DecisionProbe {
		// 探测失败，带着新的冷却窗口回到 OPEN
		st.State = StateOpen
		st.OpenedAt = now
		st.ProbeInFlight = false
		st.Generation++
		return true, nil
	}

	st.ConsecutiveFailures++
	if st.State == StateClosed && st.ConsecutiveFailures >= threshold {
		st.State = StateOpen
		st.OpenedAt = now
		st.Generation++
		return true, nil
	}
	return false, nil
}

// Snapshot 读取当前状态
func (s *MemoryStore) Snapshot(ctx context.Context, name string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(name)
	cp := *st
	return &cp, nil
}
