package dlq

import "time"

// NextDelay 第 failures 次失败后的重试延迟
// 指数阶梯：base → 2*base → 4*base，封顶 max（默认 5 → 10 → 20 分钟后保持 20 分钟）
func NextDelay(failures int, base, max time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}

	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
