package framework

import "time"

// SubscriberConfig 拉取侧配置
type SubscriberConfig struct {
	QueueName    string        // 队列名称
	Concurrency  int           // 并发拉取协程数
	Timeout      time.Duration // 单次拉取阻塞上限
	TTR          time.Duration // Time-To-Run，超时未 ACK 的消息由队列重新投递
	Rate         time.Duration // 拉取间隔，非正值不限速
	ErrorBackoff time.Duration // 拉取出错后的退避时间
}

// ProcessorConfig 处理侧配置
type ProcessorConfig struct {
	Concurrency int           // 并发处理协程数
	BufferSize  int           // inputChan 缓冲区大小
	Timeout     time.Duration // 单条消息处理超时
}
