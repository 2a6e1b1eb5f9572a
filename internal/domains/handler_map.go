package domains

import (
	"elx/engine/internal/domains/common"
	"elx/engine/internal/domains/handlers/order/ingest"
)

// HandlerMap 路由表（ActionType → Handler 映射）
var HandlerMap = map[string]common.HandlerServProc{
	"order_event_ingest": ingest.NewIngestHandler,

	// 未来扩展示例：
	// "order_event_backfill": backfill.NewBackfillHandler,
}
