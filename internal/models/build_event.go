package models

import "time"

// Build stages reported through BuildEvent.
const (
	StagePlan   = "plan"
	StageStage  = "stage"
	StageLoad   = "load"
	StageExport = "export"
	StageDone   = "done"
	StageFailed = "failed"
)

// BuildEvent 定义了构建过程中对外发布的统一事件格式。
// 事件既写入进度通道供 CLI 展示，也可选地发布到 Kafka 供下游采集。
type BuildEvent struct {
	// RunID 标识一次构建，贯穿所有阶段。
	RunID string `json:"run_id"`

	// Stage 是事件所处的阶段: plan / stage / load / export / done / failed。
	Stage string `json:"stage"`

	// Label 是相关的节点标签或关系类型 (如果适用)。
	Label string `json:"label,omitempty"`

	// Source 是产生该事件的数据源名称 (如果适用)。
	Source string `json:"source,omitempty"`

	// Rows 是该事件累计处理的行数。
	Rows int64 `json:"rows,omitempty"`

	// Skipped 是因缺少 URI 等原因被跳过的行数。
	Skipped int64 `json:"skipped,omitempty"`

	// Message 是人类可读的描述。
	Message string `json:"message"`

	// Timestamp 是事件产生时间。
	Timestamp time.Time `json:"timestamp"`
}
