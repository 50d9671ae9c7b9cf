package run

import (
	"time"

	"github.com/John-Robertt/reposweep/internal/config"
	"github.com/John-Robertt/reposweep/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：hash 阶段的事件来自多个 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（collect/hash/group/plan/exec）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在一条删除计划处理完成时调用（dry-run 下为 planned）。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
	// OnProgress 在 hash 阶段每完成一条缩略图时调用。
	OnProgress(done, total, failed int, elapsed time.Duration)
}
