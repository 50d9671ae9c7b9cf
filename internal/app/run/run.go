package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/reposweep/internal/app"
	"github.com/John-Robertt/reposweep/internal/app/planner"
	"github.com/John-Robertt/reposweep/internal/collect"
	"github.com/John-Robertt/reposweep/internal/config"
	"github.com/John-Robertt/reposweep/internal/domain"
	"github.com/John-Robertt/reposweep/internal/executor"
	"github.com/John-Robertt/reposweep/internal/infra/cache"
	"github.com/John-Robertt/reposweep/internal/infra/fsx"
	"github.com/John-Robertt/reposweep/internal/infra/httpx"
	"github.com/John-Robertt/reposweep/internal/logging"
	"github.com/John-Robertt/reposweep/internal/phash"
)

// Deps 是 run 的可替换依赖；零值可用。
type Deps struct {
	// Executor 为 nil 时按 eff.ExecutorCommand 构造 executor.Command。
	Executor executor.Executor
	// HTTPClient 为 nil 时按 eff.ProxyURL 构造缩略图 client。
	HTTPClient *http.Client
	// Logger 为 nil 时取 ctx 中的 logger。
	Logger *slog.Logger
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// apply 模式下 report 会写入 <workdir>/cache/report.json；dry-run 不写任何文件。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Source:    eff.Source,
		WorkDir:   eff.WorkDir,
		DryRun:    !eff.Apply,
		Mode:      eff.Mode,
		Threshold: eff.Threshold,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 128),
	}

	log := deps.Logger
	if log == nil {
		log = logging.FromContext(ctx)
	}
	log = log.With(logging.FieldRunID, rr.RunID)

	fail := func(code, msg string) domain.RunReport {
		log.Error(msg, "error_code", code)
		rr.Items = append(rr.Items, syntheticFailed(code, msg))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	hasher, err := phash.NewHasher(eff.HashAlgorithm, eff.HashSize)
	if err != nil {
		return fail(domain.ErrCodeConfigInvalid, fmt.Sprintf("hash 配置无效：%v", err))
	}
	rr.Hasher = hasher.Key()

	scorer, err := app.NewScorer(eff.Threshold, phash.Hamming{})
	if err != nil {
		return fail(domain.ErrCodeConfigInvalid, fmt.Sprintf("threshold 无效：%v", err))
	}
	mode, err := planner.ParseMode(eff.Mode)
	if err != nil {
		return fail(domain.ErrCodeConfigInvalid, err.Error())
	}
	rr.Mode = string(mode)

	ex := deps.Executor
	if ex == nil && len(eff.ExecutorCommand) > 0 {
		cmd := executor.Command{Argv: eff.ExecutorCommand, Timeout: eff.ExecutorTimeout}
		if eff.Apply {
			if err := cmd.Validate(); err != nil {
				return fail(domain.ErrCodeConfigInvalid, err.Error())
			}
		}
		ex = cmd
	}
	if eff.Apply && ex == nil {
		return fail(domain.ErrCodeConfigInvalid, "apply 模式需要配置 executor.command")
	}

	client := deps.HTTPClient
	if client == nil {
		c, err := httpx.NewClient(httpx.Options{ProxyURL: eff.ProxyURL})
		if err != nil {
			return fail(domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy.url 无效：%v", err))
		}
		client = c
	}

	store := cache.New(eff.WorkDir, !eff.Apply)

	// apply：同一工作目录同时只允许一个进程写 cache/ 与执行删除。
	if eff.Apply {
		lock, err := fsx.TryLock(eff.WorkDir)
		if err != nil {
			if fsx.IsPathTypeConflict(err) {
				return fail(domain.ErrCodeIOFailed, fmt.Sprintf("cache 目录不可用：%v", err))
			}
			return fail(domain.ErrCodeIOFailed, err.Error())
		}
		defer func() { _ = lock.Unlock() }()
	}

	// collect
	phaseStarted := time.Now()
	records, err := collect.Load(eff.Source, collect.Options{MaxVideos: eff.MaxVideos})
	if err != nil {
		return fail(domain.ErrCodeCollectFailed, err.Error())
	}
	rr.Summary.Records = len(records)
	log.Info("collect 完成", logging.FieldPhase, "collect", "records", len(records))
	if obs != nil {
		obs.OnPhaseDone("collect", map[string]any{"records": len(records)}, time.Since(phaseStarted))
	}

	// hash
	phaseStarted = time.Now()
	fper, err := newFingerprinter(hasher, eff.ThumbnailSize, client, store, log)
	if err != nil {
		return fail(domain.ErrCodeIOFailed, err.Error())
	}
	hashFailures, stats := hashAll(ctx, records, fper, eff.Concurrency, obs)
	log.Info("hash 完成", logging.FieldPhase, "hash", "computed", stats.Computed, "cached", stats.FromCache, "failed", stats.Failed)
	if obs != nil {
		obs.OnPhaseDone("hash", stats.fields(eff.Concurrency), time.Since(phaseStarted))
	}

	// group
	phaseStarted = time.Now()
	clusters, unhashed, err := app.GroupDuplicates(records, scorer)
	if err != nil {
		return fail(domain.ErrCodeInvalidInput, fmt.Sprintf("聚类失败：%v", err))
	}
	rr.Summary.Hashed = len(records) - len(unhashed)
	dupClusters := 0
	for _, c := range clusters {
		if c.IsDuplicate() {
			dupClusters++
		}
	}
	if obs != nil {
		obs.OnPhaseDone("group", map[string]any{
			"clusters":           len(clusters),
			"duplicate_clusters": dupClusters,
			"unhashed":           len(unhashed),
		}, time.Since(phaseStarted))
	}

	// plan
	phaseStarted = time.Now()
	plan, err := planner.Plan(records, clusters, unhashed, planner.Options{Mode: mode, Keep: eff.KeepIDs})
	if err != nil {
		return fail(domain.ErrCodeInvalidInput, fmt.Sprintf("规划失败：%v", err))
	}
	if obs != nil {
		obs.OnPhaseDone("plan", map[string]any{
			"remove":    len(plan.Remove),
			"protected": len(plan.Protected),
		}, time.Since(phaseStarted))
	}

	rr.Clusters = clusterResults(records, clusters)
	items := baseItems(records, clusters, unhashed, hashFailures, plan)

	// exec
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"total_items": len(plan.Remove),
			"delay_ms":    eff.Delay.Milliseconds(),
		}, 0)
	}
	execAll(ctx, log, eff, ex, plan.Remove, items, obs)

	rr.Items = append(rr.Items, items...)
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()

	if eff.Apply {
		if err := writeReport(store, rr); err != nil {
			log.Error("写入 report.json 失败", "error", err)
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("写入 report.json 失败：%v", err)))
			rr.Finalize()
		}
	}
	return rr
}

// execAll 串行执行删除计划；相邻两次删除之间等待 eff.Delay。
// ctx 取消后剩余条目标记为 skipped/canceled。
func execAll(ctx context.Context, log *slog.Logger, eff config.EffectiveConfig, ex executor.Executor, plans []domain.RemovalPlan, items []domain.ItemResult, obs Observer) {
	for n, p := range plans {
		it := &items[p.Index]
		started := time.Now()

		if !eff.Apply {
			it.Status = domain.StatusPlanned
		} else if (n > 0 && !sleepCtx(ctx, eff.Delay)) || ctx.Err() != nil {
			markCanceled(it, "运行已取消")
		} else {
			removeOne(ctx, log, ex, p, it)
		}

		if obs != nil {
			obs.OnItemDone(n+1, len(plans), *it, time.Since(started))
		}
	}
}

func removeOne(ctx context.Context, log *slog.Logger, ex executor.Executor, p domain.RemovalPlan, it *domain.ItemResult) {
	err := ex.Remove(ctx, p)
	switch {
	case err == nil:
		it.Status = domain.StatusRemoved
		log.Info("已删除", logging.FieldID, p.RecordID, "reason", p.Reason)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		markCanceled(it, err.Error())
	default:
		it.Status = domain.StatusFailed
		it.ErrorCode = domain.ErrCodeRemoveFailed
		it.ErrorMsg = err.Error()
		log.Warn("删除失败", logging.FieldID, p.RecordID, "error", err)
	}
}

func markCanceled(it *domain.ItemResult, msg string) {
	it.Status = domain.StatusSkipped
	it.ErrorCode = domain.ErrCodeCanceled
	it.ErrorMsg = msg
}

// sleepCtx 等待 d；ctx 先结束时返回 false。
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func clusterResults(records []domain.VideoRecord, clusters []domain.Cluster) []domain.ClusterResult {
	out := make([]domain.ClusterResult, 0, len(clusters))
	for ci, c := range clusters {
		cr := domain.ClusterResult{
			Index:   ci,
			Keeper:  records[c.Keeper].ID,
			Members: make([]string, 0, len(c.Members)),
		}
		for _, i := range c.Members {
			cr.Members = append(cr.Members, records[i].ID)
		}
		out = append(out, cr)
	}
	return out
}

// baseItems 为每条记录生成初始 ItemResult（按记录下标索引）。
// 删除计划中的条目状态由 execAll 填写；其余条目在这里定型。
func baseItems(records []domain.VideoRecord, clusters []domain.Cluster, unhashed []int, failures map[int]domain.Unhashed, plan planner.Result) []domain.ItemResult {
	items := make([]domain.ItemResult, len(records))
	for i, r := range records {
		items[i] = domain.ItemResult{
			ID:      r.ID,
			URL:     r.URL,
			Creator: r.Creator,
			Cluster: -1,
			Status:  domain.StatusKept,
		}
	}

	for ci, c := range clusters {
		keeperID := records[c.Keeper].ID
		for _, i := range c.Members {
			items[i].Cluster = ci
			items[i].Keeper = keeperID
		}
		for _, cand := range c.Candidates {
			items[cand.Index].Distance = cand.Distance
		}
	}

	for _, i := range unhashed {
		it := &items[i]
		it.Status = domain.StatusUnhashed
		if u, ok := failures[i]; ok {
			it.ErrorCode = u.ErrorCode
			it.ErrorMsg = u.ErrorMsg
		} else {
			it.ErrorCode = domain.ErrCodeNoThumbnail
			it.ErrorMsg = "记录没有指纹"
		}
	}

	for _, p := range plan.Protected {
		it := &items[p.Index]
		it.Status = domain.StatusProtected
		it.Reason = domain.ReasonProtected
	}
	for _, p := range plan.Remove {
		it := &items[p.Index]
		it.Reason = p.Reason
		// all 模式下无指纹的记录同样进入删除计划。
		if it.Status == domain.StatusUnhashed {
			it.ErrorCode = ""
			it.ErrorMsg = ""
		}
		it.Status = domain.StatusPlanned
	}
	return items
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Cluster:   -1,
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func writeReport(store cache.Store, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return store.WriteReport(b)
}
