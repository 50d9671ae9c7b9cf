package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/reposweep/internal/app/run"
	"github.com/John-Robertt/reposweep/internal/config"
	"github.com/John-Robertt/reposweep/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：删除阶段长时间无条目完成时也会定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total   int
	done    int
	removed int
	fail    int
	skip    int

	// hash 阶段的进度行按间隔节流。
	hashInterval time.Duration

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		hashInterval:       time.Second,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不删除/不写入)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] reposweep run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  source: %s\n", eff.Source)
	fmt.Fprintf(p.w, "  mode: %s / %s%s\n", eff.Mode, mode, modeHint)
	fmt.Fprintf(p.w, "  threshold: %.2f (max distance %.2f)\n", eff.Threshold, 1-eff.Threshold)
	fmt.Fprintf(p.w, "  hash: %s size=%d thumbnail=%d\n", eff.HashAlgorithm, eff.HashSize, eff.ThumbnailSize)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if eff.MaxVideos > 0 {
		fmt.Fprintf(p.w, "  max_videos: %d\n", eff.MaxVideos)
	}
	fmt.Fprintf(p.w, "  keep_ids: %s\n", formatStringListJSON(eff.KeepIDs))
	if eff.Apply {
		fmt.Fprintf(p.w, "  executor: %s (delay %s)\n", truncate(strings.Join(eff.ExecutorCommand, " "), 120), eff.Delay)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "collect":
		fmt.Fprintf(p.w, "收集: records=%d (%s)\n", intField(fields, "records"), formatShortDuration(dur))
	case "hash":
		fmt.Fprintf(p.w, "哈希: computed=%d cache=%d memo=%d record=%d failed=%d workers=%d (%s)\n",
			intField(fields, "computed"),
			intField(fields, "from_cache"),
			intField(fields, "memo"),
			intField(fields, "from_record"),
			intField(fields, "failed"),
			intField(fields, "workers"),
			formatShortDuration(dur),
		)
	case "group":
		fmt.Fprintf(p.w, "聚类: clusters=%d duplicate_clusters=%d unhashed=%d (%s)\n",
			intField(fields, "clusters"), intField(fields, "duplicate_clusters"), intField(fields, "unhashed"), formatShortDuration(dur),
		)
	case "plan":
		fmt.Fprintf(p.w, "规划: remove=%d protected=%d (%s)\n",
			intField(fields, "remove"), intField(fields, "protected"), formatShortDuration(dur),
		)
	case "exec":
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "执行: total_items=%d delay=%dms\n\n", p.total, intField(fields, "delay_ms"))
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusRemoved:
		p.removed++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped:
		p.skip++
	}

	target := res.ID
	if res.Creator != "" {
		target += " @" + res.Creator
	}

	switch res.Status {
	case domain.StatusFailed, domain.StatusSkipped:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, target, strings.ToUpper(res.Status), res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s\n",
			idx, total, target, strings.ToUpper(res.Status), formatReason(res),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, failed int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if done < total && time.Since(p.lastPrinted) < p.hashInterval {
		return
	}
	fmt.Fprintf(p.w, "哈希进度: %d/%d failed=%d elapsed=%s\n", done, total, failed, formatElapsed(elapsed))
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stopCh := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d removed=%d fail=%d skip=%d elapsed=%s\n",
						p.done, p.total, p.removed, p.fail, p.skip, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

// formatReason 描述删除原因：重复项带上 keeper 与距离。
func formatReason(res domain.ItemResult) string {
	switch res.Reason {
	case domain.ReasonDuplicate:
		return fmt.Sprintf("duplicate of %s (distance %.4f)", res.Keeper, res.Distance)
	case "":
		return ""
	default:
		return res.Reason
	}
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
