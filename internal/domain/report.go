package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusRemoved   = "removed"
	StatusPlanned   = "planned"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusKept      = "kept"
	StatusProtected = "protected"
	StatusUnhashed  = "unhashed"
)

const (
	ErrCodeNoThumbnail    = "no_thumbnail"
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeDecodeFailed   = "decode_failed"
	ErrCodeHashFailed     = "hash_failed"
	ErrCodeRemoveFailed   = "remove_failed"
	ErrCodeCanceled       = "canceled"
	ErrCodeInvalidInput   = "invalid_input"
	ErrCodeCollectFailed  = "collect_failed"
	ErrCodeIOFailed       = "io_failed"
	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
	ErrCodeConfigNoSource = "config_missing_source"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID   string `json:"run_id"`
	Source  string `json:"source"`
	WorkDir string `json:"work_dir"`
	DryRun  bool   `json:"dry_run"`

	Mode      string  `json:"mode"`
	Threshold float64 `json:"threshold"`
	Hasher    string  `json:"hasher"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary  ReportSummary   `json:"summary"`
	Clusters []ClusterResult `json:"clusters"`
	Items    []ItemResult    `json:"items"`
}

type ReportSummary struct {
	// Records/Hashed 由执行层直接填写（无法从 items 推导）。
	Records int `json:"records"`
	Hashed  int `json:"hashed"`

	Clusters          int `json:"clusters"`
	DuplicateClusters int `json:"duplicate_clusters"`

	Removed   int `json:"removed"`
	Planned   int `json:"planned"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Kept      int `json:"kept"`
	Protected int `json:"protected"`
	Unhashed  int `json:"unhashed"`
}

// ClusterResult 是簇在 report 中的呈现（使用 ID 而不是下标）。
type ClusterResult struct {
	Index   int      `json:"index"`
	Keeper  string   `json:"keeper"`
	Members []string `json:"members"`
}

type ItemResult struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Creator string `json:"creator"`

	// Cluster 为 -1 表示不属于任何簇（无指纹或合成条目）。
	Cluster  int     `json:"cluster"`
	Keeper   string  `json:"keeper"`
	Distance float64 `json:"distance"`
	Reason   string  `json:"reason"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 cluster 升序；cluster==-1 的条目排在最后
// 3) summary 的计数字段由 clusters/items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Clusters == nil {
		r.Clusters = []ClusterResult{}
	}
	if r.Items == nil {
		r.Items = []ItemResult{}
	}

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Cluster
		b := r.Items[j].Cluster
		if a < 0 {
			return false
		}
		if b < 0 {
			return true
		}
		return a < b
	})

	s := ReportSummary{
		Records:  r.Summary.Records,
		Hashed:   r.Summary.Hashed,
		Clusters: len(r.Clusters),
	}
	for _, c := range r.Clusters {
		if len(c.Members) > 1 {
			s.DuplicateClusters++
		}
	}
	for _, it := range r.Items {
		switch it.Status {
		case StatusRemoved:
			s.Removed++
		case StatusPlanned:
			s.Planned++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusKept:
			s.Kept++
		case StatusProtected:
			s.Protected++
		case StatusUnhashed:
			s.Unhashed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
