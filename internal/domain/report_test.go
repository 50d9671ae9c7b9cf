package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Source:     "/abs/reposts.json",
		DryRun:     true,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Summary:    ReportSummary{Records: 6, Hashed: 5},
		Clusters: []ClusterResult{
			{Index: 0, Keeper: "1", Members: []string{"1", "2"}},
			{Index: 1, Keeper: "3", Members: []string{"3"}},
		},
		Items: []ItemResult{
			{ID: "9", Cluster: -1, Status: StatusUnhashed},
			{ID: "2", Cluster: 1, Status: StatusPlanned},
			{ID: "x", Cluster: -1, Status: StatusFailed}, // 合成项
			{ID: "1", Cluster: 0, Status: StatusKept},
		},
	}

	r.Finalize()

	// cluster==-1 必须排在最后；其内部顺序保持稳定（SliceStable）。
	got := []string{r.Items[0].ID, r.Items[1].ID, r.Items[2].ID, r.Items[3].ID}
	want := []string{"1", "2", "9", "x"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items 排序不符合契约：got=%v want=%v", got, want)
		}
	}

	s := r.Summary
	if s.Records != 6 || s.Hashed != 5 {
		t.Fatalf("records/hashed 不应被 Finalize 覆盖：%+v", s)
	}
	if s.Clusters != 2 || s.DuplicateClusters != 1 {
		t.Fatalf("簇统计不正确：%+v", s)
	}
	if s.Planned != 1 || s.Kept != 1 || s.Failed != 1 || s.Unhashed != 1 {
		t.Fatalf("summary 统计不正确：%+v", s)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
}

func TestRunReport_Finalize_NilSlicesBecomeEmpty(t *testing.T) {
	var r RunReport
	r.Finalize()

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"clusters":[]`)) || !bytes.Contains(b, []byte(`"items":[]`)) {
		t.Fatalf("空列表应输出 []：%s", string(b))
	}
}
