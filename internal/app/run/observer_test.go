package run

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/reposweep/internal/config"
	"github.com/John-Robertt/reposweep/internal/domain"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	items      []string
	progress   int
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, res.ID)
}

func (o *recordObserver) OnProgress(done, total, failed int, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress++
}

func TestExecuteWithObserver_EmitsPhaseAndItemEvents(t *testing.T) {
	srv := newThumbServer(t)
	root := t.TempDir()
	src := writeRecords(t, root, standardRecords(srv.URL))

	obs := &recordObserver{}
	_ = ExecuteWithObserver(context.Background(), testEff(root, src), Deps{}, obs)

	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}
	wantPhases := []string{"collect", "hash", "group", "plan", "exec"}
	if !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.phases, wantPhases)
	}
	if !reflect.DeepEqual(obs.items, []string{"2", "5"}) {
		t.Fatalf("条目事件不符合预期：items=%v", obs.items)
	}
	if obs.progress != 5 {
		t.Fatalf("每条待哈希记录都应触发 OnProgress，实际 %d", obs.progress)
	}
}

func TestExecuteWithObserver_NilObserver_SameResultAsExecute(t *testing.T) {
	srv := newThumbServer(t)
	root := t.TempDir()
	src := writeRecords(t, root, standardRecords(srv.URL))
	cfg := testEff(root, src)

	a := Execute(context.Background(), cfg, Deps{})
	b := ExecuteWithObserver(context.Background(), cfg, Deps{}, &recordObserver{})

	// 时间与 run_id 每次不同；对比时归零。
	a.StartedAt, a.FinishedAt, a.RunID = time.Time{}, time.Time{}, ""
	b.StartedAt, b.FinishedAt, b.RunID = time.Time{}, time.Time{}, ""

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("observer 不应改变结果：\nExecute=%+v\nWithObs=%+v", a, b)
	}
}
