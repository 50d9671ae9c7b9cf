package app

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/John-Robertt/reposweep/internal/domain"
	"github.com/John-Robertt/reposweep/internal/phash"
)

func rec(t *testing.T, id, bits string, likes int64) domain.VideoRecord {
	t.Helper()
	fp, err := phash.ParseBits(bits)
	if err != nil {
		t.Fatalf("解析指纹 %q 失败：%v", bits, err)
	}
	return domain.VideoRecord{ID: id, Fingerprint: fp, Likes: likes}
}

func mustScorer(t *testing.T, threshold float64) Scorer {
	t.Helper()
	s, err := NewScorer(threshold, nil)
	if err != nil {
		t.Fatalf("NewScorer 失败：%v", err)
	}
	return s
}

func memberIDs(records []domain.VideoRecord, c domain.Cluster) []string {
	out := make([]string, 0, len(c.Members))
	for _, i := range c.Members {
		out = append(out, records[i].ID)
	}
	return out
}

func TestGroupDuplicates_StrictThresholdNoMerge(t *testing.T) {
	records := []domain.VideoRecord{
		rec(t, "1", "0000", 10),
		rec(t, "2", "0001", 5),
		rec(t, "3", "1111", 1),
	}

	clusters, unhashed, err := GroupDuplicates(records, mustScorer(t, 0.9))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(unhashed) != 0 {
		t.Fatalf("不期望 unhashed：%v", unhashed)
	}
	if len(clusters) != 3 {
		t.Fatalf("期望 3 个单成员簇，实际 %d", len(clusters))
	}
	for i, c := range clusters {
		if len(c.Members) != 1 || c.Keeper != i || len(c.Candidates) != 0 {
			t.Fatalf("簇 %d 不符合预期：%+v", i, c)
		}
	}
}

func TestGroupDuplicates_LooseThresholdMergesAndPicksPopularKeeper(t *testing.T) {
	records := []domain.VideoRecord{
		rec(t, "1", "0000", 10),
		rec(t, "2", "0001", 5),
		rec(t, "3", "1111", 1),
	}

	clusters, _, err := GroupDuplicates(records, mustScorer(t, 0.5))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("期望 2 个簇，实际 %d：%+v", len(clusters), clusters)
	}
	if got := memberIDs(records, clusters[0]); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("第一个簇成员不符合预期：%v", got)
	}
	if records[clusters[0].Keeper].ID != "1" {
		t.Fatalf("期望 keeper=1，实际 %q", records[clusters[0].Keeper].ID)
	}
	if len(clusters[0].Candidates) != 1 || clusters[0].Candidates[0].Index != 1 || clusters[0].Candidates[0].Distance != 0.25 {
		t.Fatalf("candidates 不符合预期：%+v", clusters[0].Candidates)
	}
	if got := memberIDs(records, clusters[1]); !reflect.DeepEqual(got, []string{"3"}) {
		t.Fatalf("第二个簇成员不符合预期：%v", got)
	}
}

func TestGroupDuplicates_TransitiveUnion(t *testing.T) {
	// a~b（1 位差）、b~c（1 位差），但 a 与 c 差 2 位：闭包后三者同簇。
	records := []domain.VideoRecord{
		rec(t, "a", "0000", 1),
		rec(t, "b", "0001", 1),
		rec(t, "c", "0011", 1),
	}
	clusters, _, err := GroupDuplicates(records, mustScorer(t, 0.75))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(clusters) != 1 || len(clusters[0].Members) != 3 {
		t.Fatalf("期望 1 个三成员簇，实际 %+v", clusters)
	}
}

func TestGroupDuplicates_KeeperTieBreakers(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// 热度相同：更早创建的胜出。
	records := []domain.VideoRecord{
		rec(t, "late", "1010", 7),
		rec(t, "early", "1010", 7),
	}
	records[0].CreatedAt = t0.Add(time.Hour)
	records[1].CreatedAt = t0
	clusters, _, err := GroupDuplicates(records, mustScorer(t, 0.9))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if records[clusters[0].Keeper].ID != "early" {
		t.Fatalf("期望 keeper=early，实际 %q", records[clusters[0].Keeper].ID)
	}

	// 热度、时间都相同：ID 更小（数字按数值）胜出。
	records = []domain.VideoRecord{
		rec(t, "10", "1010", 7),
		rec(t, "9", "1010", 7),
	}
	clusters, _, err = GroupDuplicates(records, mustScorer(t, 0.9))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if records[clusters[0].Keeper].ID != "9" {
		t.Fatalf("期望 keeper=9，实际 %q", records[clusters[0].Keeper].ID)
	}

	// 已知创建时间优先于未知时间。
	records = []domain.VideoRecord{
		rec(t, "1", "1010", 7),
		rec(t, "2", "1010", 7),
	}
	records[1].CreatedAt = t0
	clusters, _, err = GroupDuplicates(records, mustScorer(t, 0.9))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if records[clusters[0].Keeper].ID != "2" {
		t.Fatalf("期望 keeper=2，实际 %q", records[clusters[0].Keeper].ID)
	}
}

func TestGroupDuplicates_KeeperMixedLikesAndViews(t *testing.T) {
	// 簇内有人带 like 数：只比较 like，播放数再高也不参与。
	records := []domain.VideoRecord{
		rec(t, "1", "1010", 5000),
		rec(t, "2", "1010", 0),
	}
	records[0].Views = 20000
	records[1].Views = 90000
	clusters, _, err := GroupDuplicates(records, mustScorer(t, 0.9))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if records[clusters[0].Keeper].ID != "1" {
		t.Fatalf("期望 keeper=1，实际 %q", records[clusters[0].Keeper].ID)
	}

	// 整簇都没有 like 数：改用播放数。
	records = []domain.VideoRecord{
		rec(t, "1", "1010", 0),
		rec(t, "2", "1010", 0),
	}
	records[0].Views = 100
	records[1].Views = 9000
	clusters, _, err = GroupDuplicates(records, mustScorer(t, 0.9))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if records[clusters[0].Keeper].ID != "2" {
		t.Fatalf("期望 keeper=2，实际 %q", records[clusters[0].Keeper].ID)
	}
}

func TestGroupDuplicates_UnhashedExcluded(t *testing.T) {
	records := []domain.VideoRecord{
		rec(t, "1", "0000", 1),
		{ID: "2"},
		rec(t, "3", "0000", 1),
	}
	clusters, unhashed, err := GroupDuplicates(records, mustScorer(t, 0.9))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !reflect.DeepEqual(unhashed, []int{1}) {
		t.Fatalf("unhashed 不符合预期：%v", unhashed)
	}
	if len(clusters) != 1 || !reflect.DeepEqual(clusters[0].Members, []int{0, 2}) {
		t.Fatalf("clusters 不符合预期：%+v", clusters)
	}
}

func TestGroupDuplicates_LengthMismatch(t *testing.T) {
	records := []domain.VideoRecord{
		rec(t, "1", "0000", 1),
		rec(t, "2", "00000", 1),
	}
	_, _, err := GroupDuplicates(records, mustScorer(t, 0.9))
	if !errors.Is(err, phash.ErrInvalidInput) {
		t.Fatalf("期望 ErrInvalidInput，实际 %v", err)
	}
}

func TestGroupDuplicates_Deterministic(t *testing.T) {
	records := []domain.VideoRecord{
		rec(t, "1", "00000000", 3),
		rec(t, "2", "11110000", 3),
		rec(t, "3", "00000001", 9),
		rec(t, "4", "11110001", 1),
		rec(t, "5", "10101010", 2),
	}
	s := mustScorer(t, 0.8)

	a, ua, err := GroupDuplicates(records, s)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, ub, err := GroupDuplicates(records, s)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !reflect.DeepEqual(a, b) || !reflect.DeepEqual(ua, ub) {
		t.Fatalf("同输入两次聚类结果不一致：\n%+v\n%+v", a, b)
	}
}

func TestGroupDuplicates_Empty(t *testing.T) {
	clusters, unhashed, err := GroupDuplicates(nil, mustScorer(t, 0.9))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(clusters) != 0 || len(unhashed) != 0 {
		t.Fatalf("空输入应得到空结果：%v %v", clusters, unhashed)
	}
}
