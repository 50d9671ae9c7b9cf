package planner

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/reposweep/internal/domain"
)

// Mode 决定哪些记录进入删除计划。
type Mode string

const (
	// ModeDuplicates：只删除重复簇中的非 keeper。
	ModeDuplicates Mode = "duplicates"
	// ModeAll：删除全部 repost；相似度只用于标注所属簇。
	ModeAll Mode = "all"
)

// ParseMode 解析模式字符串；空字符串视为 duplicates。
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDuplicates:
		return ModeDuplicates, nil
	case ModeAll:
		return ModeAll, nil
	default:
		return "", fmt.Errorf("未知 mode：%q（可选：duplicates/all）", s)
	}
}

type Options struct {
	Mode Mode
	// Keep 中的 ID 永不删除（以 protected 出现在结果中）。
	Keep []string
}

// Result 是规划结果：Remove 交给 executor；Protected 只用于报告。
type Result struct {
	Remove    []domain.RemovalPlan
	Protected []domain.RemovalPlan
}

// Plan 基于聚类结果生成确定性的删除计划（不做任何 I/O）。
//
// 顺序：按簇顺序、簇内按输入顺序；all 模式下无指纹的记录追加在最后。
func Plan(records []domain.VideoRecord, clusters []domain.Cluster, unhashed []int, opts Options) (Result, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModeDuplicates
	}
	if mode != ModeDuplicates && mode != ModeAll {
		return Result{}, fmt.Errorf("未知 mode：%q", mode)
	}

	keep := make(map[string]struct{}, len(opts.Keep))
	for _, id := range opts.Keep {
		if id = strings.TrimSpace(id); id != "" {
			keep[id] = struct{}{}
		}
	}

	check := func(i int) error {
		if i < 0 || i >= len(records) {
			return fmt.Errorf("非法 record index：%d", i)
		}
		return nil
	}

	var res Result
	add := func(p domain.RemovalPlan) {
		if _, ok := keep[p.RecordID]; ok {
			p.Reason = domain.ReasonProtected
			res.Protected = append(res.Protected, p)
			return
		}
		res.Remove = append(res.Remove, p)
	}

	for ci, c := range clusters {
		if err := check(c.Keeper); err != nil {
			return Result{}, err
		}
		keeperID := records[c.Keeper].ID

		dist := make(map[int]float64, len(c.Candidates))
		for _, cand := range c.Candidates {
			dist[cand.Index] = cand.Distance
		}

		for _, i := range c.Members {
			if err := check(i); err != nil {
				return Result{}, err
			}
			isKeeper := i == c.Keeper
			if mode == ModeDuplicates && isKeeper {
				continue
			}
			reason := domain.ReasonDuplicate
			if mode == ModeAll {
				reason = domain.ReasonRepost
			}
			add(newPlan(records[i], i, ci, keeperID, dist[i], reason))
		}
	}

	if mode == ModeAll {
		for _, i := range unhashed {
			if err := check(i); err != nil {
				return Result{}, err
			}
			add(newPlan(records[i], i, -1, "", 0, domain.ReasonRepost))
		}
	}
	return res, nil
}

func newPlan(r domain.VideoRecord, index, cluster int, keeperID string, distance float64, reason string) domain.RemovalPlan {
	return domain.RemovalPlan{
		Index:    index,
		RecordID: r.ID,
		URL:      r.URL,
		Creator:  r.Creator,
		Cluster:  cluster,
		KeeperID: keeperID,
		Distance: distance,
		Reason:   reason,
	}
}
