package app

import (
	"fmt"
	"strconv"

	"github.com/John-Robertt/reposweep/internal/domain"
	"github.com/John-Robertt/reposweep/internal/phash"
)

// GroupDuplicates 把记录按指纹相似度聚合为重复簇（Cluster 只存记录下标）。
//
// - 没有指纹的记录不参与聚类，作为 unhashed 返回（按输入顺序）
// - 两两比较，相似即合并（并查集闭包：A~B、B~C => {A,B,C}）
// - clusters 稳定排序：按首个成员的输入下标
// - 簇内 Members/Candidates 按输入顺序；keeper 规则见 betterKeeper
//
// 所有参与聚类的指纹必须位长一致，否则返回 phash.ErrInvalidInput。
func GroupDuplicates(records []domain.VideoRecord, s Scorer) (clusters []domain.Cluster, unhashed []int, err error) {
	hashed := make([]int, 0, len(records))
	for i := range records {
		if records[i].Fingerprint.IsZero() {
			unhashed = append(unhashed, i)
			continue
		}
		hashed = append(hashed, i)
	}

	if len(hashed) > 0 {
		first := records[hashed[0]]
		for _, i := range hashed[1:] {
			if n := records[i].Fingerprint.Len(); n != first.Fingerprint.Len() {
				return nil, nil, &phash.InvalidInputError{
					Op:     "group",
					Reason: fmt.Sprintf("记录 %q 的指纹位长 %d 与 %q 的 %d 不一致（哈希配置不同的指纹不可比较）", records[i].ID, n, first.ID, first.Fingerprint.Len()),
				}
			}
		}
	}

	uf := newUnionFind(len(hashed))
	for a := 0; a < len(hashed); a++ {
		fa := records[hashed[a]].Fingerprint
		for b := a + 1; b < len(hashed); b++ {
			if uf.find(a) == uf.find(b) {
				continue
			}
			_, same, e := s.Compare(fa, records[hashed[b]].Fingerprint)
			if e != nil {
				return nil, nil, e
			}
			if same {
				uf.union(a, b)
			}
		}
	}

	index := make(map[int]int, len(hashed))
	clusters = make([]domain.Cluster, 0, len(hashed))
	for a, i := range hashed {
		root := uf.find(a)
		if ci, ok := index[root]; ok {
			clusters[ci].Members = append(clusters[ci].Members, i)
			continue
		}
		index[root] = len(clusters)
		clusters = append(clusters, domain.Cluster{Members: []int{i}})
	}

	for ci := range clusters {
		c := &clusters[ci]
		byViews := !anyLikes(records, c.Members)
		keeper := c.Members[0]
		for _, i := range c.Members[1:] {
			if betterKeeper(records[i], records[keeper], byViews) {
				keeper = i
			}
		}
		c.Keeper = keeper

		c.Candidates = make([]domain.Candidate, 0, len(c.Members)-1)
		for _, i := range c.Members {
			if i == keeper {
				continue
			}
			d, _, e := s.Compare(records[keeper].Fingerprint, records[i].Fingerprint)
			if e != nil {
				return nil, nil, e
			}
			c.Candidates = append(c.Candidates, domain.Candidate{Index: i, Distance: d})
		}
	}
	return clusters, unhashed, nil
}

// anyLikes 报告簇内是否有成员带 like 数；全部缺失时整簇改用播放数比较。
func anyLikes(records []domain.VideoRecord, members []int) bool {
	for _, i := range members {
		if records[i].Likes > 0 {
			return true
		}
	}
	return false
}

// betterKeeper 判断 a 是否比 b 更适合作为 keeper：
// 1) 热度更高（byViews 决定整簇统一使用的指标）
// 2) 创建时间更早（未知时间视为最晚）
// 3) ID 更小（都为数字时按数值，否则按字典序）
func betterKeeper(a, b domain.VideoRecord, byViews bool) bool {
	if pa, pb := a.Popularity(byViews), b.Popularity(byViews); pa != pb {
		return pa > pb
	}

	az, bz := a.CreatedAt.IsZero(), b.CreatedAt.IsZero()
	switch {
	case az && !bz:
		return false
	case !az && bz:
		return true
	case !az && !bz && !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.Before(b.CreatedAt)
	}

	return lessID(a.ID, b.ID)
}

func lessID(a, b string) bool {
	na, ea := strconv.ParseUint(a, 10, 64)
	nb, eb := strconv.ParseUint(b, 10, 64)
	if ea == nil && eb == nil {
		return na < nb
	}
	return a < b
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
