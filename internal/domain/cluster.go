package domain

// Cluster 是按指纹相似度聚合后的重复簇。
// 为了数据局部性，Cluster 只保存记录下标（指向 []VideoRecord），避免复制大结构体。
//
// 不变量：
// - Members 按输入顺序排列，且包含 Keeper
// - Candidates = Members - {Keeper}，同样按输入顺序
type Cluster struct {
	Members    []int
	Keeper     int
	Candidates []Candidate
}

// Candidate 是簇内的待删除记录；Distance 为其与 keeper 的指纹距离。
type Candidate struct {
	Index    int
	Distance float64
}

// IsDuplicate 表示簇内有不止一条记录。
func (c Cluster) IsDuplicate() bool { return len(c.Members) > 1 }
