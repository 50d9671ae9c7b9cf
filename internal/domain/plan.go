package domain

const (
	// ReasonDuplicate：簇内非 keeper 的重复记录。
	ReasonDuplicate = "duplicate"
	// ReasonRepost：all 模式下不做相似度过滤，每条 repost 都删除。
	ReasonRepost = "repost"
	// ReasonProtected：命中 keep_ids，禁止删除。
	ReasonProtected = "protected"
)

// RemovalPlan 规划一次删除（只描述要删什么；真正执行交给 executor）。
type RemovalPlan struct {
	Index int

	RecordID string
	URL      string
	Creator  string

	// Cluster 是所属簇下标；记录没有指纹时为 -1。
	Cluster  int
	KeeperID string
	Distance float64

	Reason string
}
