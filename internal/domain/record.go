package domain

import (
	"time"

	"github.com/John-Robertt/reposweep/internal/phash"
)

// VideoRecord 描述 reposts 列表中的一条视频（collect 阶段产出，聚类阶段只读）。
//
// 不变量（实现必须遵守）：
// - ID 非空，且在一次运行内唯一
// - Fingerprint 为零值表示尚未/无法计算指纹
// - CreatedAt 为零值表示创建时间未知
type VideoRecord struct {
	ID      string
	URL     string
	Title   string
	Creator string

	ThumbnailURL  string
	ThumbnailPath string // 本地缩略图（目录输入或 JSON 指定）

	Likes     int64
	Views     int64
	CreatedAt time.Time

	Fingerprint phash.Fingerprint
}

// Popularity 是 keeper 选择使用的热度。同一簇内必须用同一指标比较：
// byViews=false 取 like 数，byViews=true 取播放数。
func (r VideoRecord) Popularity(byViews bool) int64 {
	if byViews {
		return r.Views
	}
	return r.Likes
}

// ThumbnailSource 返回用于取图/缓存的来源标识：本地路径优先，其次 URL。
func (r VideoRecord) ThumbnailSource() string {
	if r.ThumbnailPath != "" {
		return r.ThumbnailPath
	}
	return r.ThumbnailURL
}
