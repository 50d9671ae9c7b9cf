package domain

// Unhashed 描述无法得到指纹的记录（无缩略图/下载失败/解码失败）。
// 这类记录不参与聚类，但会在 report 中单独列出，便于用户排查。
type Unhashed struct {
	Index     int
	ErrorCode string
	ErrorMsg  string
}
