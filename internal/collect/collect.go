package collect

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/reposweep/internal/domain"
)

// Options 控制收集阶段的可选行为。
type Options struct {
	// MaxVideos > 0 时只保留前 N 条记录。
	MaxVideos int
	// PageURL 用于解析 HTML 中的相对链接；为空时使用 DefaultPageURL。
	PageURL string
}

// DefaultPageURL 是保存的 repost 页面默认所在站点。
const DefaultPageURL = "https://www.tiktok.com/"

// Error 是收集阶段的可追溯错误（来源 + 原因）。
type Error struct {
	Source string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("collect %s：%s：%v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("collect %s：%s", e.Source, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Load 按来源类型读取 repost 列表：
// - 目录：其中的图片文件即缩略图
// - .json：记录数组（或 {"records":[...]}）
// - .html/.htm：保存下来的 repost 页面
//
// 返回的记录保证 ID 非空且唯一，并保持来源中的顺序。
func Load(source string, opts Options) ([]domain.VideoRecord, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, &Error{Source: source, Reason: "来源不能为空"}
	}

	st, err := os.Stat(source)
	if err != nil {
		return nil, &Error{Source: source, Reason: "无法读取来源", Err: err}
	}

	var records []domain.VideoRecord
	switch ext := strings.ToLower(filepath.Ext(source)); {
	case st.IsDir():
		records, err = ScanDir(source)
	case ext == ".json":
		records, err = loadJSONFile(source)
	case ext == ".html" || ext == ".htm":
		records, err = loadHTMLFile(source, opts.PageURL)
	default:
		return nil, &Error{Source: source, Reason: fmt.Sprintf("不支持的来源类型：%q（可选：目录/.json/.html）", ext)}
	}
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &Error{Source: source, Reason: "解析失败", Err: err}
	}

	if err := validate(records); err != nil {
		return nil, &Error{Source: source, Reason: err.Error()}
	}

	if opts.MaxVideos > 0 && len(records) > opts.MaxVideos {
		records = records[:opts.MaxVideos]
	}
	return records, nil
}

func validate(records []domain.VideoRecord) error {
	seen := make(map[string]int, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("第 %d 条记录缺少 id（且无法从 url 推导）", i+1)
		}
		if j, ok := seen[r.ID]; ok {
			return fmt.Errorf("重复的 id：%q（第 %d 与第 %d 条）", r.ID, j+1, i+1)
		}
		seen[r.ID] = i
	}
	return nil
}

// fillDerived 补齐可由 URL/ID 推导出的字段。
func fillDerived(r *domain.VideoRecord) {
	if r.ID == "" {
		r.ID = VideoID(r.URL)
	}
	if r.Creator == "" {
		r.Creator = CreatorFromURL(r.URL)
	}
	r.Creator = strings.TrimPrefix(r.Creator, "@")
	if r.CreatedAt.IsZero() {
		r.CreatedAt = CreatedFromID(r.ID)
	}
}
