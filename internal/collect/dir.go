package collect

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/reposweep/internal/domain"
)

// ScanDir 把目录中的缩略图文件当作 repost 列表。
//
// 规则：
// - 永久排除 <root>/cache/（运行产物）
// - id = 相对路径去掉扩展名（分隔符统一为 /）
// - created_at = 文件 mtime
//
// 扫描阶段只做 stat，不读文件内容。
func ScanDir(root string) ([]domain.VideoRecord, error) {
	root = filepath.Clean(root)
	cacheDir := filepath.Join(root, "cache")

	type entry struct {
		rel string
		rec domain.VideoRecord
	}
	entries := make([]entry, 0, 128)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path == cacheDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !isImageExt(strings.ToLower(filepath.Ext(d.Name()))) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		entries = append(entries, entry{
			rel: rel,
			rec: domain.VideoRecord{
				ID:            strings.TrimSuffix(rel, filepath.Ext(rel)),
				Title:         strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
				ThumbnailPath: path,
				CreatedAt:     info.ModTime().UTC(),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	out := make([]domain.VideoRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.rec)
	}
	return out, nil
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return true
	default:
		return false
	}
}
