package collect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/reposweep/internal/domain"
	"github.com/John-Robertt/reposweep/internal/phash"
)

type jsonRecord struct {
	ID            flexString `json:"id"`
	URL           string     `json:"url"`
	Title         string     `json:"title"`
	Creator       string     `json:"creator"`
	ThumbnailURL  string     `json:"thumbnail_url"`
	ThumbnailPath string     `json:"thumbnail_path"`
	Likes         count      `json:"likes"`
	Views         count      `json:"views"`
	CreatedAt     flexTime   `json:"created_at"`
	Fingerprint   string     `json:"fingerprint"`
}

func loadJSONFile(path string) ([]domain.VideoRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseJSON(f, filepath.Dir(path))
}

// ParseJSON 解析记录文件：顶层为数组，或 {"records":[...]}。
// 相对的 thumbnail_path 以 baseDir 为基准解析。
func ParseJSON(r io.Reader, baseDir string) ([]domain.VideoRecord, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("JSON 为空")
	}

	var raw []jsonRecord
	switch b[0] {
	case '[':
		err = json.Unmarshal(b, &raw)
	case '{':
		var wrap struct {
			Records []jsonRecord `json:"records"`
		}
		err = json.Unmarshal(b, &wrap)
		raw = wrap.Records
	default:
		return nil, fmt.Errorf("JSON 顶层必须是数组或对象")
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.VideoRecord, 0, len(raw))
	for i, jr := range raw {
		rec := domain.VideoRecord{
			ID:            strings.TrimSpace(string(jr.ID)),
			URL:           strings.TrimSpace(jr.URL),
			Title:         normSpace(jr.Title),
			Creator:       strings.TrimSpace(jr.Creator),
			ThumbnailURL:  strings.TrimSpace(jr.ThumbnailURL),
			ThumbnailPath: strings.TrimSpace(jr.ThumbnailPath),
			Likes:         int64(jr.Likes),
			Views:         int64(jr.Views),
			CreatedAt:     time.Time(jr.CreatedAt),
		}
		if rec.ThumbnailPath != "" && !filepath.IsAbs(rec.ThumbnailPath) && baseDir != "" {
			rec.ThumbnailPath = filepath.Join(baseDir, rec.ThumbnailPath)
		}
		if s := strings.TrimSpace(jr.Fingerprint); s != "" {
			fp, err := phash.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("第 %d 条记录 fingerprint 非法：%w", i+1, err)
			}
			rec.Fingerprint = fp
		}
		fillDerived(&rec)
		out = append(out, rec)
	}
	return out, nil
}

// flexString 接受字符串或数字（大整数 ID 常以数字形式导出）。
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// count 接受数字或 "1.2K" 形式的字符串。
type count int64

func (c *count) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*c = count(ParseCount(v))
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("计数非法：%s", string(b))
	}
	if f < 0 {
		f = 0
	}
	*c = count(int64(f))
	return nil
}

// flexTime 接受 RFC3339 字符串或 unix 秒。
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = flexTime{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		v = strings.TrimSpace(v)
		if v == "" {
			*t = flexTime{}
			return nil
		}
		tt, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("created_at 非法（需要 RFC3339）：%q", v)
		}
		*t = flexTime(tt.UTC())
		return nil
	}
	sec, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("created_at 非法：%s", string(b))
	}
	if sec <= 0 {
		*t = flexTime{}
		return nil
	}
	*t = flexTime(time.Unix(sec, 0).UTC())
	return nil
}
