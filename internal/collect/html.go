package collect

import (
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/reposweep/internal/domain"
)

// 条目选择器按优先级排列：命中即停止（页面改版时依次回退）。
var itemSelectors = []string{
	`[data-e2e="user-repost-item"]`,
	`[data-e2e="user-post-item"]`,
	`[data-e2e="video-item"]`,
	`div[class*="DivItemContainer"]`,
}

func loadHTMLFile(path, pageURL string) ([]domain.VideoRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseHTML(f, pageURL)
}

// ParseHTML 从保存下来的 repost 页面中解析视频条目。
//
// 约束：
// - 纯函数（只依赖输入 HTML 与 pageURL）
// - 没有视频链接的条目直接跳过（无法定位要删除的对象）
// - 同一 ID 出现多次时只保留第一次（无限滚动页面常见）
func ParseHTML(r io.Reader, pageURL string) ([]domain.VideoRecord, error) {
	if strings.TrimSpace(pageURL) == "" {
		pageURL = DefaultPageURL
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var items *goquery.Selection
	for _, sel := range itemSelectors {
		items = doc.Find(sel)
		if items.Length() > 0 {
			break
		}
	}

	out := make([]domain.VideoRecord, 0, items.Length())
	seen := map[string]struct{}{}
	items.Each(func(_ int, s *goquery.Selection) {
		rec, ok := parseItem(s, pageURL)
		if !ok {
			return
		}
		if _, dup := seen[rec.ID]; dup {
			return
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	})
	return out, nil
}

func parseItem(s *goquery.Selection, pageURL string) (domain.VideoRecord, bool) {
	href, _ := s.Find(`a[href*="/video/"]`).First().Attr("href")
	if href == "" {
		// 条目本身可能就是 <a>。
		href, _ = s.Attr("href")
	}
	link := resolveURL(pageURL, href)
	id := VideoID(link)
	if id == "" {
		return domain.VideoRecord{}, false
	}

	rec := domain.VideoRecord{ID: id, URL: link}

	img := s.Find("img").First()
	src, _ := img.Attr("src")
	if strings.TrimSpace(src) == "" || strings.HasPrefix(src, "data:") {
		src, _ = img.Attr("data-src")
	}
	rec.ThumbnailURL = resolveURL(pageURL, src)

	rec.Title = normSpace(s.Find(`[data-e2e="video-desc"]`).First().Text())
	if rec.Title == "" {
		alt, _ := img.Attr("alt")
		rec.Title = normSpace(alt)
	}

	rec.Creator = normSpace(s.Find(`[data-e2e="video-author"]`).First().Text())

	rec.Views = ParseCount(s.Find(`[data-e2e="video-views"]`).First().Text())
	rec.Likes = ParseCount(s.Find(`[data-e2e*="like"]`).First().Text())

	fillDerived(&rec)
	return rec, true
}
