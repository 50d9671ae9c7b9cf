package collect

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestParseCount(t *testing.T) {
	cases := map[string]int64{
		"":       0,
		"987":    987,
		"1.2K":   1200,
		"4.1k":   4100,
		"5.4M":   5400000,
		"1B":     1000000000,
		"12,345": 12345,
		" 3 K ":  3000,
		"abc":    0,
	}
	for in, want := range cases {
		if got := ParseCount(in); got != want {
			t.Fatalf("ParseCount(%q)=%d 期望 %d", in, got, want)
		}
	}
}

func TestVideoIDAndCreator(t *testing.T) {
	u := "https://www.tiktok.com/@some.user/video/7301234567890123456?lang=en"
	if got := VideoID(u); got != "7301234567890123456" {
		t.Fatalf("VideoID=%q", got)
	}
	if got := CreatorFromURL(u); got != "some.user" {
		t.Fatalf("CreatorFromURL=%q", got)
	}
	if VideoID("https://www.tiktok.com/@x") != "" || CreatorFromURL("https://example.com/video/1") != "" {
		t.Fatalf("无匹配时应返回空字符串")
	}
}

func TestCreatedFromID(t *testing.T) {
	sec := int64(1700000000)
	id := uint64(sec)<<32 | 12345
	got := CreatedFromID(strconv.FormatUint(id, 10))
	if !got.Equal(time.Unix(sec, 0)) {
		t.Fatalf("CreatedFromID=%v 期望 %v", got, time.Unix(sec, 0).UTC())
	}
	if !CreatedFromID("123").IsZero() {
		t.Fatalf("过小的 ID 不应推导出时间")
	}
	if !CreatedFromID("abc").IsZero() {
		t.Fatalf("非数字 ID 不应推导出时间")
	}
}

func TestLoad_JSONArrayAndDerivedFields(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "reposts.json"), `[
	  {"id": "1", "url": "https://www.tiktok.com/@alice/video/1", "likes": "1.2K", "views": 10, "thumbnail_path": "thumbs/1.jpg", "fingerprint": "0b0000"},
	  {"url": "https://www.tiktok.com/@bob/video/2", "created_at": "2025-01-02T03:04:05+08:00", "creator": "@bobby"},
	  {"id": 3, "created_at": 1700000000, "likes": null}
	]`)

	got, err := Load(filepath.Join(dir, "reposts.json"), Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 3 {
		t.Fatalf("期望 3 条记录，实际 %d", len(got))
	}

	r := got[0]
	if r.Likes != 1200 || r.Views != 10 || r.Creator != "alice" {
		t.Fatalf("记录 1 字段不符合预期：%+v", r)
	}
	if r.ThumbnailPath != filepath.Join(dir, "thumbs", "1.jpg") {
		t.Fatalf("相对 thumbnail_path 应以 JSON 所在目录为基准：%q", r.ThumbnailPath)
	}
	if r.Fingerprint.Len() != 4 {
		t.Fatalf("fingerprint 未解析：%v", r.Fingerprint)
	}

	r = got[1]
	if r.ID != "2" || r.Creator != "bobby" {
		t.Fatalf("记录 2 应从 url 推导 ID 并去掉 @：%+v", r)
	}
	if r.CreatedAt.Location() != time.UTC || r.CreatedAt.Hour() != 19 {
		t.Fatalf("created_at 应转为 UTC：%v", r.CreatedAt)
	}

	r = got[2]
	if r.ID != "3" || r.CreatedAt.Unix() != 1700000000 || r.Likes != 0 {
		t.Fatalf("记录 3 字段不符合预期：%+v", r)
	}
}

func TestLoad_JSONObjectWrapperAndMaxVideos(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "r.json")
	write(t, p, `{"records":[{"id":"a"},{"id":"b"},{"id":"c"}]}`)

	got, err := Load(p, Options{MaxVideos: 2})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("max_videos 截断不符合预期：%+v", got)
	}
}

func TestLoad_JSONDuplicateIDRejected(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "r.json")
	write(t, p, `[{"id":"a"},{"id":"a"}]`)

	_, err := Load(p, Options{})
	var ce *Error
	if !errors.As(err, &ce) || !strings.Contains(ce.Reason, "重复") {
		t.Fatalf("期望重复 id 错误，实际 %v", err)
	}
}

func TestLoad_JSONMissingID(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "r.json")
	write(t, p, `[{"title":"no id"}]`)

	if _, err := Load(p, Options{}); err == nil {
		t.Fatalf("期望缺少 id 报错")
	}
}

func TestLoad_JSONBadFingerprint(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "r.json")
	write(t, p, `[{"id":"a","fingerprint":"zz"}]`)

	_, err := Load(p, Options{})
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("期望 *collect.Error，实际 %T %v", err, err)
	}
}

func TestLoad_UnsupportedSource(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "r.csv")
	write(t, p, "id\n1\n")

	if _, err := Load(p, Options{}); err == nil {
		t.Fatalf("期望不支持的来源报错")
	}
	if _, err := Load(filepath.Join(dir, "missing.json"), Options{}); err == nil {
		t.Fatalf("期望来源不存在报错")
	}
}

const repostPage = `<!doctype html><html><body>
<div data-e2e="user-repost-item">
  <a href="/@alice/video/7301234567890123456"><img src="https://p16.example.com/a.jpeg" alt="  cat   video "></a>
  <strong data-e2e="video-views">1.5M</strong>
  <span data-e2e="like-count">2.3K</span>
</div>
<div data-e2e="user-repost-item">
  <a href="https://www.tiktok.com/@bob/video/42"><img src="data:image/gif;base64,AAAA" data-src="//cdn.example.com/b.jpeg"></a>
  <strong data-e2e="video-views">900</strong>
</div>
<div data-e2e="user-repost-item">
  <a href="/@alice/video/7301234567890123456"><img src="https://p16.example.com/a.jpeg"></a>
</div>
<div data-e2e="user-repost-item"><span>没有链接</span></div>
<div data-e2e="user-post-item"><a href="/@me/video/1"></a></div>
</body></html>`

func TestParseHTML_RepostItems(t *testing.T) {
	got, err := ParseHTML(strings.NewReader(repostPage), "")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 条（重复/无链接跳过，post 条目不参与），实际 %d：%+v", len(got), got)
	}

	a := got[0]
	if a.ID != "7301234567890123456" || a.URL != "https://www.tiktok.com/@alice/video/7301234567890123456" {
		t.Fatalf("ID/URL 不符合预期：%+v", a)
	}
	if a.Creator != "alice" || a.Title != "cat video" {
		t.Fatalf("creator/title 不符合预期：%+v", a)
	}
	if a.Views != 1500000 || a.Likes != 2300 {
		t.Fatalf("计数不符合预期：%+v", a)
	}
	if a.ThumbnailURL != "https://p16.example.com/a.jpeg" {
		t.Fatalf("thumbnail 不符合预期：%q", a.ThumbnailURL)
	}
	if a.CreatedAt.IsZero() {
		t.Fatalf("应从 ID 推导 created_at")
	}

	b := got[1]
	if b.ThumbnailURL != "https://cdn.example.com/b.jpeg" {
		t.Fatalf("data: 占位图应回退 data-src：%q", b.ThumbnailURL)
	}
	if b.Views != 900 || b.Likes != 0 {
		t.Fatalf("计数不符合预期：%+v", b)
	}
}

func TestParseHTML_FallbackSelector(t *testing.T) {
	page := `<div class="css-x-DivItemContainer-abc"><a href="/@c/video/7"><img src="/t.jpg"></a></div>`
	got, err := ParseHTML(strings.NewReader(page), "https://www.tiktok.com/@me")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 || got[0].ID != "7" || got[0].ThumbnailURL != "https://www.tiktok.com/t.jpg" {
		t.Fatalf("回退选择器解析不符合预期：%+v", got)
	}
}

func TestLoad_HTMLFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "reposts.html")
	write(t, p, repostPage)

	got, err := Load(p, Options{MaxVideos: 1})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 条，实际 %d", len(got))
	}
}

func TestScanDir_ImagesSortedAndCacheExcluded(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "b.PNG"), "x")
	write(t, filepath.Join(root, "a.jpg"), "x")
	write(t, filepath.Join(root, "sub", "c.webp"), "x")
	write(t, filepath.Join(root, "notes.txt"), "x")
	write(t, filepath.Join(root, "cache", "fingerprints", "x.jpg"), "x")

	got, err := Load(root, Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if strings.Join(ids, ",") != "a,b,sub/c" {
		t.Fatalf("ids 不符合预期：%v", ids)
	}
	if got[0].ThumbnailPath != filepath.Join(root, "a.jpg") || got[0].CreatedAt.IsZero() {
		t.Fatalf("记录字段不符合预期：%+v", got[0])
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
