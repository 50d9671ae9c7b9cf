package collect

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	videoIDRE = regexp.MustCompile(`/video/([0-9]+)`)
	creatorRE = regexp.MustCompile(`/@([^/?#]+)`)
	countRE   = regexp.MustCompile(`(?i)^([0-9]+(?:\.[0-9]+)?)\s*([kmb])?$`)
)

// ParseCount 解析页面上的计数文本："1.2K" -> 1200，"5.4M" -> 5400000，"987" -> 987。
// 无法识别时返回 0（计数只影响 keeper 选择，不应让整条记录失败）。
func ParseCount(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	m := countRE.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		f *= 1e3
	case "M":
		f *= 1e6
	case "B":
		f *= 1e9
	}
	return int64(math.Round(f))
}

// VideoID 从视频链接中提取数字 ID（.../@user/video/<id>）。
func VideoID(u string) string {
	m := videoIDRE.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1]
}

// CreatorFromURL 从视频链接中提取作者名（.../@<user>/video/...）。
func CreatorFromURL(u string) string {
	m := creatorRE.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	name, err := url.PathUnescape(m[1])
	if err != nil {
		return m[1]
	}
	return name
}

// 合理的创建时间范围：2016-01-01 .. 2100-01-01（UTC 秒）。
const (
	minCreatedUnix = 1451606400
	maxCreatedUnix = 4102444800
)

// CreatedFromID 从视频 ID 推导创建时间：ID 的高 32 位是 unix 秒。
// ID 非数字或推导结果不在合理范围时返回零值（视为未知）。
func CreatedFromID(id string) time.Time {
	n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(n >> 32)
	if sec < minCreatedUnix || sec > maxCreatedUnix {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "data:") {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
