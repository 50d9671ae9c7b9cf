package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/reposweep/internal/infra/fsx"
	"github.com/John-Robertt/reposweep/internal/phash"
)

// Store 提供 <root>/cache/ 下的文件缓存读写。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
type Store struct {
	Root     string // 工作目录
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// Dir 返回 <root>/cache。
func (s Store) Dir() string { return filepath.Join(s.Root, "cache") }

// ReportPath 返回 report.json 的绝对路径。
func (s Store) ReportPath() string { return filepath.Join(s.Dir(), "report.json") }

// FingerprintPath 返回某个缩略图来源（URL 或本地路径）的指纹缓存路径。
// 不同哈希配置（hasherKey）的指纹互不可比，因此分目录存放。
func (s Store) FingerprintPath(hasherKey, source string) (string, error) {
	k, err := cleanKey(hasherKey)
	if err != nil {
		return "", err
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("source 不能为空")
	}
	sum := sha1.Sum([]byte(source))
	return filepath.Join(s.Dir(), "fingerprints", k, hex.EncodeToString(sum[:])+".txt"), nil
}

// ReadFingerprint 读取缓存的指纹；未命中返回 ok=false。
// 坏缓存（内容无法解析）视为未命中，由上层重新计算。
func (s Store) ReadFingerprint(hasherKey, source string) (phash.Fingerprint, bool, error) {
	path, err := s.FingerprintPath(hasherKey, source)
	if err != nil {
		return phash.Fingerprint{}, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return phash.Fingerprint{}, false, nil
		}
		return phash.Fingerprint{}, false, err
	}
	fp, err := phash.Parse(strings.TrimSpace(string(b)))
	if err != nil || fp.IsZero() {
		return phash.Fingerprint{}, false, nil
	}
	return fp, true, nil
}

func (s Store) WriteFingerprint(hasherKey, source string, fp phash.Fingerprint) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	if fp.IsZero() {
		return fmt.Errorf("指纹为空")
	}
	path, err := s.FingerprintPath(hasherKey, source)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), []byte(fp.String()+"\n"))
}

// WriteReport 原子写入 report.json。
func (s Store) WriteReport(b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	return fsx.WriteFileAtomicReplace(s.Dir(), "report.json", b)
}

var keyRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanKey(k string) (string, error) {
	k = strings.ToLower(strings.TrimSpace(k))
	if k == "" {
		return "", fmt.Errorf("hasher key 不能为空")
	}
	// 最小约束：避免路径穿越。
	if !keyRE.MatchString(k) {
		return "", fmt.Errorf("非法 hasher key：%q", k)
	}
	return k, nil
}
