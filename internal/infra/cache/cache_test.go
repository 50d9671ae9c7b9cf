package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/reposweep/internal/phash"
)

func TestStore_ReadWriteFingerprint(t *testing.T) {
	root := t.TempDir()
	fp, _ := phash.ParseHex("f0e1d2c3b4a59687")

	s := New(root, false)
	if err := s.WriteFingerprint("dct16x4", "https://cdn.example.com/a.jpeg", fp); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	got, ok, err := s.ReadFingerprint("dct16x4", "https://cdn.example.com/a.jpeg")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok || !got.Equal(fp) {
		t.Fatalf("期望命中缓存且内容一致：ok=%v got=%v", ok, got)
	}

	// 另一种哈希配置不应命中。
	if _, ok, _ := s.ReadFingerprint("average16", "https://cdn.example.com/a.jpeg"); ok {
		t.Fatalf("不同 hasher key 不应命中")
	}

	path, err := s.FingerprintPath("dct16x4", "https://cdn.example.com/a.jpeg")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !strings.HasPrefix(path, filepath.Join(root, "cache", "fingerprints", "dct16x4")) {
		t.Fatalf("路径布局不符合预期：%q", path)
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	root := t.TempDir()
	fp, _ := phash.ParseBits("1010")

	s := New(root, true)
	if err := s.WriteFingerprint("average4", "/tmp/x.jpg", fp); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
	if err := s.WriteReport([]byte("{}")); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
	if _, err := os.Stat(s.ReportPath()); !os.IsNotExist(err) {
		t.Fatalf("期望 report 不存在，但 Stat err=%v", err)
	}
}

func TestStore_CorruptCacheIsMiss(t *testing.T) {
	root := t.TempDir()
	s := New(root, false)

	path, _ := s.FingerprintPath("average4", "src")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("not-hex"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	_, ok, err := s.ReadFingerprint("average4", "src")
	if err != nil || ok {
		t.Fatalf("坏缓存应视为未命中：ok=%v err=%v", ok, err)
	}
}

func TestStore_InvalidKey(t *testing.T) {
	s := New(t.TempDir(), false)
	for _, k := range []string{"", "../x", "a/b"} {
		if _, err := s.FingerprintPath(k, "src"); err == nil {
			t.Fatalf("key=%q 期望错误", k)
		}
	}
	if _, err := s.FingerprintPath("dct16x4", " "); err == nil {
		t.Fatalf("空 source 期望错误")
	}
}

func TestStore_WriteReport(t *testing.T) {
	s := New(t.TempDir(), false)
	if err := s.WriteReport([]byte(`{"ok":true}`)); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(s.ReportPath())
	if err != nil || string(b) != `{"ok":true}` {
		t.Fatalf("report 内容不符合预期：%q %v", b, err)
	}
}
