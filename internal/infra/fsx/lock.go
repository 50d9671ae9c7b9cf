package fsx

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockName 是工作目录锁文件名（位于 <dir>/cache/ 下）。
const LockName = ".reposweep.lock"

// LockedError 表示工作目录已被另一个进程占用。
type LockedError struct {
	Path string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("工作目录已被其它 reposweep 进程占用（锁文件：%s）", e.Path)
}

// Lock 是工作目录上的进程间排他锁。
type Lock struct {
	f *flock.Flock
}

// TryLock 尝试获取 <dir>/cache/.reposweep.lock；已被占用时立即返回 *LockedError。
func TryLock(dir string) (*Lock, error) {
	cacheDir := filepath.Join(filepath.Clean(dir), "cache")
	if err := EnsureDir(cacheDir); err != nil {
		return nil, err
	}
	path := filepath.Join(cacheDir, LockName)

	f := flock.New(path)
	ok, err := f.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取工作目录锁失败：%w", err)
	}
	if !ok {
		return nil, &LockedError{Path: path}
	}
	return &Lock{f: f}, nil
}

// Path 返回锁文件路径。
func (l *Lock) Path() string {
	if l == nil || l.f == nil {
		return ""
	}
	return l.f.Path()
}

// Unlock 释放锁；对 nil 安全。
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Unlock()
}
