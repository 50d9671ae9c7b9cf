package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/reposweep/internal/domain"
	"github.com/John-Robertt/reposweep/internal/infra/cache"
	"github.com/John-Robertt/reposweep/internal/infra/httpx"
	"github.com/John-Robertt/reposweep/internal/infra/imgx"
	"github.com/John-Robertt/reposweep/internal/logging"
	"github.com/John-Robertt/reposweep/internal/phash"
)

// 缩略图单张上限：平台缩略图通常 < 200KB。
const maxThumbnailBytes = 8 << 20

const memoSize = 4096

// 指纹来源（用于统计）。
const (
	fromRecord   = "record"
	fromCache    = "cache"
	fromMemo     = "memo"
	fromComputed = "computed"
)

// hashError 携带稳定的 error_code。
type hashError struct {
	Code string
	Err  error
}

func (e *hashError) Error() string { return e.Err.Error() }

func (e *hashError) Unwrap() error { return e.Err }

type hashStats struct {
	FromRecord int
	FromCache  int
	FromMemo   int
	Computed   int
	Failed     int
}

func (s hashStats) fields(workers int) map[string]any {
	return map[string]any{
		"workers":     workers,
		"from_record": s.FromRecord,
		"from_cache":  s.FromCache,
		"memo":        s.FromMemo,
		"computed":    s.Computed,
		"failed":      s.Failed,
	}
}

// fingerprinter 负责“缩略图 -> 指纹”，并在同一次运行内按来源去重。
type fingerprinter struct {
	hasher    phash.Hasher
	thumbSize int
	client    *http.Client
	store     cache.Store
	log       *slog.Logger

	memo *lru.Cache[string, phash.Fingerprint]
	sf   singleflight.Group
}

func newFingerprinter(h phash.Hasher, thumbSize int, client *http.Client, store cache.Store, log *slog.Logger) (*fingerprinter, error) {
	memo, err := lru.New[string, phash.Fingerprint](memoSize)
	if err != nil {
		return nil, err
	}
	return &fingerprinter{
		hasher:    h,
		thumbSize: thumbSize,
		client:    client,
		store:     store,
		log:       log,
		memo:      memo,
	}, nil
}

// cacheKey 区分缓存目录：缩放尺寸同样影响指纹，必须与哈希参数一起入键。
func (f *fingerprinter) cacheKey() string {
	return fmt.Sprintf("%s_t%d", f.hasher.Key(), f.thumbSize)
}

type fpResult struct {
	fp   phash.Fingerprint
	from string
}

// Fingerprint 按优先级取指纹：memo > 文件缓存 > 本地缩略图 > 下载缩略图。
func (f *fingerprinter) Fingerprint(ctx context.Context, r domain.VideoRecord) (phash.Fingerprint, string, error) {
	src := r.ThumbnailSource()
	if src == "" {
		return phash.Fingerprint{}, "", &hashError{Code: domain.ErrCodeNoThumbnail, Err: errors.New("记录没有缩略图")}
	}
	if fp, ok := f.memo.Get(src); ok {
		return fp, fromMemo, nil
	}

	// 同一来源同时只计算一次；等待方拿到的结果计为 memo。
	leader := false
	v, err, _ := f.sf.Do(src, func() (any, error) {
		leader = true
		if fp, ok := f.memo.Get(src); ok {
			return fpResult{fp: fp, from: fromMemo}, nil
		}
		return f.compute(ctx, r, src)
	})
	if err != nil {
		return phash.Fingerprint{}, "", err
	}
	res := v.(fpResult)
	if !leader {
		return res.fp, fromMemo, nil
	}
	return res.fp, res.from, nil
}

func (f *fingerprinter) compute(ctx context.Context, r domain.VideoRecord, src string) (fpResult, error) {
	key := f.cacheKey()

	fp, ok, err := f.store.ReadFingerprint(key, src)
	if err != nil {
		f.log.Debug("读取指纹缓存失败", logging.FieldSource, src, "error", err)
	}
	if ok {
		f.memo.Add(src, fp)
		return fpResult{fp: fp, from: fromCache}, nil
	}

	b, err := f.load(ctx, r)
	if err != nil {
		return fpResult{}, err
	}
	img, _, err := imgx.Decode(b)
	if err != nil {
		return fpResult{}, &hashError{Code: domain.ErrCodeDecodeFailed, Err: err}
	}
	fp, err = f.hasher.Hash(imgx.Normalize(img, f.thumbSize))
	if err != nil {
		return fpResult{}, &hashError{Code: domain.ErrCodeHashFailed, Err: err}
	}

	if !f.store.ReadOnly {
		if err := f.store.WriteFingerprint(key, src, fp); err != nil {
			f.log.Warn("写入指纹缓存失败", logging.FieldSource, src, "error", err)
		}
	}
	f.memo.Add(src, fp)
	return fpResult{fp: fp, from: fromComputed}, nil
}

func (f *fingerprinter) load(ctx context.Context, r domain.VideoRecord) ([]byte, error) {
	if r.ThumbnailPath != "" {
		b, err := os.ReadFile(r.ThumbnailPath)
		if err != nil {
			return nil, &hashError{Code: domain.ErrCodeFetchFailed, Err: fmt.Errorf("读取缩略图失败：%w", err)}
		}
		return b, nil
	}
	b, err := httpx.Get(ctx, f.client, r.ThumbnailURL, maxThumbnailBytes)
	if err != nil {
		code := domain.ErrCodeFetchFailed
		if ctx.Err() != nil {
			code = domain.ErrCodeCanceled
		}
		return nil, &hashError{Code: code, Err: fmt.Errorf("下载缩略图失败：%w", err)}
	}
	return b, nil
}

// hashAll 为缺少指纹的记录补齐指纹（原地写 records[i].Fingerprint）。
// 单条失败只记录到返回值，不影响其他记录。
func hashAll(ctx context.Context, records []domain.VideoRecord, f *fingerprinter, workers int, obs Observer) (map[int]domain.Unhashed, hashStats) {
	if workers < 1 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		stats  hashStats
		failed = make(map[int]domain.Unhashed)
		done   int
	)

	todo := make([]int, 0, len(records))
	for i := range records {
		if !records[i].Fingerprint.IsZero() {
			stats.FromRecord++
			continue
		}
		todo = append(todo, i)
	}

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, i := range todo {
		g.Go(func() error {
			fp, from, err := f.Fingerprint(gctx, records[i])

			mu.Lock()
			defer mu.Unlock()

			done++
			if err != nil {
				u := domain.Unhashed{Index: i, ErrorCode: domain.ErrCodeHashFailed, ErrorMsg: err.Error()}
				var he *hashError
				if errors.As(err, &he) {
					u.ErrorCode = he.Code
				}
				failed[i] = u
				stats.Failed++
				f.log.Warn("缩略图指纹失败", logging.FieldID, records[i].ID, "error_code", u.ErrorCode, "error", err)
			} else {
				records[i].Fingerprint = fp
				switch from {
				case fromCache:
					stats.FromCache++
				case fromMemo:
					stats.FromMemo++
				default:
					stats.Computed++
				}
			}
			if obs != nil {
				obs.OnProgress(done, len(todo), stats.Failed, time.Since(started))
			}
			// 单条失败不取消其它任务。
			return nil
		})
	}
	_ = g.Wait()

	return failed, stats
}
