package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/reposweep/internal/app"
	"github.com/John-Robertt/reposweep/internal/config"
	"github.com/John-Robertt/reposweep/internal/infra/httpx"
	"github.com/John-Robertt/reposweep/internal/infra/imgx"
	"github.com/John-Robertt/reposweep/internal/phash"
)

// hashFlags 是 hash/compare 共用的哈希参数。
type hashFlags struct {
	algorithm string
	size      int
	thumbSize int
	proxyURL  string
}

func (f *hashFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.algorithm, "algorithm", config.DefaultAlgorithm, "哈希算法：dct|average|difference")
	flags.IntVar(&f.size, "size", config.DefaultHashSize, "哈希边长（指纹位长为 size*size）")
	flags.IntVar(&f.thumbSize, "thumbnail-size", config.DefaultThumbnailSize, "哈希前把图片缩放为该边长的正方形（0 表示不缩放）")
	flags.StringVar(&f.proxyURL, "proxy", "", "下载图片使用的代理 URL")
}

// imageHasher 把命令行参数（本地图片或 http(s) URL）转换为指纹。
type imageHasher struct {
	hasher    phash.Hasher
	thumbSize int
	client    *http.Client
}

func (f *hashFlags) build() (*imageHasher, error) {
	h, err := phash.NewHasher(f.algorithm, f.size)
	if err != nil {
		return nil, err
	}
	if f.thumbSize < 0 {
		return nil, fmt.Errorf("--thumbnail-size 不能为负数：%d", f.thumbSize)
	}
	c, err := httpx.NewClient(httpx.Options{ProxyURL: f.proxyURL})
	if err != nil {
		return nil, err
	}
	return &imageHasher{hasher: h, thumbSize: f.thumbSize, client: c}, nil
}

func (h *imageHasher) hashArg(ctx context.Context, arg string) (phash.Fingerprint, error) {
	var (
		b   []byte
		err error
	)
	if isURL(arg) {
		b, err = httpx.Get(ctx, h.client, arg, 0)
	} else {
		b, err = os.ReadFile(arg)
	}
	if err != nil {
		return phash.Fingerprint{}, err
	}
	img, _, err := imgx.Decode(b)
	if err != nil {
		return phash.Fingerprint{}, err
	}
	return h.hasher.Hash(imgx.Normalize(img, h.thumbSize))
}

// fingerprintArg 接受图片路径、URL 或已有指纹（hex / 0b 前缀的比特串）。
// 同名文件存在时优先按图片处理。
func (h *imageHasher) fingerprintArg(ctx context.Context, arg string) (phash.Fingerprint, error) {
	if isURL(arg) {
		return h.hashArg(ctx, arg)
	}
	if _, err := os.Stat(arg); err == nil {
		return h.hashArg(ctx, arg)
	}
	fp, err := phash.Parse(arg)
	if err != nil {
		return phash.Fingerprint{}, fmt.Errorf("%q 既不是图片也不是指纹：%w", arg, err)
	}
	return fp, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func newHashCommand(stdout io.Writer) *cobra.Command {
	var hf hashFlags

	cmd := &cobra.Command{
		Use:   "hash <image...>",
		Short: "计算图片的感知哈希指纹",
		Long:  "每行输出一个结果：<指纹>  <图片>（可直接作为 compare 的参数）。任一图片失败时退出码为 1。",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ih, err := hf.build()
			if err != nil {
				return failed(err)
			}
			var errs []error
			for _, arg := range args {
				fp, err := ih.hashArg(cmd.Context(), arg)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", arg, err))
					continue
				}
				fmt.Fprintf(stdout, "%s  %s\n", fp.String(), arg)
			}
			if len(errs) > 0 {
				return failed(errors.Join(errs...))
			}
			return nil
		},
	}
	hf.register(cmd)
	return cmd
}

func newCompareCommand(stdout io.Writer) *cobra.Command {
	var (
		hf        hashFlags
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "compare <a> <b>",
		Short: "比较两张图片（或两个指纹）的相似度",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scorer, err := app.NewScorer(threshold, phash.Hamming{})
			if err != nil {
				return failed(err)
			}
			ih, err := hf.build()
			if err != nil {
				return failed(err)
			}

			fps := make([]phash.Fingerprint, 0, 2)
			for _, arg := range args {
				fp, err := ih.fingerprintArg(cmd.Context(), arg)
				if err != nil {
					return failed(err)
				}
				fps = append(fps, fp)
			}

			d, same, err := scorer.Compare(fps[0], fps[1])
			if err != nil {
				return failed(err)
			}
			verdict := "different"
			if same {
				verdict = "duplicate"
			}
			fmt.Fprintf(stdout, "distance=%.4f similarity=%.4f threshold=%.2f %s\n", d, 1-d, scorer.Threshold(), verdict)
			return nil
		},
	}
	hf.register(cmd)
	cmd.Flags().Float64Var(&threshold, "threshold", config.DefaultThreshold, "相似度阈值 [0,1]")
	return cmd
}
