package phash

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"strings"

	"github.com/nfnt/resize"
)

const (
	// DefaultSize 是哈希边长：指纹位长为 Size*Size。
	DefaultSize = 16
	// DefaultOversample 是 DCT 哈希在做变换前的放大倍数（图像边长 = Size*Oversample）。
	DefaultOversample = 4

	MinSize = 4
	MaxSize = 64
)

// Hasher 把图像转换为指纹。
//
// 约束：同一个 Key 产出的指纹才可以互相比较；Key 必须包含影响位长/量化的全部参数。
type Hasher interface {
	Name() string
	Key() string
	Hash(img image.Image) (Fingerprint, error)
}

// NewHasher 按名称构造 Hasher（dct/average/difference）。size=0 使用 DefaultSize。
func NewHasher(name string, size int) (Hasher, error) {
	if size == 0 {
		size = DefaultSize
	}
	if size < MinSize || size > MaxSize {
		return nil, &InvalidInputError{Op: "NewHasher", Reason: fmt.Sprintf("size=%d 超出 [%d,%d]", size, MinSize, MaxSize)}
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "dct", "phash":
		return &DCTHash{Size: size}, nil
	case "average", "ahash":
		return &AverageHash{Size: size}, nil
	case "difference", "dhash":
		return &DifferenceHash{Size: size}, nil
	default:
		return nil, &InvalidInputError{Op: "NewHasher", Reason: fmt.Sprintf("未知算法 %q（可选 dct/average/difference）", name)}
	}
}

// AverageHash 把图像缩放到 Size*Size 灰度图，亮度高于均值的像素记为 1。
type AverageHash struct {
	Size int
}

func (a *AverageHash) Name() string { return "average" }
func (a *AverageHash) Key() string  { return fmt.Sprintf("average%d", sizeOr(a.Size)) }

func (a *AverageHash) Hash(img image.Image) (Fingerprint, error) {
	size := sizeOr(a.Size)
	px, err := grayMatrix(img, size, size)
	if err != nil {
		return Fingerprint{}, err
	}

	var sum float64
	for _, row := range px {
		for _, v := range row {
			sum += v
		}
	}
	mean := sum / float64(size*size)

	out := make([]bool, 0, size*size)
	for _, row := range px {
		for _, v := range row {
			out = append(out, v > mean)
		}
	}
	return New(out), nil
}

// DifferenceHash 比较水平相邻像素的亮度：右侧更亮记为 1。
type DifferenceHash struct {
	Size int
}

func (d *DifferenceHash) Name() string { return "difference" }
func (d *DifferenceHash) Key() string  { return fmt.Sprintf("difference%d", sizeOr(d.Size)) }

func (d *DifferenceHash) Hash(img image.Image) (Fingerprint, error) {
	size := sizeOr(d.Size)
	px, err := grayMatrix(img, size+1, size)
	if err != nil {
		return Fingerprint{}, err
	}
	out := make([]bool, 0, size*size)
	for _, row := range px {
		for x := 0; x < size; x++ {
			out = append(out, row[x+1] > row[x])
		}
	}
	return New(out), nil
}

// DCTHash 是经典 pHash：灰度 + 缩放到 (Size*Oversample)^2，做二维 DCT-II，
// 取左上角 Size*Size 的低频系数，高于中位数记为 1。
type DCTHash struct {
	Size       int
	Oversample int
}

func (h *DCTHash) Name() string { return "dct" }

func (h *DCTHash) Key() string {
	return fmt.Sprintf("dct%dx%d", sizeOr(h.Size), oversampleOr(h.Oversample))
}

func (h *DCTHash) Hash(img image.Image) (Fingerprint, error) {
	size := sizeOr(h.Size)
	n := size * oversampleOr(h.Oversample)
	px, err := grayMatrix(img, n, n)
	if err != nil {
		return Fingerprint{}, err
	}

	coef := dctLowFreq(px, size)

	flat := make([]float64, 0, size*size)
	for _, row := range coef {
		flat = append(flat, row...)
	}
	med := median(flat)

	out := make([]bool, len(flat))
	for i, v := range flat {
		out[i] = v > med
	}
	return New(out), nil
}

// dctLowFreq 计算 n*n 矩阵的二维 DCT-II，只保留前 k*k 个系数（未归一化，缩放不影响中位数比较）。
func dctLowFreq(px [][]float64, k int) [][]float64 {
	n := len(px)
	cos := make([][]float64, k)
	for u := 0; u < k; u++ {
		cos[u] = make([]float64, n)
		for x := 0; x < n; x++ {
			cos[u][x] = math.Cos(math.Pi * float64(2*x+1) * float64(u) / float64(2*n))
		}
	}

	// 行变换：tmp[y][u]
	tmp := make([][]float64, n)
	for y := 0; y < n; y++ {
		tmp[y] = make([]float64, k)
		for u := 0; u < k; u++ {
			var s float64
			for x := 0; x < n; x++ {
				s += px[y][x] * cos[u][x]
			}
			tmp[y][u] = s
		}
	}

	// 列变换：out[v][u]
	out := make([][]float64, k)
	for v := 0; v < k; v++ {
		out[v] = make([]float64, k)
		for u := 0; u < k; u++ {
			var s float64
			for y := 0; y < n; y++ {
				s += tmp[y][u] * cos[v][y]
			}
			out[v][u] = s
		}
	}
	return out
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

// grayMatrix 把图像缩放到 w*h 并转为 [0,1] 亮度矩阵（行优先）。
func grayMatrix(img image.Image, w, h int) ([][]float64, error) {
	if img == nil {
		return nil, &InvalidInputError{Op: "hash", Reason: "图像为空"}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &InvalidInputError{Op: "hash", Reason: "图像尺寸无效"}
	}

	scaled := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	sb := scaled.Bounds()

	out := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			g := color.GrayModel.Convert(scaled.At(sb.Min.X+x, sb.Min.Y+y)).(color.Gray)
			row[x] = float64(g.Y) / 255
		}
		out[y] = row
	}
	return out, nil
}

func sizeOr(n int) int {
	if n <= 0 {
		return DefaultSize
	}
	return n
}

func oversampleOr(n int) int {
	if n <= 0 {
		return DefaultOversample
	}
	return n
}
