package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // 注册 GIF 解码器（部分 CDN 返回动图首帧）
	_ "image/jpeg" // 注册 JPEG 解码器
	_ "image/png"  // 注册 PNG 解码器

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp" // 注册 WebP 解码器（缩略图 CDN 默认格式）
)

// DecodeError 表示图片内容无法解码（格式不支持/数据损坏）。
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("图片解码失败：%v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode 解码缩略图字节，返回图片与格式名（jpeg/png/gif/webp）。
func Decode(b []byte) (image.Image, string, error) {
	if len(b) == 0 {
		return nil, "", &DecodeError{Err: errors.New("内容为空")}
	}
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	bb := img.Bounds()
	if bb.Dx() <= 0 || bb.Dy() <= 0 {
		return nil, "", &DecodeError{Err: errors.New("图片尺寸无效")}
	}
	return img, format, nil
}

// Normalize 把图片缩放为 size×size 的正方形缩略图（不保留宽高比）。
//
// 同一画面的不同分辨率、不同裁切比例先统一到同一尺寸再哈希。
// size <= 0 或图片已是该尺寸时原样返回。
func Normalize(img image.Image, size int) image.Image {
	if img == nil || size <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	return resize.Resize(uint(size), uint(size), img, resize.Bilinear)
}
