package phash

import (
	"errors"
	"fmt"
)

// ErrInvalidInput 是输入不合法（位长不一致、阈值越界等）的哨兵错误。
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError 描述具体哪一步的输入不合法；errors.Is(err, ErrInvalidInput) 成立。
type InvalidInputError struct {
	Op     string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s：%s", ErrInvalidInput.Error(), e.Op, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// Distance 是可替换的指纹距离函数；返回值必须落在 [0,1]。
//
// 聚类逻辑只依赖该接口，换哈希方案不需要改动聚类。
type Distance interface {
	Distance(a, b Fingerprint) (float64, error)
}

// Hamming 是归一化汉明距离：不同位数 / 位长。
type Hamming struct{}

func (Hamming) Distance(a, b Fingerprint) (float64, error) {
	d, err := HammingBits(a, b)
	if err != nil {
		return 0, err
	}
	return float64(d) / float64(a.n), nil
}

// HammingBits 返回两个等长指纹之间不同的位数。
func HammingBits(a, b Fingerprint) (int, error) {
	if a.n == 0 || b.n == 0 {
		return 0, &InvalidInputError{Op: "distance", Reason: "指纹为空"}
	}
	if a.n != b.n {
		return 0, &InvalidInputError{Op: "distance", Reason: fmt.Sprintf("位长不一致：%d vs %d", a.n, b.n)}
	}
	return xorCount(a, b), nil
}
