package app

import (
	"fmt"
	"math"

	"github.com/John-Robertt/reposweep/internal/phash"
)

// DefaultThreshold 是相似度阈值的默认值（相同位数占比 >= 0.9 视为同一内容）。
const DefaultThreshold = 0.9

// 阈值换算成最大距离后做浮点比较的容差（例如 1-0.9 != 0.1）。
const distanceEpsilon = 1e-9

// Scorer 判断两枚指纹是否为“同一内容”：distance <= 1 - threshold。
//
// Scorer 是纯计算：无 I/O、无共享可变状态，可并发使用。
type Scorer struct {
	threshold float64
	dist      phash.Distance
}

// NewScorer 校验阈值（必须在 [0,1]）并绑定距离函数；dist 为 nil 时使用归一化汉明距离。
func NewScorer(threshold float64, dist phash.Distance) (Scorer, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return Scorer{}, &phash.InvalidInputError{Op: "threshold", Reason: fmt.Sprintf("%v 超出 [0,1]", threshold)}
	}
	if dist == nil {
		dist = phash.Hamming{}
	}
	return Scorer{threshold: threshold, dist: dist}, nil
}

func (s Scorer) Threshold() float64 { return s.threshold }

// MaxDistance 是判定为重复所允许的最大距离。
func (s Scorer) MaxDistance() float64 { return 1 - s.threshold }

// Compare 返回两枚指纹的距离，以及是否判定为重复。
func (s Scorer) Compare(a, b phash.Fingerprint) (float64, bool, error) {
	dist := s.dist
	if dist == nil {
		dist = phash.Hamming{}
	}
	d, err := dist.Distance(a, b)
	if err != nil {
		return 0, false, err
	}
	return d, d <= s.MaxDistance()+distanceEpsilon, nil
}
