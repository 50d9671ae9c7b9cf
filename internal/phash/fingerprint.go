package phash

import (
	"encoding/hex"
	"fmt"
	"math/bits"
	"strings"
)

// Fingerprint 是定长位向量（感知哈希的结果），构造后不可变。
//
// 位序约定：第 0 位是十六进制/二进制文本表示的最高位（与常见 pHash 工具的输出一致）。
// 不变量：n 之后的填充位恒为 0，因此 XOR + popcount 可以直接得到汉明距离。
type Fingerprint struct {
	words []uint64
	n     int
}

// New 由布尔切片构造指纹；bits[i]==true 表示第 i 位为 1。
func New(bits []bool) Fingerprint {
	fp := Fingerprint{
		words: make([]uint64, (len(bits)+63)/64),
		n:     len(bits),
	}
	for i, b := range bits {
		if b {
			fp.words[i/64] |= 1 << (63 - uint(i%64))
		}
	}
	return fp
}

// FromUint64 用 v 的低 n 位构造指纹（高位在前）。n 必须在 [1, 64]。
func FromUint64(v uint64, n int) (Fingerprint, error) {
	if n < 1 || n > 64 {
		return Fingerprint{}, &InvalidInputError{Op: "FromUint64", Reason: fmt.Sprintf("位长 %d 超出 [1,64]", n)}
	}
	if n < 64 && v>>uint(n) != 0 {
		return Fingerprint{}, &InvalidInputError{Op: "FromUint64", Reason: fmt.Sprintf("数值 %#x 超出 %d 位", v, n)}
	}
	return Fingerprint{words: []uint64{v << uint(64-n)}, n: n}, nil
}

// ParseBits 解析形如 "0101" 的二进制文本。
func ParseBits(s string) (Fingerprint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Fingerprint{}, &InvalidInputError{Op: "ParseBits", Reason: "空字符串"}
	}
	out := make([]bool, len(s))
	for i, r := range s {
		switch r {
		case '0':
		case '1':
			out[i] = true
		default:
			return Fingerprint{}, &InvalidInputError{Op: "ParseBits", Reason: fmt.Sprintf("非法字符 %q", r)}
		}
	}
	return New(out), nil
}

// ParseHex 解析十六进制文本；位长为 4*len(s)。
func ParseHex(s string) (Fingerprint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return Fingerprint{}, &InvalidInputError{Op: "ParseHex", Reason: "空字符串"}
	}
	padded := s
	if len(padded)%2 == 1 {
		padded += "0"
	}
	raw, err := hex.DecodeString(padded)
	if err != nil {
		return Fingerprint{}, &InvalidInputError{Op: "ParseHex", Reason: err.Error()}
	}

	n := 4 * len(s)
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = raw[i/8]&(0x80>>uint(i%8)) != 0
	}
	return New(out), nil
}

// Parse 解析指纹文本：前缀 "0b" 为二进制，否则按十六进制（可带 "0x"）。
func Parse(s string) (Fingerprint, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0b") {
		return ParseBits(s[2:])
	}
	return ParseHex(s)
}

// Len 返回位长。
func (f Fingerprint) Len() int { return f.n }

// IsZero 表示“没有指纹”（零值）；全 0 位的指纹不是 zero。
func (f Fingerprint) IsZero() bool { return f.n == 0 }

// Bit 返回第 i 位；越界返回 false。
func (f Fingerprint) Bit(i int) bool {
	if i < 0 || i >= f.n {
		return false
	}
	return f.words[i/64]&(1<<(63-uint(i%64))) != 0
}

// OnesCount 返回置 1 的位数。
func (f Fingerprint) OnesCount() int {
	c := 0
	for _, w := range f.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Equal 判断两个指纹位长与内容都相同。
func (f Fingerprint) Equal(o Fingerprint) bool {
	if f.n != o.n {
		return false
	}
	for i := range f.words {
		if f.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// Hex 返回十六进制文本；位长不是 4 的倍数时末尾按 0 补齐。
func (f Fingerprint) Hex() string {
	if f.n == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow((f.n + 3) / 4)
	for i := 0; i < f.n; i += 4 {
		var nib byte
		for j := 0; j < 4; j++ {
			nib <<= 1
			if f.Bit(i + j) {
				nib |= 1
			}
		}
		sb.WriteByte("0123456789abcdef"[nib])
	}
	return sb.String()
}

// Bits 返回 "0101" 形式的二进制文本。
func (f Fingerprint) Bits() string {
	var sb strings.Builder
	sb.Grow(f.n)
	for i := 0; i < f.n; i++ {
		if f.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// String 返回可被 Parse 还原的文本：位长是 4 的倍数时为十六进制，否则为 "0b" 二进制。
func (f Fingerprint) String() string {
	if f.n%4 == 0 {
		return f.Hex()
	}
	return "0b" + f.Bits()
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(b []byte) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		*f = Fingerprint{}
		return nil
	}
	fp, err := Parse(string(b))
	if err != nil {
		return err
	}
	*f = fp
	return nil
}

func xorCount(a, b Fingerprint) int {
	c := 0
	for i := range a.words {
		c += bits.OnesCount64(a.words[i] ^ b.words[i])
	}
	return c
}
