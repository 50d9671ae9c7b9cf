package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/reposweep/internal/logging"
	"github.com/John-Robertt/reposweep/internal/phash"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingSource 表示 CLI 与配置文件都没有给出 source。
	ErrCodeMissingSource = "config_missing_source"
)

const (
	DefaultThreshold     = 0.9
	DefaultMode          = "duplicates"
	DefaultAlgorithm     = "dct"
	DefaultHashSize      = phash.DefaultSize
	DefaultThumbnailSize = 256
	// DefaultConcurrency 是哈希阶段并发的内置默认值。
	DefaultConcurrency = 4
	// DefaultDelay 是两次删除之间的间隔（避免触发平台限流）。
	DefaultDelay       = 2 * time.Second
	DefaultExecTimeout = 60 * time.Second
)

// FileNames 是工作目录下自动发现的配置文件名（按顺序，命中即停）。
var FileNames = []string{"reposweep.json", "reposweep.toml"}

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	// ConfigPath 非空时必须存在。
	ConfigPath string

	Source string

	Threshold    float64
	ThresholdSet bool

	Mode    string
	ModeSet bool

	Apply    bool
	ApplySet bool

	LogLevel string
}

// FileConfig 对应 reposweep.json / reposweep.toml 的解析结构。
type FileConfig struct {
	Source        string          `json:"source" toml:"source"`
	Threshold     *float64        `json:"threshold" toml:"threshold"`
	Mode          string          `json:"mode" toml:"mode"`
	Apply         *bool           `json:"apply" toml:"apply"`
	Hash          *HashConfig     `json:"hash" toml:"hash"`
	ThumbnailSize int             `json:"thumbnail_size" toml:"thumbnail_size"`
	Concurrency   int             `json:"concurrency" toml:"concurrency"`
	Proxy         *ProxyConfig    `json:"proxy" toml:"proxy"`
	DelayMS       *int            `json:"delay_ms" toml:"delay_ms"`
	MaxVideos     int             `json:"max_videos" toml:"max_videos"`
	KeepIDs       []string        `json:"keep_ids" toml:"keep_ids"`
	Executor      *ExecutorConfig `json:"executor" toml:"executor"`
	Log           *LogConfig      `json:"log" toml:"log"`
}

type HashConfig struct {
	Algorithm string `json:"algorithm" toml:"algorithm"`
	Size      int    `json:"size" toml:"size"`
}

type ProxyConfig struct {
	URL string `json:"url" toml:"url"`
}

type ExecutorConfig struct {
	Command    []string `json:"command" toml:"command"`
	TimeoutSec int      `json:"timeout_sec" toml:"timeout_sec"`
}

type LogConfig struct {
	Level  string `json:"level" toml:"level"`
	Format string `json:"format" toml:"format"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 为实际读取的配置文件；未使用配置文件时为空。
	ConfigPath string
	// WorkDir 是 cache/ 与 report 所在目录：配置文件所在目录，或 cwd。
	WorkDir string

	Source    string
	Threshold float64
	Mode      string
	Apply     bool

	HashAlgorithm string
	HashSize      int
	ThumbnailSize int

	Concurrency int
	ProxyURL    string
	Delay       time.Duration
	MaxVideos   int
	KeepIDs     []string

	ExecutorCommand []string
	ExecutorTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingSource:
		if e.Path == "" {
			return fmt.Sprintf("%s：未指定 source（命令行参数或配置文件 source 字段）", e.Code)
		}
		return fmt.Sprintf("%s：配置文件 %q 缺少 source，且命令行未指定", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在，工作目录为其所在目录
// 2) 否则依次尝试 <cwd>/reposweep.json、<cwd>/reposweep.toml（可选），工作目录为 cwd
//
// 覆盖优先级（固定）：CLI > 配置文件 > 默认值。
// 配置文件中的相对路径以配置文件所在目录为基准；CLI 的相对路径以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		workDir = cwdAbs
	)

	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		workDir = filepath.Dir(cfgPath)
	} else {
		for _, name := range FileNames {
			p := filepath.Join(cwdAbs, name)
			f, exists, err := readFileConfig(p)
			if err != nil {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
			}
			if exists {
				cfgPath, fc = p, f
				break
			}
		}
	}

	// source：CLI > config
	source := ""
	switch {
	case strings.TrimSpace(cli.Source) != "":
		source = absCleanFrom(cwdAbs, cli.Source)
	case strings.TrimSpace(fc.Source) != "":
		source = absCleanFrom(workDir, fc.Source)
	default:
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingSource, Path: cfgPath}
	}

	eff, err := merge(cli, fc)
	if err != nil {
		p := cfgPath
		if p == "" {
			p = "<cli>"
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
	}
	eff.ConfigPath = cfgPath
	eff.WorkDir = workDir
	eff.Source = source
	return eff, nil
}

func merge(cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	eff := EffectiveConfig{}

	// threshold：CLI > config > 默认
	eff.Threshold = DefaultThreshold
	if cli.ThresholdSet {
		eff.Threshold = cli.Threshold
	} else if fc.Threshold != nil {
		eff.Threshold = *fc.Threshold
	}
	if math.IsNaN(eff.Threshold) || eff.Threshold < 0 || eff.Threshold > 1 {
		return EffectiveConfig{}, fmt.Errorf("threshold 必须在 [0,1]，实际是 %v", eff.Threshold)
	}

	// mode：CLI > config > 默认
	eff.Mode = DefaultMode
	if cli.ModeSet {
		eff.Mode = cli.Mode
	} else if strings.TrimSpace(fc.Mode) != "" {
		eff.Mode = fc.Mode
	}
	eff.Mode = strings.ToLower(strings.TrimSpace(eff.Mode))
	if eff.Mode != "duplicates" && eff.Mode != "all" {
		return EffectiveConfig{}, fmt.Errorf("mode 只能是 duplicates 或 all，实际是 %q", eff.Mode)
	}

	// apply：CLI > config > 默认 false
	if cli.ApplySet {
		eff.Apply = cli.Apply
	} else if fc.Apply != nil {
		eff.Apply = *fc.Apply
	}

	eff.HashAlgorithm = DefaultAlgorithm
	eff.HashSize = DefaultHashSize
	if fc.Hash != nil {
		if a := strings.TrimSpace(fc.Hash.Algorithm); a != "" {
			eff.HashAlgorithm = strings.ToLower(a)
		}
		if fc.Hash.Size != 0 {
			eff.HashSize = fc.Hash.Size
		}
	}
	h, err := phash.NewHasher(eff.HashAlgorithm, eff.HashSize)
	if err != nil {
		return EffectiveConfig{}, fmt.Errorf("hash 配置无效：%w", err)
	}
	eff.HashAlgorithm = h.Name()

	eff.ThumbnailSize = fc.ThumbnailSize
	switch {
	case eff.ThumbnailSize == 0:
		eff.ThumbnailSize = DefaultThumbnailSize
	case eff.ThumbnailSize < 0:
		return EffectiveConfig{}, fmt.Errorf("thumbnail_size 不能为负数：%d", fc.ThumbnailSize)
	}

	eff.Concurrency = fc.Concurrency
	if eff.Concurrency == 0 {
		eff.Concurrency = DefaultConcurrency
	}
	// 文档约定：范围 [1, 32]；超出截断。
	if eff.Concurrency < 1 {
		eff.Concurrency = 1
	}
	if eff.Concurrency > 32 {
		eff.Concurrency = 32
	}

	if fc.Proxy != nil {
		eff.ProxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if eff.ProxyURL != "" {
		u, err := url.Parse(eff.ProxyURL)
		if err != nil {
			return EffectiveConfig{}, fmt.Errorf("proxy.url 无效：%w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, fmt.Errorf("proxy.url 无效：%q", eff.ProxyURL)
		}
	}

	eff.Delay = DefaultDelay
	if fc.DelayMS != nil {
		if *fc.DelayMS < 0 {
			return EffectiveConfig{}, fmt.Errorf("delay_ms 不能为负数：%d", *fc.DelayMS)
		}
		eff.Delay = time.Duration(*fc.DelayMS) * time.Millisecond
	}

	if fc.MaxVideos < 0 {
		return EffectiveConfig{}, fmt.Errorf("max_videos 不能为负数：%d", fc.MaxVideos)
	}
	eff.MaxVideos = fc.MaxVideos

	for _, id := range fc.KeepIDs {
		if id = strings.TrimSpace(id); id != "" {
			eff.KeepIDs = append(eff.KeepIDs, id)
		}
	}

	eff.ExecutorTimeout = DefaultExecTimeout
	if fc.Executor != nil {
		eff.ExecutorCommand = append([]string(nil), fc.Executor.Command...)
		if len(eff.ExecutorCommand) > 0 && strings.TrimSpace(eff.ExecutorCommand[0]) == "" {
			return EffectiveConfig{}, fmt.Errorf("executor.command[0] 不能为空")
		}
		switch {
		case fc.Executor.TimeoutSec < 0:
			return EffectiveConfig{}, fmt.Errorf("executor.timeout_sec 不能为负数：%d", fc.Executor.TimeoutSec)
		case fc.Executor.TimeoutSec > 0:
			eff.ExecutorTimeout = time.Duration(fc.Executor.TimeoutSec) * time.Second
		}
	}
	if eff.Apply && len(eff.ExecutorCommand) == 0 {
		return EffectiveConfig{}, fmt.Errorf("apply=true 需要配置 executor.command")
	}

	if fc.Log != nil {
		eff.LogLevel = strings.TrimSpace(fc.Log.Level)
		eff.LogFormat = strings.TrimSpace(fc.Log.Format)
	}
	if strings.TrimSpace(cli.LogLevel) != "" {
		eff.LogLevel = strings.TrimSpace(cli.LogLevel)
	}
	if _, err := logging.ParseLevel(eff.LogLevel); err != nil {
		return EffectiveConfig{}, err
	}
	switch strings.ToLower(eff.LogFormat) {
	case "", "console", "text", "json":
	default:
		return EffectiveConfig{}, fmt.Errorf("log.format 只能是 console 或 json，实际是 %q", eff.LogFormat)
	}

	return eff, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析配置文件（按扩展名选择 JSON 或 TOML）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(b, &fc)
	default:
		err = json.Unmarshal(b, &fc)
	}
	if err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
