// Package reference 负责定位并加载目标口音的参考音频。
package reference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iabetor/accentts/internal/audio"
	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
)

// 参考音频时长的默认范围。过短提取不出稳定音色，过长浪费推理时间。
const (
	DefaultMinDuration = time.Second
	DefaultMaxDuration = 12 * time.Second
)

// Voice 是解析出的参考音频，以绝对路径作为身份。
type Voice struct {
	Path     string
	Waveform core.Waveform
	// Size 和 ModTime 是解析时文件的状态，用于判断持久化的音色是否过期。
	Size    int64
	ModTime time.Time
}

// Options 配置解析器。
type Options struct {
	// Candidates 按优先级排列的默认参考音频路径。
	Candidates  []string
	MinDuration time.Duration
	MaxDuration time.Duration
	// Decode 读取并解码音频文件，默认 audio.DecodeFile。
	Decode func(path string) (core.Waveform, error)
}

// Resolver 按优先级查找第一个可用的参考音频，可并发使用。
// 同一个 override 只在首次成功时解析一次，之后返回同一个 Voice；失败不缓存。
type Resolver struct {
	candidates []string
	minDur     time.Duration
	maxDur     time.Duration
	decode     func(path string) (core.Waveform, error)

	mu       sync.RWMutex
	resolved map[string]*Voice
	group    singleflight.Group
}

// New 创建解析器。
func New(opts Options) *Resolver {
	r := &Resolver{
		minDur: opts.MinDuration,
		maxDur: opts.MaxDuration,
		decode:   opts.Decode,
		resolved: make(map[string]*Voice),
	}
	if r.minDur <= 0 {
		r.minDur = DefaultMinDuration
	}
	if r.maxDur <= 0 {
		r.maxDur = DefaultMaxDuration
	}
	if r.decode == nil {
		r.decode = audio.DecodeFile
	}
	for _, c := range opts.Candidates {
		if c = strings.TrimSpace(c); c != "" {
			r.candidates = append(r.candidates, c)
		}
	}
	return r
}

// Resolve 依次尝试 override 和默认候选，返回第一个存在、可解码且时长合适的参考音频。
// 全部失败时：有文件解码失败则返回 ReferenceDecodeError，否则返回 ReferenceNotFound。
func (r *Resolver) Resolve(override string) (*Voice, error) {
	key := strings.TrimSpace(override)

	r.mu.RLock()
	v, ok := r.resolved[key]
	r.mu.RUnlock()
	if ok {
		return v, nil
	}

	res, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.RLock()
		v, ok := r.resolved[key]
		r.mu.RUnlock()
		if ok {
			return v, nil
		}
		v, err := r.resolve(key)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.resolved[key] = v
		r.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Voice), nil
}

// Reset 清空已解析的结果，返回被清掉的参考音频路径。
func (r *Resolver) Reset() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(r.resolved))
	var paths []string
	for k, v := range r.resolved {
		if !seen[v.Path] {
			seen[v.Path] = true
			paths = append(paths, v.Path)
		}
		delete(r.resolved, k)
	}
	return paths
}

func (r *Resolver) resolve(override string) (*Voice, error) {
	candidates := r.candidates
	if override != "" {
		candidates = append([]string{override}, r.candidates...)
	}

	var decodeErrs []error
	for _, c := range candidates {
		path, err := filepath.Abs(c)
		if err != nil {
			path = filepath.Clean(c)
		}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			logger.Debugf("[reference] 跳过不存在的参考音频: %s", path)
			continue
		}

		w, err := r.decode(path)
		if err != nil {
			logger.Warnf("[reference] 参考音频 %s 解码失败: %v", path, err)
			decodeErrs = append(decodeErrs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if w.Empty() {
			decodeErrs = append(decodeErrs, fmt.Errorf("%s: 没有音频数据", path))
			continue
		}
		if d := w.Duration(); d < r.minDur || d > r.maxDur {
			logger.Warnf("[reference] 参考音频 %s 时长 %.2fs 超出范围 [%v, %v]", path, d.Seconds(), r.minDur, r.maxDur)
			decodeErrs = append(decodeErrs, fmt.Errorf("%s: 时长 %.2fs 超出范围 [%v, %v]", path, d.Seconds(), r.minDur, r.maxDur))
			continue
		}

		logger.Debugf("[reference] 使用参考音频 %s (%.2fs, %d Hz)", path, w.Duration().Seconds(), w.SampleRate)
		return &Voice{Path: path, Waveform: w, Size: info.Size(), ModTime: info.ModTime()}, nil
	}

	if len(decodeErrs) > 0 {
		return nil, core.E(core.KindReferenceDecode, "reference", errors.Join(decodeErrs...))
	}
	return nil, core.Errorf(core.KindReferenceNotFound, "reference",
		"没有可用的参考音频，已检查: %s", strings.Join(candidates, ", "))
}
