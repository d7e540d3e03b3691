// Package models 管理进程内唯一的合成模型和音色转换模型。
//
// 模型在首次使用（或 Preload）时构建，之后一直复用；构建失败会被记住，
// 后续调用直接返回同一个 ModelLoadError，不会自动重试。
// 每个模型由一个 handle 持有，handle 上的推理按到达顺序串行执行。
package models

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
)

// SynthesizerFactory 构建合成模型。
type SynthesizerFactory func(ctx context.Context) (core.Synthesizer, error)

// ConverterFactory 构建音色转换模型。
type ConverterFactory func(ctx context.Context) (core.Converter, error)

// lazy 保存一次性构建的结果，包括失败。
type lazy[T any] struct {
	once sync.Once
	mu   sync.Mutex
	done bool
	val  T
	err  error
}

func (l *lazy[T]) get(ctx context.Context, name string, build func(context.Context) (T, error)) (T, error) {
	l.once.Do(func() {
		start := time.Now()
		// 构建结果被所有请求共享，不受首个调用者取消的影响
		val, err := build(context.WithoutCancel(ctx))
		if err != nil {
			if core.KindOf(err) != core.KindModelLoad {
				err = core.E(core.KindModelLoad, name, err)
			}
			logger.Errorf("[models] %s 加载失败: %v", name, err)
		} else {
			logger.Infof("[models] %s 已加载 (%v)", name, time.Since(start).Round(time.Millisecond))
		}
		l.mu.Lock()
		l.val, l.err, l.done = val, err, true
		l.mu.Unlock()
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.err
}

func (l *lazy[T]) peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.done && l.err == nil
}

// Registry 持有两个模型 handle。
type Registry struct {
	newSynth SynthesizerFactory
	newConv  ConverterFactory

	synth lazy[*SynthesizerHandle]
	conv  lazy[*ConverterHandle]
}

// NewRegistry 创建注册表，此时不加载任何模型。
func NewRegistry(newSynth SynthesizerFactory, newConv ConverterFactory) *Registry {
	return &Registry{newSynth: newSynth, newConv: newConv}
}

// Synthesizer 返回合成模型 handle，首次调用时构建。
func (r *Registry) Synthesizer(ctx context.Context) (*SynthesizerHandle, error) {
	return r.synth.get(ctx, "synthesizer", func(ctx context.Context) (*SynthesizerHandle, error) {
		if r.newSynth == nil {
			return nil, fmt.Errorf("未配置合成模型")
		}
		m, err := r.newSynth(ctx)
		if err != nil {
			return nil, err
		}
		return &SynthesizerHandle{model: m, lock: newFIFOLock()}, nil
	})
}

// Converter 返回音色转换模型 handle，首次调用时构建。
func (r *Registry) Converter(ctx context.Context) (*ConverterHandle, error) {
	return r.conv.get(ctx, "converter", func(ctx context.Context) (*ConverterHandle, error) {
		if r.newConv == nil {
			return nil, fmt.Errorf("未配置音色转换模型")
		}
		m, err := r.newConv(ctx)
		if err != nil {
			return nil, err
		}
		return &ConverterHandle{model: m, lock: newFIFOLock()}, nil
	})
}

// Preload 在进程启动时并发构建两个模型，返回第一个失败。
func (r *Registry) Preload(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := r.Synthesizer(gctx)
		return err
	})
	g.Go(func() error {
		_, err := r.Converter(gctx)
		return err
	})
	return g.Wait()
}

// Close 释放已构建且实现了 io.Closer 的模型，应在进程退出时调用。
func (r *Registry) Close() error {
	var firstErr error
	closeModel := func(name string, m interface{}) {
		c, ok := m.(io.Closer)
		if !ok {
			return
		}
		if err := c.Close(); err != nil {
			logger.Warnf("[models] 关闭 %s 失败: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if h, ok := r.synth.peek(); ok {
		closeModel("synthesizer", h.model)
	}
	if h, ok := r.conv.peek(); ok {
		closeModel("converter", h.model)
	}
	return firstErr
}
