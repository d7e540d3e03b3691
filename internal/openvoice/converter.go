// Package openvoice 实现基于 OpenVoice V2 的音色转换，模型运行在 sidecar 中。
package openvoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
	"github.com/iabetor/accentts/internal/sidecar"
)

// watermark 是 OpenVoice 在转换结果中嵌入的水印消息。
const watermark = "@MyShell"

// Backend 是 Converter 依赖的 sidecar 能力。
type Backend interface {
	Load(ctx context.Context, req sidecar.LoadRequest) error
	Embedding(ctx context.Context, ref core.Waveform) ([]float32, error)
	Convert(ctx context.Context, req sidecar.ConvertRequest) (core.Waveform, error)
}

// Options 配置转换器。
type Options struct {
	Root          string
	SourceSpeaker string
	// SourceSE 显式指定的源说话人音色文件，优先于 SourceSpeaker。
	SourceSE   string
	Device     string
	SampleRate int
}

// Converter 实现 core.Converter。
type Converter struct {
	backend    Backend
	layout     *Layout
	sampleRate int
}

var _ core.Converter = (*Converter)(nil)

// New 检查模型文件并通知 sidecar 加载转换模型，任何失败都是 ModelLoadError。
func New(ctx context.Context, backend Backend, opts Options) (*Converter, error) {
	layout, err := Discover(opts.Root, opts.SourceSpeaker, opts.SourceSE)
	if err != nil {
		return nil, err
	}

	device := opts.Device
	if device == "" {
		device = "cpu"
	}
	err = backend.Load(ctx, sidecar.LoadRequest{
		Model:          "openvoice",
		Device:         device,
		ConfigPath:     layout.ConverterConfig,
		CheckpointPath: layout.ConverterCheckpoint,
	})
	if err != nil {
		return nil, core.E(core.KindModelLoad, "openvoice", fmt.Errorf("加载音色转换模型失败: %w", err))
	}

	rate := opts.SampleRate
	if rate <= 0 {
		rate = 22050
	}

	logger.Infof("[openvoice] 音色转换模型已加载 (device=%s, source=%s, %d Hz)", device, layout.SourceSE, rate)
	return &Converter{backend: backend, layout: layout, sampleRate: rate}, nil
}

// SampleRate 返回模型期望的输入采样率。
func (c *Converter) SampleRate() int { return c.sampleRate }

// ExtractEmbedding 从参考音频提取目标音色。
func (c *Converter) ExtractEmbedding(ctx context.Context, ref core.Waveform) (*core.Embedding, error) {
	vec, err := c.backend.Embedding(ctx, ref)
	if err != nil {
		return nil, core.E(core.KindEmbeddingExtraction, "openvoice", err)
	}
	return &core.Embedding{Vector: vec}, nil
}

// Convert 把源音频从默认说话人音色转换为目标音色。
func (c *Converter) Convert(ctx context.Context, src core.Waveform, target *core.Embedding) (core.Waveform, error) {
	if target == nil || len(target.Vector) == 0 {
		return core.Waveform{}, core.E(core.KindConversion, "openvoice", errors.New("目标音色为空"))
	}
	out, err := c.backend.Convert(ctx, sidecar.ConvertRequest{
		Audio:        src,
		SourceSEPath: c.layout.SourceSE,
		TargetSE:     target.Vector,
		Message:      watermark,
	})
	if err != nil {
		return core.Waveform{}, core.E(core.KindConversion, "openvoice", err)
	}
	return out, nil
}
