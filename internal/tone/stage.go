// Package tone 把合成音频的音色转换为参考说话人的音色。
package tone

import (
	"context"
	"errors"

	"github.com/iabetor/accentts/internal/audio"
	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
	"github.com/iabetor/accentts/internal/models"
)

// ConverterSource 提供音色转换模型 handle，通常是 *models.Registry。
type ConverterSource interface {
	Converter(ctx context.Context) (*models.ConverterHandle, error)
}

// Stage 是音色转换阶段。
type Stage struct {
	source ConverterSource
}

// NewStage 创建音色转换阶段。
func NewStage(source ConverterSource) *Stage {
	return &Stage{source: source}
}

// Convert 把 src 转换为 emb 对应的音色。采样率与模型不一致时先重采样。
func (s *Stage) Convert(ctx context.Context, src core.Waveform, emb *core.Embedding) (core.Waveform, error) {
	if emb == nil || len(emb.Vector) == 0 {
		return core.Waveform{}, core.E(core.KindConversion, "convert", errors.New("缺少目标音色"))
	}
	if src.Empty() {
		return core.Waveform{}, core.E(core.KindConversion, "convert", errors.New("源音频为空"))
	}

	h, err := s.source.Converter(ctx)
	if err != nil {
		return core.Waveform{}, core.Ensure(core.KindModelLoad, "convert", err)
	}

	if rate := h.SampleRate(); rate > 0 && src.SampleRate != rate {
		logger.Debugf("[tone] 重采样 %d Hz → %d Hz", src.SampleRate, rate)
		src = audio.Resample(src, rate)
	}

	out, err := h.Convert(ctx, src, emb)
	if err != nil {
		return core.Waveform{}, core.Ensure(core.KindConversion, "convert", err)
	}
	if out.Empty() {
		return core.Waveform{}, core.E(core.KindConversion, "convert", errors.New("转换结果为空"))
	}

	logger.Debugf("[tone] 音色转换完成: %.2fs, %d Hz", out.Duration().Seconds(), out.SampleRate)
	return out, nil
}
