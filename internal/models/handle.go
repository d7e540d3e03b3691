package models

import (
	"context"

	"github.com/iabetor/accentts/internal/core"
)

// SynthesizerHandle 串行化对合成模型的调用。
type SynthesizerHandle struct {
	model core.Synthesizer
	lock  *fifoLock
}

var _ core.Synthesizer = (*SynthesizerHandle)(nil)

// Synthesize 排队等待模型空闲后执行合成。排队期间 ctx 结束则不执行。
func (h *SynthesizerHandle) Synthesize(ctx context.Context, text string, lang core.Language, voice string) (core.Waveform, error) {
	if err := h.lock.Lock(ctx); err != nil {
		return core.Waveform{}, err
	}
	defer h.lock.Unlock()
	return h.model.Synthesize(ctx, text, lang, voice)
}

// ConverterHandle 串行化对音色转换模型的调用，提取音色和转换共用同一把锁。
type ConverterHandle struct {
	model core.Converter
	lock  *fifoLock
}

var _ core.Converter = (*ConverterHandle)(nil)

func (h *ConverterHandle) ExtractEmbedding(ctx context.Context, ref core.Waveform) (*core.Embedding, error) {
	if err := h.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer h.lock.Unlock()
	return h.model.ExtractEmbedding(ctx, ref)
}

func (h *ConverterHandle) Convert(ctx context.Context, src core.Waveform, target *core.Embedding) (core.Waveform, error) {
	if err := h.lock.Lock(ctx); err != nil {
		return core.Waveform{}, err
	}
	defer h.lock.Unlock()
	return h.model.Convert(ctx, src, target)
}

// SampleRate 不涉及推理，无需加锁。
func (h *ConverterHandle) SampleRate() int {
	return h.model.SampleRate()
}
