package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
	"github.com/iabetor/accentts/internal/models"
)

// SynthesizerSource 提供合成模型 handle，通常是 *models.Registry。
type SynthesizerSource interface {
	Synthesizer(ctx context.Context) (*models.SynthesizerHandle, error)
}

// StageOptions 配置合成阶段。
type StageOptions struct {
	Language core.Language
	// Voice 是合成器内置的默认说话人，空表示由引擎决定。
	Voice    string
	MaxRunes int
}

// Stage 把校验后的文本交给合成模型，得到默认音色的韩语音频。
type Stage struct {
	source SynthesizerSource
	opts   StageOptions
}

// NewStage 创建合成阶段。
func NewStage(source SynthesizerSource, opts StageOptions) *Stage {
	if opts.Language == "" {
		opts.Language = core.LanguageKorean
	}
	if opts.MaxRunes <= 0 {
		opts.MaxRunes = DefaultMaxRunes
	}
	return &Stage{source: source, opts: opts}
}

// Validate 只做文本校验，不接触模型。
func (s *Stage) Validate(text string) error {
	return ValidateText(text, s.opts.MaxRunes)
}

// Synthesize 校验、规范化文本后合成。
func (s *Stage) Synthesize(ctx context.Context, text string) (core.Waveform, error) {
	if err := s.Validate(text); err != nil {
		return core.Waveform{}, err
	}
	if !s.opts.Language.Supported() {
		return core.Waveform{}, core.E(core.KindTextValidation, "synthesize", fmt.Errorf("不支持的语言: %s", s.opts.Language))
	}
	text = NormalizeText(text)

	h, err := s.source.Synthesizer(ctx)
	if err != nil {
		return core.Waveform{}, core.Ensure(core.KindModelLoad, "synthesize", err)
	}

	w, err := h.Synthesize(ctx, text, s.opts.Language, s.opts.Voice)
	if err != nil {
		return core.Waveform{}, core.Ensure(core.KindSynthesis, "synthesize", err)
	}
	if w.Empty() {
		return core.Waveform{}, core.E(core.KindSynthesis, "synthesize", errors.New("合成结果为空"))
	}

	logger.Debugf("[tts] 合成完成: %d 个字符 → %.2fs, %d Hz", len([]rune(text)), w.Duration().Seconds(), w.SampleRate)
	return w, nil
}
