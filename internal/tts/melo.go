package tts

import (
	"context"
	"fmt"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
	"github.com/iabetor/accentts/internal/sidecar"
)

// MeloBackend 是 MeloEngine 依赖的 sidecar 能力。
type MeloBackend interface {
	Load(ctx context.Context, req sidecar.LoadRequest) error
	Synthesize(ctx context.Context, req sidecar.SynthesizeRequest) (core.Waveform, error)
}

// MeloEngine 调用 sidecar 中的 MeloTTS 韩语模型。
type MeloEngine struct {
	backend MeloBackend
	speaker string
	speed   float64
}

var _ core.Synthesizer = (*MeloEngine)(nil)

// NewMeloEngine 让 sidecar 加载 MeloTTS 韩语模型。
// speaker 为默认说话人，MeloTTS 韩语模型只有 "KR"。
func NewMeloEngine(ctx context.Context, backend MeloBackend, device, speaker string, speed float64) (*MeloEngine, error) {
	if speaker == "" {
		speaker = string(core.LanguageKorean)
	}
	if speed <= 0 {
		speed = 1.0
	}
	err := backend.Load(ctx, sidecar.LoadRequest{Model: "melo", Language: string(core.LanguageKorean), Device: device})
	if err != nil {
		return nil, fmt.Errorf("加载 MeloTTS 失败: %w", err)
	}
	logger.Infof("[tts] MeloTTS 已加载 (speaker=%s, device=%s)", speaker, device)
	return &MeloEngine{backend: backend, speaker: speaker, speed: speed}, nil
}

// Synthesize 合成文本。voice 为空时使用默认说话人。
func (m *MeloEngine) Synthesize(ctx context.Context, text string, lang core.Language, voice string) (core.Waveform, error) {
	if voice == "" {
		voice = m.speaker
	}
	logger.Debugf("[tts] melo: 正在合成 %d 个字符，speaker=%s", len([]rune(text)), voice)
	return m.backend.Synthesize(ctx, sidecar.SynthesizeRequest{
		Text:     text,
		Language: string(lang),
		Speaker:  voice,
		Speed:    m.speed,
	})
}
