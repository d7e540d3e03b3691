package tts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
)

// SherpaConfig 是离线 VITS 韩语模型的文件位置。
type SherpaConfig struct {
	Model      string
	Lexicon    string
	Tokens     string
	DataDir    string
	DictDir    string
	SpeakerID  int
	NumThreads int
	Provider   string
	Speed      float64
}

// SherpaEngine 在进程内用 sherpa-onnx OfflineTts 合成，不依赖 sidecar。
type SherpaEngine struct {
	mu    sync.Mutex
	tts   *sherpa.OfflineTts
	sid   int
	speed float32
}

var _ core.Synthesizer = (*SherpaEngine)(nil)

// NewSherpaEngine 加载模型。
func NewSherpaEngine(cfg SherpaConfig) (*SherpaEngine, error) {
	if cfg.Model == "" || cfg.Tokens == "" {
		return nil, errors.New("sherpa 引擎需要 model 和 tokens 路径")
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 2
	}
	if cfg.Provider == "" {
		cfg.Provider = "cpu"
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}

	config := sherpa.OfflineTtsConfig{
		Model: sherpa.OfflineTtsModelConfig{
			Vits: sherpa.OfflineTtsVitsModelConfig{
				Model:       cfg.Model,
				Lexicon:     cfg.Lexicon,
				Tokens:      cfg.Tokens,
				DataDir:     cfg.DataDir,
				DictDir:     cfg.DictDir,
				NoiseScale:  0.667,
				NoiseScaleW: 0.8,
				LengthScale: 1.0,
			},
			NumThreads: cfg.NumThreads,
			Provider:   cfg.Provider,
		},
		MaxNumSentences: 1,
	}

	t := sherpa.NewOfflineTts(&config)
	if t == nil {
		return nil, fmt.Errorf("创建 sherpa-onnx 离线 TTS 失败，模型: %s", cfg.Model)
	}

	logger.Infof("[tts] sherpa-onnx 离线 TTS 已加载: model=%s sid=%d threads=%d", cfg.Model, cfg.SpeakerID, cfg.NumThreads)
	return &SherpaEngine{tts: t, sid: cfg.SpeakerID, speed: float32(cfg.Speed)}, nil
}

// Synthesize 合成文本。voice 为数字时作为说话人 ID，否则使用配置的 ID。
func (s *SherpaEngine) Synthesize(ctx context.Context, text string, lang core.Language, voice string) (core.Waveform, error) {
	if err := ctx.Err(); err != nil {
		return core.Waveform{}, err
	}
	sid := s.sid
	if voice != "" {
		if n, err := strconv.Atoi(voice); err == nil {
			sid = n
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tts == nil {
		return core.Waveform{}, errors.New("sherpa 引擎已关闭")
	}

	logger.Debugf("[tts] sherpa: 正在合成 %d 个字符，sid=%d", len([]rune(text)), sid)
	generated := s.tts.Generate(text, sid, s.speed)
	if generated == nil || len(generated.Samples) == 0 {
		return core.Waveform{}, errors.New("sherpa-onnx 未生成音频")
	}
	return core.Waveform{Samples: generated.Samples, SampleRate: generated.SampleRate}, nil
}

// Close 释放模型。
func (s *SherpaEngine) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tts != nil {
		sherpa.DeleteOfflineTts(s.tts)
		s.tts = nil
		logger.Info("[tts] sherpa-onnx 离线 TTS 已关闭")
	}
	return nil
}
