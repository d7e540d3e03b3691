package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/accentts/internal/audio"
	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
)

// DefaultEdgeVoice 是 Edge TTS 的韩语女声。
const DefaultEdgeVoice = "ko-KR-SunHiNeural"

// EdgeEngine 使用微软 Edge TTS 合成，
// 通过 edge-tts-go 获取 MP3 音频，再用 go-mp3 解码。
type EdgeEngine struct {
	voice string
}

var _ core.Synthesizer = (*EdgeEngine)(nil)

// NewEdgeEngine 创建指定语音的 Edge TTS 引擎。
func NewEdgeEngine(voice string) *EdgeEngine {
	if voice == "" {
		voice = DefaultEdgeVoice
	}
	return &EdgeEngine{voice: voice}
}

// Synthesize 合成文本。voice 非空时覆盖引擎默认语音。
func (e *EdgeEngine) Synthesize(ctx context.Context, text string, lang core.Language, voice string) (core.Waveform, error) {
	if !lang.Supported() {
		return core.Waveform{}, fmt.Errorf("不支持的语言: %s", lang)
	}
	if voice == "" {
		voice = e.voice
	}
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s", len([]rune(text)), voice)

	comm, err := edge.NewCommunicate(text, edge.WithVoice(voice))
	if err != nil {
		return core.Waveform{}, fmt.Errorf("edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return core.Waveform{}, fmt.Errorf("edge-tts 开始流式合成失败: %w", err)
	}

	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return core.Waveform{}, ctx.Err()
		default:
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	if mp3Buf.Len() == 0 {
		return core.Waveform{}, errors.New("edge-tts 未收到音频数据")
	}

	w, err := audio.DecodeMP3Bytes(mp3Buf.Bytes())
	if err != nil {
		return core.Waveform{}, fmt.Errorf("edge-tts 音频解码失败: %w", err)
	}

	logger.Debugf("[tts] edge-tts: %d 字节 MP3 → %.2fs, %d Hz", mp3Buf.Len(), w.Duration().Seconds(), w.SampleRate)
	return w, nil
}
