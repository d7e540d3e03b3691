// Package vad 使用 sherpa-onnx Silero VAD 去除参考音频中的静音段。
package vad

import (
	"fmt"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/accentts/internal/audio"
	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
)

const (
	sampleRate = 16000
	windowSize = 512
	// 裁剪后语音不足该时长时保留原音频
	minSpeechSeconds = 0.5
)

// Trimmer 只保留参考音频中的语音片段。
type Trimmer struct {
	mu     sync.Mutex
	vad    *sherpa.VoiceActivityDetector
	detect func(samples []float32) [][]float32
}

// NewTrimmer 加载 Silero VAD 模型。threshold 典型值 0.5。
func NewTrimmer(modelPath string, threshold float32) (*Trimmer, error) {
	config := sherpa.VadModelConfig{
		SileroVad: sherpa.SileroVadModelConfig{
			Model:              modelPath,
			Threshold:          threshold,
			MinSilenceDuration: 0.3,
			MinSpeechDuration:  0.1,
			MaxSpeechDuration:  20.0,
			WindowSize:         windowSize,
		},
		SampleRate: sampleRate,
		NumThreads: 1,
		Provider:   "cpu",
	}

	v := sherpa.NewVoiceActivityDetector(&config, float32(30))
	if v == nil {
		return nil, fmt.Errorf("创建语音活动检测器失败，模型: %s", modelPath)
	}
	logger.Infof("[vad] 参考音频静音裁剪已启用: model=%s threshold=%.2f", modelPath, threshold)

	t := &Trimmer{vad: v}
	t.detect = t.segments
	return t, nil
}

// segments 把整段 16 kHz 音频送入 VAD 并取出全部语音片段。
func (t *Trimmer) segments(samples []float32) [][]float32 {
	// Close 之后检测器已释放，按没有语音处理
	if t.vad == nil {
		return nil
	}
	t.vad.Clear()
	for i := 0; i < len(samples); i += windowSize {
		end := i + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		t.vad.AcceptWaveform(samples[i:end])
	}
	t.vad.Flush()

	var out [][]float32
	for !t.vad.IsEmpty() {
		seg := t.vad.Front()
		t.vad.Pop()
		out = append(out, seg.Samples)
	}
	return out
}

// Trim 返回 16 kHz 的语音部分；语音过短时原样返回输入。
func (t *Trimmer) Trim(w core.Waveform) core.Waveform {
	if w.Empty() {
		return w
	}
	in := audio.Resample(w, sampleRate)

	t.mu.Lock()
	segs := t.detect(in.Samples)
	t.mu.Unlock()

	total := 0
	for _, s := range segs {
		total += len(s)
	}
	if float64(total)/sampleRate < minSpeechSeconds {
		logger.Debugf("[vad] 检测到的语音过短 (%.2fs)，使用原始参考音频", float64(total)/sampleRate)
		return w
	}

	speech := make([]float32, 0, total)
	for _, s := range segs {
		speech = append(speech, s...)
	}
	logger.Debugf("[vad] 参考音频 %.2fs → 语音 %.2fs (%d 段)",
		w.Duration().Seconds(), float64(total)/sampleRate, len(segs))
	return core.Waveform{Samples: speech, SampleRate: sampleRate}
}

// Close 释放底层 VAD 资源。
func (t *Trimmer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.vad != nil {
		sherpa.DeleteVoiceActivityDetector(t.vad)
		t.vad = nil
		logger.Info("[vad] 语音活动检测器已关闭")
	}
}
