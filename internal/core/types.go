// Package core 定义流水线各组件共享的数据类型、错误类别和模型接口。
package core

import (
	"context"
	"time"
)

// Language 是合成语言标签。当前只支持韩语。
type Language string

const (
	// LanguageKorean 韩语，与 MeloTTS 的语言标签一致。
	LanguageKorean Language = "KR"
)

// Supported 判断语言是否在支持的枚举内。
func (l Language) Supported() bool {
	switch l {
	case LanguageKorean:
		return true
	}
	return false
}

// Waveform 是单声道音频，样本归一化到 [-1.0, 1.0]。
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Duration 返回音频时长。
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / float64(w.SampleRate) * float64(time.Second))
}

// Empty 判断是否没有可用的音频数据。
func (w Waveform) Empty() bool {
	return len(w.Samples) == 0 || w.SampleRate <= 0
}

// Embedding 是参考音色向量。创建后不可修改，按指针在请求间共享。
type Embedding struct {
	Vector []float32
	// Aux 保存转换模型需要的其他条件张量（展平后），可为空。
	Aux map[string][]float32
	// Source 记录生成该向量的参考音频路径。
	Source string
}

// Dim 返回向量维度。
func (e *Embedding) Dim() int {
	if e == nil {
		return 0
	}
	return len(e.Vector)
}

// Synthesizer 是文本转语音模型的调用契约。
type Synthesizer interface {
	// Synthesize 用内置默认音色合成文本，返回模型原生采样率的音频。
	Synthesize(ctx context.Context, text string, lang Language, voice string) (Waveform, error)
}

// Converter 是音色转换模型的调用契约。
type Converter interface {
	// ExtractEmbedding 从参考音频提取音色向量。
	ExtractEmbedding(ctx context.Context, ref Waveform) (*Embedding, error)
	// Convert 把源音频的音色转换为目标向量对应的音色，保留语言内容。
	Convert(ctx context.Context, src Waveform, target *Embedding) (Waveform, error)
	// SampleRate 返回模型期望的输入采样率。
	SampleRate() int
}

// Encoder 把最终音频编码为可直接返回给浏览器的字节流。
type Encoder interface {
	Encode(ctx context.Context, w Waveform) ([]byte, error)
}
