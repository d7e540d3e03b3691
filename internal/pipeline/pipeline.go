// Package pipeline 把合成、参考音频、音色提取、音色转换和编码串成一次生成请求。
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
	"github.com/iabetor/accentts/internal/reference"
)

// TextSynthesizer 是合成阶段，通常是 *tts.Stage。
type TextSynthesizer interface {
	Validate(text string) error
	Synthesize(ctx context.Context, text string) (core.Waveform, error)
}

// ReferenceResolver 查找参考音频，通常是 *reference.Resolver。
type ReferenceResolver interface {
	Resolve(override string) (*reference.Voice, error)
}

// EmbeddingSource 返回参考音色，通常是 *embedding.Cache。
type EmbeddingSource interface {
	Get(ctx context.Context, voice *reference.Voice) (*core.Embedding, error)
}

// ToneConverter 是音色转换阶段，通常是 *tone.Stage。
type ToneConverter interface {
	Convert(ctx context.Context, src core.Waveform, emb *core.Embedding) (core.Waveform, error)
}

// Deps 是流水线依赖的各阶段。
type Deps struct {
	Synthesis  TextSynthesizer
	Resolver   ReferenceResolver
	Embeddings EmbeddingSource
	Conversion ToneConverter
	Encoder    core.Encoder
}

// Observer 在每次状态变化时被调用。
type Observer func(requestID string, from, to State)

// Option 配置 Pipeline。
type Option func(*Pipeline)

// WithObserver 注册状态变化回调。
func WithObserver(fn Observer) Option {
	return func(p *Pipeline) { p.observer = fn }
}

// Pipeline 执行生成请求。除了各阶段内部共享的模型和音色缓存，请求之间不共享状态。
type Pipeline struct {
	deps     Deps
	observer Observer
}

// New 创建流水线。
func New(deps Deps, opts ...Option) *Pipeline {
	p := &Pipeline{deps: deps}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Generate 把韩语文本转换为带参考口音的 MP3。
// override 非空时优先作为参考音频路径。失败时返回唯一一个 *core.Error，不返回部分结果。
func (p *Pipeline) Generate(ctx context.Context, text, override string) ([]byte, error) {
	id := uuid.NewString()
	log := logger.With("request_id", id)
	start := time.Now()

	sm := NewStateMachine()
	sm.SetOnChange(func(from, to State) {
		log.Debugf("[pipeline] %s → %s", from, to)
		if p.observer != nil {
			p.observer(id, from, to)
		}
	})

	fail := func(kind core.Kind, op string, err error) ([]byte, error) {
		err = core.Ensure(kind, op, err)
		sm.Transition(StateFailed)
		log.Warnf("[pipeline] 生成失败 (%s, %v): %v", core.KindOf(err), time.Since(start).Round(time.Millisecond), err)
		return nil, err
	}

	sm.Transition(StateValidating)
	if err := p.deps.Synthesis.Validate(text); err != nil {
		return fail(core.KindTextValidation, "validate", err)
	}

	sm.Transition(StateSynthesizing)
	src, err := p.deps.Synthesis.Synthesize(ctx, text)
	if err != nil {
		return fail(core.KindSynthesis, "synthesize", err)
	}

	sm.Transition(StateResolvingReference)
	voice, err := p.deps.Resolver.Resolve(override)
	if err != nil {
		return fail(core.KindReferenceNotFound, "reference", err)
	}

	sm.Transition(StateEmbedding)
	emb, err := p.deps.Embeddings.Get(ctx, voice)
	if err != nil {
		return fail(core.KindEmbeddingExtraction, "embedding", err)
	}

	sm.Transition(StateConverting)
	converted, err := p.deps.Conversion.Convert(ctx, src, emb)
	if err != nil {
		return fail(core.KindConversion, "convert", err)
	}

	sm.Transition(StateEncoding)
	mp3, err := p.deps.Encoder.Encode(ctx, converted)
	if err != nil {
		return fail(core.KindEncoding, "encode", err)
	}
	if len(mp3) == 0 {
		return fail(core.KindEncoding, "encode", errors.New("编码结果为空"))
	}

	sm.Transition(StateDone)
	log.Infof("[pipeline] 生成完成: %d 字符, 参考 %s, %.2fs 音频 → %d 字节 MP3 (%v)",
		len([]rune(text)), voice.Path, converted.Duration().Seconds(), len(mp3), time.Since(start).Round(time.Millisecond))
	return mp3, nil
}
