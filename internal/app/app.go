// Package app 按配置组装模型、各处理阶段和流水线，供服务端和命令行工具共用。
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iabetor/accentts/internal/audio"
	"github.com/iabetor/accentts/internal/config"
	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/database"
	"github.com/iabetor/accentts/internal/embedding"
	"github.com/iabetor/accentts/internal/logger"
	"github.com/iabetor/accentts/internal/models"
	"github.com/iabetor/accentts/internal/openvoice"
	"github.com/iabetor/accentts/internal/pipeline"
	"github.com/iabetor/accentts/internal/reference"
	"github.com/iabetor/accentts/internal/sidecar"
	"github.com/iabetor/accentts/internal/tone"
	"github.com/iabetor/accentts/internal/tts"
	"github.com/iabetor/accentts/internal/vad"
)

// App 持有进程级的共享组件。
type App struct {
	Config     *config.Config
	Sidecar    *sidecar.Client
	Registry   *models.Registry
	Embeddings *embedding.Cache
	Resolver   *reference.Resolver
	Encoder    *audio.MP3Encoder
	Pipeline   *pipeline.Pipeline

	trimmer *vad.Trimmer
	db      *database.DB
}

// New 组装所有组件。模型不会在这里加载，需要时调用 Preload。
func New(cfg *config.Config, opts ...pipeline.Option) (*App, error) {
	a := &App{
		Config:  cfg,
		Sidecar: sidecar.New(cfg.OpenVoice.URL, cfg.OpenVoice.Timeout),
	}

	a.Registry = models.NewRegistry(a.newSynthesizer, a.newConverter)

	var cacheOpts []embedding.Option
	if cfg.Reference.VAD.ModelPath != "" {
		t, err := vad.NewTrimmer(cfg.Reference.VAD.ModelPath, cfg.Reference.VAD.Threshold)
		if err != nil {
			return nil, fmt.Errorf("创建参考音频 VAD 失败: %w", err)
		}
		a.trimmer = t
		cacheOpts = append(cacheOpts, embedding.WithTrimmer(t))
	}
	if cfg.Reference.EmbeddingDB != "" {
		db, err := database.Open(cfg.Reference.EmbeddingDB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("打开音色数据库失败: %w", err)
		}
		a.db = db
		cacheOpts = append(cacheOpts, embedding.WithStore(db))
	}
	a.Embeddings = embedding.New(a.extractEmbedding, cacheOpts...)

	// 环境变量指定的参考音频排在默认候选之前，请求里的参考音频又排在它之前。
	candidates := cfg.Reference.Candidates
	if cfg.Reference.Override != "" {
		candidates = append([]string{cfg.Reference.Override}, candidates...)
	}
	a.Resolver = reference.New(reference.Options{
		Candidates:  candidates,
		MinDuration: seconds(cfg.Reference.MinSeconds),
		MaxDuration: seconds(cfg.Reference.MaxSeconds),
	})

	a.Encoder = audio.NewMP3Encoder(audio.EncoderOptions{
		FFmpegPath: cfg.Encoder.FFmpegPath,
		Bitrate:    cfg.Encoder.Bitrate,
		SampleRate: cfg.Encoder.SampleRate,
	})
	if err := a.Encoder.Available(); err != nil {
		logger.Warnf("[app] MP3 编码器不可用，生成请求将失败: %v", err)
	}

	a.Pipeline = pipeline.New(pipeline.Deps{
		Synthesis: tts.NewStage(a.Registry, tts.StageOptions{
			Language: core.LanguageKorean,
			MaxRunes: cfg.TTS.MaxRunes,
		}),
		Resolver:   a.Resolver,
		Embeddings: a.Embeddings,
		Conversion: tone.NewStage(a.Registry),
		Encoder:    a.Encoder,
	}, opts...)

	logger.Infof("[app] 组装完成 (engine=%s, sidecar=%s, openvoice=%s)",
		cfg.TTS.Engine, a.Sidecar.BaseURL(), cfg.OpenVoice.Root)
	return a, nil
}

// Preload 加载两个模型，任一失败即返回。
func (a *App) Preload(ctx context.Context) error {
	return a.Registry.Preload(ctx)
}

// Ready 检查 sidecar 是否可用，用于健康检查。
func (a *App) Ready(ctx context.Context) error {
	return a.Sidecar.Health(ctx)
}

// ReloadReference 清空已解析的参考音频及其音色向量，下次请求重新读取文件。
// 持久化的音色不删除，文件未变时仍会命中。
func (a *App) ReloadReference() []string {
	paths := a.Resolver.Reset()
	for _, p := range paths {
		a.Embeddings.Forget(p)
	}
	return paths
}

// Close 释放模型、VAD 和数据库。
func (a *App) Close() {
	if err := a.Registry.Close(); err != nil {
		logger.Warnf("[app] 释放模型失败: %v", err)
	}
	if a.trimmer != nil {
		a.trimmer.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warnf("[app] 关闭数据库失败: %v", err)
		}
	}
}

func (a *App) newSynthesizer(ctx context.Context) (core.Synthesizer, error) {
	cfg := a.Config.TTS
	return tts.NewEngine(ctx, tts.EngineConfig{
		Engine:  cfg.Engine,
		Device:  a.Config.OpenVoice.Device,
		Speaker: cfg.Melo.Speaker,
		Speed:   cfg.Speed,
		Voice:   cfg.Edge.Voice,
		Sherpa: tts.SherpaConfig{
			Model:      cfg.Sherpa.Model,
			Lexicon:    cfg.Sherpa.Lexicon,
			Tokens:     cfg.Sherpa.Tokens,
			DataDir:    cfg.Sherpa.DataDir,
			DictDir:    cfg.Sherpa.DictDir,
			SpeakerID:  cfg.Sherpa.SpeakerID,
			NumThreads: cfg.Sherpa.NumThreads,
			Provider:   cfg.Sherpa.Provider,
		},
	}, a.Sidecar)
}

func (a *App) newConverter(ctx context.Context) (core.Converter, error) {
	ov := a.Config.OpenVoice
	// ses 目录里只有 MeloTTS 说话人的音色，其他引擎必须显式给出自己的源音色。
	engine := strings.ToLower(a.Config.TTS.Engine)
	if engine != "" && engine != tts.EngineMelo && ov.SourceSE == "" {
		return nil, core.Errorf(core.KindModelLoad, "openvoice",
			"tts.engine=%s 需要配置 openvoice.source_se (该引擎默认说话人的音色文件)", engine)
	}
	return openvoice.New(ctx, a.Sidecar, openvoice.Options{
		Root:          ov.Root,
		SourceSpeaker: ov.SourceSpeaker,
		SourceSE:      ov.SourceSE,
		Device:        ov.Device,
		SampleRate:    ov.SampleRate,
	})
}

func (a *App) extractEmbedding(ctx context.Context, ref core.Waveform) (*core.Embedding, error) {
	h, err := a.Registry.Converter(ctx)
	if err != nil {
		return nil, err
	}
	return h.ExtractEmbedding(ctx, ref)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
