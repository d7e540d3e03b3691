package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/iabetor/accentts/internal/core"
)

// 可选的合成引擎。
const (
	EngineMelo   = "melo"
	EngineSherpa = "sherpa"
	EngineEdge   = "edge"
)

// EngineConfig 选择并配置合成引擎。
type EngineConfig struct {
	Engine  string
	Device  string
	Speaker string
	Speed   float64
	Voice   string // edge
	Sherpa  SherpaConfig
}

// NewEngine 按配置创建合成引擎。melo 需要 sidecar backend，其他引擎忽略它。
func NewEngine(ctx context.Context, cfg EngineConfig, backend MeloBackend) (core.Synthesizer, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", EngineMelo:
		if backend == nil {
			return nil, fmt.Errorf("melo 引擎需要模型 sidecar")
		}
		return NewMeloEngine(ctx, backend, cfg.Device, cfg.Speaker, cfg.Speed)
	case EngineSherpa:
		sc := cfg.Sherpa
		if sc.Speed == 0 {
			sc.Speed = cfg.Speed
		}
		return NewSherpaEngine(sc)
	case EngineEdge:
		return NewEdgeEngine(cfg.Voice), nil
	}
	return nil, fmt.Errorf("不支持的 TTS 引擎: %s", cfg.Engine)
}
