package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 是 accentts 的顶层配置结构。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	OpenVoice OpenVoiceConfig `yaml:"openvoice"`
	Reference ReferenceConfig `yaml:"reference"`
	TTS       TTSConfig       `yaml:"tts"`
	Encoder   EncoderConfig   `yaml:"encoder"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// MaxTextChars 单次请求允许的最大字符数。
	MaxTextChars int `yaml:"max_text_chars"`
	// AllowReferenceOverride 是否允许请求体指定参考音频路径。
	// 路径来自服务器本地文件系统，默认关闭。
	AllowReferenceOverride bool     `yaml:"allow_reference_override"`
	CORSOrigins            []string `yaml:"cors_origins"`
	// RateLimit 每秒允许的请求数，0 表示不限流。
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// StaticDir 前端页面目录，包含 index.html 时在 / 提供。
	StaticDir string `yaml:"static_dir"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// OpenVoiceConfig 音色转换模型配置。
type OpenVoiceConfig struct {
	// Root OpenVoice 仓库目录，包含 checkpoints_v2。
	Root string `yaml:"root"`
	// URL 模型 sidecar 服务地址。
	URL           string        `yaml:"url"`
	Device        string        `yaml:"device"`
	SourceSpeaker string        `yaml:"source_speaker"`
	SampleRate    int           `yaml:"sample_rate"`
	Timeout       time.Duration `yaml:"timeout"`
	// SourceSE 合成引擎默认说话人的音色向量文件 (.pth)。
	// 为空时从 base_speakers/ses 按 SourceSpeaker 查找，只适用于 melo 引擎。
	SourceSE string `yaml:"source_se"`
}

// ReferenceConfig 参考音频配置。
type ReferenceConfig struct {
	// Override 优先使用的参考音频，通常来自 TTS_REFERENCE_VOICE。
	Override   string    `yaml:"override"`
	Candidates []string  `yaml:"candidates"`
	MinSeconds float64   `yaml:"min_seconds"`
	MaxSeconds float64   `yaml:"max_seconds"`
	VAD        VADConfig `yaml:"vad"`
	// EmbeddingDB 音色向量 SQLite 文件，为空时只缓存在内存中。
	EmbeddingDB string `yaml:"embedding_db"`
}

// VADConfig 参考音频静音裁剪配置，ModelPath 为空时不裁剪。
type VADConfig struct {
	ModelPath string  `yaml:"model_path"`
	Threshold float32 `yaml:"threshold"`
}

// TTSConfig 语音合成配置。
type TTSConfig struct {
	Engine   string       `yaml:"engine"` // melo, sherpa, edge
	Speed    float64      `yaml:"speed"`
	MaxRunes int          `yaml:"max_runes"`
	Melo     MeloConfig   `yaml:"melo"`
	Sherpa   SherpaConfig `yaml:"sherpa"`
	Edge     EdgeConfig   `yaml:"edge"`
}

// MeloConfig MeloTTS（通过 sidecar）配置。
type MeloConfig struct {
	Speaker string `yaml:"speaker"`
}

// SherpaConfig sherpa-onnx 离线 VITS 模型配置。
type SherpaConfig struct {
	Model      string `yaml:"model"`
	Lexicon    string `yaml:"lexicon"`
	Tokens     string `yaml:"tokens"`
	DataDir    string `yaml:"data_dir"`
	DictDir    string `yaml:"dict_dir"`
	SpeakerID  int    `yaml:"speaker_id"`
	NumThreads int    `yaml:"num_threads"`
	Provider   string `yaml:"provider"`
}

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	Voice string `yaml:"voice"`
}

// EncoderConfig MP3 编码配置。
type EncoderConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
	Bitrate    string `yaml:"bitrate"`
	SampleRate int    `yaml:"sample_rate"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 同目录下的 .env 会先被加载（不覆盖已有环境变量），然后展开 ${VAR_NAME}。
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 %s 失败: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// Default 返回不读取文件、仅由环境变量和默认值构成的配置。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.MaxTextChars == 0 {
		cfg.Server.MaxTextChars = 5000
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 4
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.Server.StaticDir = expandHome(cfg.Server.StaticDir)

	if cfg.OpenVoice.Root == "" {
		cfg.OpenVoice.Root = os.Getenv("OPENVOICE_ROOT")
	}
	if cfg.OpenVoice.Root == "" {
		cfg.OpenVoice.Root = discoverOpenVoiceRoot()
	}
	cfg.OpenVoice.Root = expandHome(cfg.OpenVoice.Root)
	cfg.OpenVoice.SourceSE = expandHome(strings.TrimSpace(cfg.OpenVoice.SourceSE))
	if cfg.OpenVoice.URL == "" {
		cfg.OpenVoice.URL = "http://127.0.0.1:8010"
	}
	if cfg.OpenVoice.Device == "" {
		cfg.OpenVoice.Device = "cpu"
	}
	if cfg.OpenVoice.SourceSpeaker == "" {
		cfg.OpenVoice.SourceSpeaker = "KR"
	}
	if cfg.OpenVoice.SampleRate == 0 {
		cfg.OpenVoice.SampleRate = 22050
	}
	if cfg.OpenVoice.Timeout == 0 {
		cfg.OpenVoice.Timeout = 120 * time.Second
	}

	if cfg.Reference.Override == "" {
		cfg.Reference.Override = os.Getenv("TTS_REFERENCE_VOICE")
	}
	cfg.Reference.Override = expandHome(strings.TrimSpace(cfg.Reference.Override))
	if len(cfg.Reference.Candidates) == 0 {
		cfg.Reference.Candidates = []string{
			filepath.Join(cfg.OpenVoice.Root, "resources", "example_reference.mp3"),
			filepath.Join(cfg.OpenVoice.Root, "checkpoints_v2", "reference", "texas_american.mp3"),
		}
	}
	for i, c := range cfg.Reference.Candidates {
		cfg.Reference.Candidates[i] = expandHome(c)
	}
	if cfg.Reference.MinSeconds == 0 {
		cfg.Reference.MinSeconds = 1
	}
	if cfg.Reference.MaxSeconds == 0 {
		cfg.Reference.MaxSeconds = 12
	}
	if cfg.Reference.VAD.Threshold == 0 {
		cfg.Reference.VAD.Threshold = 0.5
	}
	cfg.Reference.VAD.ModelPath = expandHome(cfg.Reference.VAD.ModelPath)
	cfg.Reference.EmbeddingDB = expandHome(cfg.Reference.EmbeddingDB)

	if cfg.TTS.Engine == "" {
		cfg.TTS.Engine = "melo"
	}
	if cfg.TTS.Speed == 0 {
		cfg.TTS.Speed = 1.0
	}
	if cfg.TTS.MaxRunes == 0 {
		cfg.TTS.MaxRunes = 5000
	}
	if cfg.TTS.Melo.Speaker == "" {
		cfg.TTS.Melo.Speaker = "KR"
	}
	if cfg.TTS.Sherpa.NumThreads == 0 {
		cfg.TTS.Sherpa.NumThreads = 2
	}
	if cfg.TTS.Sherpa.Provider == "" {
		cfg.TTS.Sherpa.Provider = "cpu"
	}
	if cfg.TTS.Edge.Voice == "" {
		cfg.TTS.Edge.Voice = "ko-KR-SunHiNeural"
	}

	if cfg.Encoder.FFmpegPath == "" {
		cfg.Encoder.FFmpegPath = "ffmpeg"
	}
	if cfg.Encoder.Bitrate == "" {
		cfg.Encoder.Bitrate = "128k"
	}
	if cfg.Encoder.SampleRate == 0 {
		cfg.Encoder.SampleRate = 44100
	}
}

// discoverOpenVoiceRoot 依次查找 ../OpenVoice 和 ./OpenVoice，
// 以包含 openvoice 源码目录为准；都不存在时返回 ./OpenVoice。
func discoverOpenVoiceRoot() string {
	for _, dir := range []string{filepath.Join("..", "OpenVoice"), "OpenVoice"} {
		if info, err := os.Stat(filepath.Join(dir, "openvoice")); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(dir); err == nil {
				return abs
			}
			return dir
		}
	}
	if abs, err := filepath.Abs("OpenVoice"); err == nil {
		return abs
	}
	return "OpenVoice"
}

// expandHome 展开 ~/ 前缀，Go 不会自动处理。
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return p
	}
	return filepath.Join(home, p[2:])
}
