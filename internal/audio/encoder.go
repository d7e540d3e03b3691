package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
)

// 浏览器播放友好的默认编码参数。
const (
	DefaultFFmpegPath    = "ffmpeg"
	DefaultMP3Bitrate    = "128k"
	DefaultMP3SampleRate = 44100
)

// EncoderOptions 是 MP3 编码参数。
type EncoderOptions struct {
	FFmpegPath string
	Bitrate    string
	SampleRate int
}

// MP3Encoder 通过 ffmpeg 子进程把音频编码为 MP3。
// 无缓存、无状态，可被多个请求并发使用。
type MP3Encoder struct {
	opts EncoderOptions
}

// NewMP3Encoder 创建 MP3 编码器，未设置的参数使用默认值。
func NewMP3Encoder(opts EncoderOptions) *MP3Encoder {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = DefaultFFmpegPath
	}
	if opts.Bitrate == "" {
		opts.Bitrate = DefaultMP3Bitrate
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultMP3SampleRate
	}
	return &MP3Encoder{opts: opts}
}

// Available 检查 ffmpeg 是否可执行，用于启动时诊断。
func (e *MP3Encoder) Available() error {
	if _, err := exec.LookPath(e.opts.FFmpegPath); err != nil {
		return core.E(core.KindEncoding, "encode", fmt.Errorf("找不到 ffmpeg (%s): %w", e.opts.FFmpegPath, err))
	}
	return nil
}

// Encode 将音频编码为固定码率、固定采样率的单声道 MP3。
func (e *MP3Encoder) Encode(ctx context.Context, w core.Waveform) ([]byte, error) {
	if w.Empty() {
		return nil, core.E(core.KindEncoding, "encode", errors.New("没有可编码的音频数据"))
	}

	bin, err := exec.LookPath(e.opts.FFmpegPath)
	if err != nil {
		return nil, core.E(core.KindEncoding, "encode", fmt.Errorf("找不到 ffmpeg (%s): %w", e.opts.FFmpegPath, err))
	}

	tmpFile, err := os.CreateTemp("", "accentts-encode-*.wav")
	if err != nil {
		return nil, core.E(core.KindEncoding, "encode", fmt.Errorf("创建临时文件失败: %w", err))
	}
	wavPath := tmpFile.Name()
	defer os.Remove(wavPath)

	if err := WriteWAV(tmpFile, w); err != nil {
		tmpFile.Close()
		return nil, core.E(core.KindEncoding, "encode", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, core.E(core.KindEncoding, "encode", fmt.Errorf("关闭临时文件失败: %w", err))
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", wavPath,
		"-ac", "1",
		"-ar", strconv.Itoa(e.opts.SampleRate),
		"-codec:a", "libmp3lame",
		"-b:a", e.opts.Bitrate,
		"-f", "mp3",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, core.E(core.KindEncoding, "encode",
			fmt.Errorf("ffmpeg 执行失败: %w, stderr: %s", err, strings.TrimSpace(stderr.String())))
	}

	if stdout.Len() == 0 {
		return nil, core.E(core.KindEncoding, "encode", errors.New("ffmpeg 未输出任何 MP3 数据"))
	}

	logger.Debugf("[audio] MP3 编码完成: %.2fs 音频 → %d 字节 (%s, %d Hz)",
		w.Duration().Seconds(), stdout.Len(), e.opts.Bitrate, e.opts.SampleRate)

	return stdout.Bytes(), nil
}
