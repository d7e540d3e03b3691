package audio

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iabetor/accentts/internal/core"
)

// Format 表示可解码的音频容器格式。
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
)

// Sniff 根据文件头判断格式，无法判断时按扩展名兜底。
func Sniff(head []byte, name string) Format {
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV
	case len(head) >= 3 && bytes.Equal(head[0:3], []byte("ID3")):
		return FormatMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		// MPEG 帧同步字
		return FormatMP3
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	}
	return FormatUnknown
}

// DecodeFile 读取并解码 WAV/MP3 文件为单声道音频。
func DecodeFile(path string) (core.Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Waveform{}, fmt.Errorf("读取音频文件 %s 失败: %w", path, err)
	}
	return DecodeBytes(data, path)
}

// DecodeBytes 解码内存中的 WAV/MP3 数据，name 仅用于扩展名兜底判断。
func DecodeBytes(data []byte, name string) (core.Waveform, error) {
	head := data
	if len(head) > 16 {
		head = head[:16]
	}

	switch Sniff(head, name) {
	case FormatWAV:
		return DecodeWAV(bytes.NewReader(data))
	case FormatMP3:
		return DecodeMP3Bytes(data)
	}
	return core.Waveform{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(name))
}
