package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/iabetor/accentts/internal/core"
)

// DecodeMP3 解码 MP3 为单声道 float32 音频。
// go-mp3 总是输出立体声 signed 16-bit LE PCM，这里取左右声道平均。
func DecodeMP3(r io.Reader) (core.Waveform, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return core.Waveform{}, fmt.Errorf("MP3 解码失败: %w", err)
	}

	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return core.Waveform{}, fmt.Errorf("读取 PCM 数据失败: %w", err)
	}

	return core.Waveform{
		Samples:    StereoPCM16ToMono(pcmData),
		SampleRate: decoder.SampleRate(),
	}, nil
}

// DecodeMP3Bytes 是 DecodeMP3 针对内存数据的便捷函数。
func DecodeMP3Bytes(data []byte) (core.Waveform, error) {
	if len(data) == 0 {
		return core.Waveform{}, fmt.Errorf("MP3 数据为空")
	}
	return DecodeMP3(bytes.NewReader(data))
}
