package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/iabetor/accentts/internal/core"
)

// WAV 头中的格式码。
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// ErrUnsupportedFormat 表示音频格式无法解码。
var ErrUnsupportedFormat = errors.New("不支持的音频格式")

// DecodeWAV 解码 PCM 或 IEEE 浮点 WAV，多声道取平均得到单声道。
// WAVE_FORMAT_EXTENSIBLE 按整数 PCM 处理，这是录音软件写 24 位或多声道时的常见格式。
func DecodeWAV(r io.ReadSeeker) (core.Waveform, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return core.Waveform{}, fmt.Errorf("%w: 不是有效的 WAV 文件", ErrUnsupportedFormat)
	}
	switch dec.WavAudioFormat {
	case wavFormatPCM, wavFormatExtensible:
	case wavFormatFloat:
		return decodeFloatWAV(dec)
	default:
		return core.Waveform{}, fmt.Errorf("%w: WAV 编码格式 %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return core.Waveform{}, fmt.Errorf("读取 WAV 数据失败: %w", err)
	}

	channels := int(dec.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels <= 0 {
		return core.Waveform{}, fmt.Errorf("%w: 声道数为 0", ErrUnsupportedFormat)
	}

	bitDepth := int(dec.BitDepth)
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}
	scale, offset, err := pcmScale(bitDepth)
	if err != nil {
		return core.Waveform{}, err
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]) - offset
		}
		samples[i] = float32(sum / float64(channels) / scale)
	}

	return core.Waveform{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}

// decodeFloatWAV 读取 32 或 64 位小端浮点采样，go-audio 只解码整数 PCM。
func decodeFloatWAV(dec *wav.Decoder) (core.Waveform, error) {
	channels := int(dec.NumChans)
	if channels <= 0 {
		return core.Waveform{}, fmt.Errorf("%w: 声道数为 0", ErrUnsupportedFormat)
	}
	width := int(dec.BitDepth) / 8
	if width != 4 && width != 8 {
		return core.Waveform{}, fmt.Errorf("%w: 浮点 WAV 位深 %d", ErrUnsupportedFormat, dec.BitDepth)
	}
	if err := dec.FwdToPCM(); err != nil {
		return core.Waveform{}, fmt.Errorf("读取 WAV 数据失败: %w", err)
	}

	data := make([]byte, dec.PCMChunk.Size)
	n, err := io.ReadFull(dec.PCMChunk, data)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return core.Waveform{}, fmt.Errorf("读取 WAV 数据失败: %w", err)
	}
	data = data[:n]

	frameSize := width * channels
	frames := len(data) / frameSize
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			off := i*frameSize + c*width
			if width == 4 {
				sum += float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
			} else {
				sum += math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
			}
		}
		samples[i] = float32(sum / float64(channels))
	}
	return core.Waveform{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}

// pcmScale 返回各位深对应的归一化系数和偏移（8 位 WAV 为无符号）。
func pcmScale(bitDepth int) (scale, offset float64, err error) {
	switch bitDepth {
	case 8:
		return 128, 128, nil
	case 16:
		return 32768, 0, nil
	case 24:
		return 8388608, 0, nil
	case 32:
		return 2147483648, 0, nil
	}
	return 0, 0, fmt.Errorf("%w: WAV 位深 %d", ErrUnsupportedFormat, bitDepth)
}

// WriteWAV 以 16 位单声道 PCM 写出 WAV。
func WriteWAV(w io.WriteSeeker, wave core.Waveform) error {
	if wave.SampleRate <= 0 {
		return fmt.Errorf("无效的采样率: %d", wave.SampleRate)
	}

	pcm := Float32ToInt16(wave.Samples)
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, wave.SampleRate, 16, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: wave.SampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("写入 WAV 数据失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("写入 WAV 头失败: %w", err)
	}
	return nil
}

// WriteWAVFile 把音频写到指定路径。
func WriteWAVFile(path string, wave core.Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 WAV 文件 %s 失败: %w", path, err)
	}
	if err := WriteWAV(f, wave); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
