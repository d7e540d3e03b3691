package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// Int16ToFloat32 将 PCM int16 样本转换为 [-1.0, 1.0] 范围的 float32。
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// Float32ToInt16 将 float32 样本钳位到 [-1.0, 1.0] 后转换为 PCM int16。
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = int16(clamp(s) * math.MaxInt16)
	}
	return out
}

// PCM16ToFloat32 将 signed 16-bit LE 单声道 PCM 字节转换为 float32 样本。
// 末尾不完整的半个样本会被丢弃。
func PCM16ToFloat32(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(b[2*i]) | int16(b[2*i+1])<<8
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// Float32ToPCM16 将 float32 样本转换为 signed 16-bit LE 单声道 PCM 字节。
func Float32ToPCM16(in []float32) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		v := int16(clamp(s) * math.MaxInt16)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// StereoPCM16ToMono 将立体声 signed 16-bit LE PCM 左右声道取平均，得到单声道 float32。
// go-mp3 的解码输出固定是这种格式。
func StereoPCM16ToMono(b []byte) []float32 {
	const bytesPerFrame = 4
	numFrames := len(b) / bytesPerFrame
	out := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		off := i * bytesPerFrame
		left := int16(b[off]) | int16(b[off+1])<<8
		right := int16(b[off+2]) | int16(b[off+3])<<8
		out[i] = (float32(left) + float32(right)) / 2.0 / 32768.0
	}
	return out
}

// EncodeBase64PCM 把样本编码为 base64 的 PCM16，用于和模型服务交换音频。
func EncodeBase64PCM(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Float32ToPCM16(samples))
}

// DecodeBase64PCM 是 EncodeBase64PCM 的逆操作。
func DecodeBase64PCM(s string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("PCM base64 解码失败: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("PCM 数据长度不是偶数: %d 字节", len(raw))
	}
	return PCM16ToFloat32(raw), nil
}

// Peak 返回样本绝对值的最大值。
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}
