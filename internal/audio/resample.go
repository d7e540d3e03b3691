package audio

import (
	"math"

	"github.com/iabetor/accentts/internal/core"
)

// lowPassTaps 是降采样抗混叠滤波器的阶数，取奇数保证零相位。
const lowPassTaps = 63

// Resample 使用线性插值把音频转换到目标采样率。
// 降采样前先做低通滤波，截止频率略低于目标采样率的奈奎斯特频率。
// 采样率相同或参数无效时原样返回（不复制）。
func Resample(w core.Waveform, rate int) core.Waveform {
	if rate <= 0 || w.SampleRate <= 0 || w.SampleRate == rate || len(w.Samples) == 0 {
		return w
	}

	n := int(math.Round(float64(len(w.Samples)) * float64(rate) / float64(w.SampleRate)))
	if n == 0 {
		return core.Waveform{SampleRate: rate}
	}

	src := w.Samples
	if rate < w.SampleRate {
		src = lowPass(src, 0.45*float64(rate)/float64(w.SampleRate))
	}

	step := float64(w.SampleRate) / float64(rate)
	last := len(src) - 1
	out := make([]float32, n)

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = src[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = src[idx]*(1-frac) + src[idx+1]*frac
	}

	return core.Waveform{Samples: out, SampleRate: rate}
}

// lowPass 用 Hann 窗 sinc FIR 滤波，cutoff 以输入采样率为单位 (0, 0.5)。
// 边界处重复首尾采样，直流增益为 1。
func lowPass(in []float32, cutoff float64) []float32 {
	kernel := make([]float64, lowPassTaps)
	mid := lowPassTaps / 2
	var sum float64
	for k := range kernel {
		x := float64(k - mid)
		v := 2 * cutoff
		if x != 0 {
			v = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
		}
		v *= 0.5 - 0.5*math.Cos(2*math.Pi*float64(k)/float64(lowPassTaps-1))
		kernel[k] = v
		sum += v
	}
	for k := range kernel {
		kernel[k] /= sum
	}

	last := len(in) - 1
	out := make([]float32, len(in))
	for i := range in {
		var acc float64
		for k, c := range kernel {
			j := i + k - mid
			if j < 0 {
				j = 0
			} else if j > last {
				j = last
			}
			acc += c * float64(in[j])
		}
		out[i] = float32(acc)
	}
	return out
}
