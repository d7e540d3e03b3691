package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
)

// Recorder 使用 malgo (miniaudio) 从默认麦克风录制单声道参考音频。
type Recorder struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
	mu         sync.Mutex
}

// NewRecorder 创建录音器，sampleRate 通常为 16000 或 22050。
func NewRecorder(sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("无效采样率: %d", sampleRate)
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化音频上下文失败: %w", err)
	}
	return &Recorder{ctx: ctx, sampleRate: uint32(sampleRate)}, nil
}

// Record 录制 d 时长的音频，ctx 取消时提前结束并返回已录制的部分。
func (r *Recorder) Record(ctx context.Context, d time.Duration) (core.Waveform, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := make(chan []float32, 64)
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = r.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) == 0 {
				return
			}
			// 消费端跟不上时丢帧，不阻塞音频线程
			select {
			case frames <- PCM16ToFloat32(input):
			default:
			}
		},
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return core.Waveform{}, fmt.Errorf("初始化采集设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return core.Waveform{}, fmt.Errorf("启动采集设备失败: %w", err)
	}
	logger.Infof("[audio] 开始录音 (%v, %d Hz)", d, r.sampleRate)

	want := int(d.Seconds() * float64(r.sampleRate))
	samples := make([]float32, 0, want)
	timer := time.NewTimer(d)
	defer timer.Stop()

loop:
	for len(samples) < want {
		select {
		case <-ctx.Done():
			break loop
		case <-timer.C:
			break loop
		case f := <-frames:
			samples = append(samples, f...)
		}
	}
	_ = device.Stop()

	if len(samples) > want {
		samples = samples[:want]
	}
	logger.Infof("[audio] 录音结束: %.2fs", float64(len(samples))/float64(r.sampleRate))
	return core.Waveform{Samples: samples, SampleRate: int(r.sampleRate)}, nil
}

// Close 释放音频上下文。
func (r *Recorder) Close() {
	if r.ctx != nil {
		_ = r.ctx.Uninit()
		r.ctx.Free()
		r.ctx = nil
	}
}
