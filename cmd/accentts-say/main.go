// accentts-say 在命令行生成一段带口音的语音，写入文件或直接播放。
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/iabetor/accentts/internal/app"
	"github.com/iabetor/accentts/internal/audio"
	"github.com/iabetor/accentts/internal/config"
	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	text := flag.String("text", "", "要合成的韩语文本，为空时从标准输入读取")
	ref := flag.String("ref", "", "参考音频路径，优先于配置")
	out := flag.String("out", "tts_output.mp3", "输出文件，.wav 结尾时输出 WAV")
	play := flag.Bool("play", false, "生成后在本机播放")
	recordRef := flag.String("record-ref", "", "先用麦克风录制参考音频并保存为该 WAV 文件，随后用它生成")
	recordFor := flag.Duration("record-for", 8*time.Second, "参考音频录制时长")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *recordRef != "" {
		if err := record(*recordRef, *recordFor); err != nil {
			fmt.Fprintf(os.Stderr, "录制参考音频失败: %v\n", err)
			os.Exit(1)
		}
		*ref = *recordRef
		// 只录音不合成
		if *text == "" {
			return
		}
	}

	input := *text
	if input == "" {
		data, err := readStdin()
		if err != nil {
			fmt.Fprintf(os.Stderr, "读取标准输入失败: %v\n", err)
			os.Exit(1)
		}
		input = data
	}

	if err := say(cfg, input, *ref, *out, *play); err != nil {
		fmt.Fprintf(os.Stderr, "生成失败: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func say(cfg *config.Config, text, ref, out string, play bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	mp3, err := a.Pipeline.Generate(ctx, text, ref)
	if err != nil {
		return err
	}

	var wave core.Waveform
	decoded := func() (core.Waveform, error) {
		if !wave.Empty() {
			return wave, nil
		}
		w, err := audio.DecodeMP3Bytes(mp3)
		if err != nil {
			return core.Waveform{}, err
		}
		wave = w
		return wave, nil
	}

	if out != "" {
		if strings.EqualFold(filepath.Ext(out), ".wav") {
			d, err := decoded()
			if err != nil {
				return err
			}
			if err := audio.WriteWAVFile(out, d); err != nil {
				return err
			}
		} else if err := os.WriteFile(out, mp3, 0644); err != nil {
			return fmt.Errorf("写入 %s 失败: %w", out, err)
		}
		logger.Infof("[say] 已写入 %s", out)
	}

	if play {
		d, err := decoded()
		if err != nil {
			return err
		}
		p, err := audio.NewPlayer()
		if err != nil {
			return err
		}
		defer p.Close()
		return p.Play(ctx, d)
	}
	return nil
}

func record(path string, d time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, err := audio.NewRecorder(22050)
	if err != nil {
		return err
	}
	defer rec.Close()

	fmt.Fprintf(os.Stderr, "录音 %v，请开始说话...\n", d)
	w, err := rec.Record(ctx, d)
	if err != nil {
		return err
	}
	if w.Empty() {
		return fmt.Errorf("没有录到声音")
	}
	return audio.WriteWAVFile(path, w)
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
