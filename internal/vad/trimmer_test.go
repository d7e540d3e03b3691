package vad

import (
	"testing"

	"github.com/iabetor/accentts/internal/core"
)

func fakeTrimmer(segs ...int) *Trimmer {
	return &Trimmer{detect: func(samples []float32) [][]float32 {
		out := make([][]float32, 0, len(segs))
		for _, n := range segs {
			s := make([]float32, n)
			for i := range s {
				s[i] = 0.3
			}
			out = append(out, s)
		}
		return out
	}}
}

func TestTrim_KeepsSpeech(t *testing.T) {
	tr := fakeTrimmer(8000, 4800)
	in := core.Waveform{Samples: make([]float32, 44100*3), SampleRate: 44100}

	out := tr.Trim(in)
	if out.SampleRate != sampleRate {
		t.Fatalf("expected %d Hz, got %d", sampleRate, out.SampleRate)
	}
	if len(out.Samples) != 12800 {
		t.Fatalf("expected 12800 speech samples, got %d", len(out.Samples))
	}
}

func TestTrim_TooLittleSpeechReturnsInput(t *testing.T) {
	tr := fakeTrimmer(1600)
	in := core.Waveform{Samples: make([]float32, 22050*2), SampleRate: 22050}

	out := tr.Trim(in)
	if out.SampleRate != 22050 || len(out.Samples) != len(in.Samples) {
		t.Fatalf("expected original waveform, got %d samples at %d Hz", len(out.Samples), out.SampleRate)
	}
}

func TestTrim_Empty(t *testing.T) {
	called := false
	tr := &Trimmer{detect: func([]float32) [][]float32 {
		called = true
		return nil
	}}
	tr.Trim(core.Waveform{})
	if called {
		t.Fatal("empty input should not reach the detector")
	}
}

func TestTrim_AfterCloseReturnsInput(t *testing.T) {
	tr := &Trimmer{}
	tr.detect = tr.segments
	tr.Close()

	in := core.Waveform{Samples: make([]float32, 16000*2), SampleRate: 16000}
	out := tr.Trim(in)
	if out.SampleRate != 16000 || len(out.Samples) != len(in.Samples) {
		t.Fatalf("expected original waveform after Close, got %d samples at %d Hz", len(out.Samples), out.SampleRate)
	}
}
