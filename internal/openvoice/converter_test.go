package openvoice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/sidecar"
)

// makeRoot 创建一个最小的 checkpoints_v2 目录结构。
func makeRoot(t *testing.T, speakers ...string) string {
	t.Helper()
	root := t.TempDir()
	conv := filepath.Join(root, "checkpoints_v2", "converter")
	ses := filepath.Join(root, "checkpoints_v2", "base_speakers", "ses")
	for _, d := range []string{conv, ses} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{filepath.Join(conv, "config.json"), filepath.Join(conv, "checkpoint.pth")} {
		if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	for _, s := range speakers {
		if err := os.WriteFile(filepath.Join(ses, s), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

type fakeBackend struct {
	loadErr    error
	loaded     []sidecar.LoadRequest
	convertReq sidecar.ConvertRequest
	err        error
}

func (f *fakeBackend) Load(_ context.Context, req sidecar.LoadRequest) error {
	f.loaded = append(f.loaded, req)
	return f.loadErr
}

func (f *fakeBackend) Embedding(_ context.Context, ref core.Waveform) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(ref.SampleRate)}, nil
}

func (f *fakeBackend) Convert(_ context.Context, req sidecar.ConvertRequest) (core.Waveform, error) {
	f.convertReq = req
	if f.err != nil {
		return core.Waveform{}, f.err
	}
	return req.Audio, nil
}

func TestSourceSpeakerPath(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		key      string
		wantBase string
	}{
		{"lowercase dashed", []string{"kr-v2.pth", "KR_V2.pth"}, "KR_V2", "kr-v2.pth"},
		{"exact key", []string{"KR_V2.pth"}, "KR_V2", "KR_V2.pth"},
		{"kr fallback", []string{"kr.pth", "en-us.pth"}, "JP", "kr.pth"},
		{"first pth", []string{"zh.pth", "en-us.pth", "notes.txt"}, "KR", "en-us.pth"},
	}
	for _, tt := range tests {
		root := makeRoot(t, tt.files...)
		ses := filepath.Join(root, "checkpoints_v2", "base_speakers", "ses")
		got, err := SourceSpeakerPath(ses, tt.key)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if filepath.Base(got) != tt.wantBase {
			t.Errorf("%s: got %s, want %s", tt.name, filepath.Base(got), tt.wantBase)
		}
	}
}

func TestSourceSpeakerPath_NoneAvailable(t *testing.T) {
	root := makeRoot(t)
	_, err := SourceSpeakerPath(filepath.Join(root, "checkpoints_v2", "base_speakers", "ses"), "KR")
	if !errors.Is(err, core.ErrModelLoad) {
		t.Fatalf("expected ModelLoadError, got %v", err)
	}
}

func TestDiscover_MissingCheckpoint(t *testing.T) {
	root := makeRoot(t, "kr.pth")
	if err := os.Remove(filepath.Join(root, "checkpoints_v2", "converter", "checkpoint.pth")); err != nil {
		t.Fatal(err)
	}

	_, err := Discover(root, "KR", "")
	if !errors.Is(err, core.ErrModelLoad) {
		t.Fatalf("expected ModelLoadError, got %v", err)
	}
	if !strings.Contains(err.Error(), CheckpointsURL) {
		t.Errorf("error should carry download hint: %v", err)
	}
}

func TestDiscover_ExplicitSourceSE(t *testing.T) {
	root := makeRoot(t, "kr.pth")
	se := filepath.Join(t.TempDir(), "sherpa-speaker.pth")
	if err := os.WriteFile(se, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := Discover(root, "KR", se)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if l.SourceSE != se {
		t.Errorf("explicit source SE should win over ses/kr.pth, got %s", l.SourceSE)
	}

	_, err = Discover(root, "KR", filepath.Join(t.TempDir(), "missing.pth"))
	if !errors.Is(err, core.ErrModelLoad) {
		t.Fatalf("expected ModelLoadError for a missing source SE, got %v", err)
	}
}

func TestNew_LoadsConverter(t *testing.T) {
	root := makeRoot(t, "kr.pth")
	backend := &fakeBackend{}

	c, err := New(context.Background(), backend, Options{Root: root, SourceSpeaker: "KR"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if len(backend.loaded) != 1 || backend.loaded[0].Model != "openvoice" {
		t.Fatalf("unexpected load requests: %+v", backend.loaded)
	}
	if backend.loaded[0].CheckpointPath != c.layout.ConverterCheckpoint {
		t.Errorf("checkpoint path not forwarded: %+v", backend.loaded[0])
	}
	if c.SampleRate() != 22050 {
		t.Errorf("expected default 22050 Hz, got %d", c.SampleRate())
	}
}

func TestNew_BackendLoadFailure(t *testing.T) {
	root := makeRoot(t, "kr.pth")
	backend := &fakeBackend{loadErr: errors.New("cuda out of memory")}

	_, err := New(context.Background(), backend, Options{Root: root})
	if !errors.Is(err, core.ErrModelLoad) {
		t.Fatalf("expected ModelLoadError, got %v", err)
	}
}

func TestConverter_Convert(t *testing.T) {
	root := makeRoot(t, "kr.pth")
	backend := &fakeBackend{}
	c, err := New(context.Background(), backend, Options{Root: root, SampleRate: 24000})
	if err != nil {
		t.Fatal(err)
	}

	src := core.Waveform{Samples: []float32{0.1}, SampleRate: 24000}
	out, err := c.Convert(context.Background(), src, &core.Embedding{Vector: []float32{1}})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(out.Samples) != 1 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if backend.convertReq.Message != "@MyShell" || filepath.Base(backend.convertReq.SourceSEPath) != "kr.pth" {
		t.Errorf("unexpected convert request: %+v", backend.convertReq)
	}

	if _, err := c.Convert(context.Background(), src, nil); !errors.Is(err, core.ErrConversion) {
		t.Errorf("nil target: expected ConversionError, got %v", err)
	}

	backend.err = errors.New("sidecar down")
	if _, err := c.Convert(context.Background(), src, &core.Embedding{Vector: []float32{1}}); !errors.Is(err, core.ErrConversion) {
		t.Errorf("backend failure: expected ConversionError, got %v", err)
	}
	if _, err := c.ExtractEmbedding(context.Background(), src); !errors.Is(err, core.ErrEmbeddingExtraction) {
		t.Errorf("backend failure: expected EmbeddingExtractionError, got %v", err)
	}
}
