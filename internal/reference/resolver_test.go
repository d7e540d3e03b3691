package reference

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iabetor/accentts/internal/audio"
	"github.com/iabetor/accentts/internal/core"
)

func writeRef(t *testing.T, dir, name string, seconds float64) string {
	t.Helper()
	rate := 16000
	w := core.Waveform{Samples: make([]float32, int(float64(rate)*seconds)), SampleRate: rate}
	for i := range w.Samples {
		w.Samples[i] = 0.1
	}
	path := filepath.Join(dir, name)
	if err := audio.WriteWAVFile(path, w); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolve_NotFound(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{Candidates: []string{filepath.Join(dir, "missing.mp3")}})

	_, err := r.Resolve("")
	if !errors.Is(err, core.ErrReferenceNotFound) {
		t.Fatalf("expected ReferenceNotFound, got %v", err)
	}
}

func TestResolve_NoCandidates(t *testing.T) {
	_, err := New(Options{}).Resolve("")
	if core.KindOf(err) != core.KindReferenceNotFound {
		t.Fatalf("expected ReferenceNotFound, got %v", err)
	}
}

func TestResolve_DefaultCandidate(t *testing.T) {
	dir := t.TempDir()
	ref := writeRef(t, dir, "texas.wav", 3)
	r := New(Options{Candidates: []string{filepath.Join(dir, "missing.mp3"), ref}})

	v, err := r.Resolve("")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Path != ref {
		t.Errorf("expected %s, got %s", ref, v.Path)
	}
	if d := v.Waveform.Duration(); d < 2900*time.Millisecond || d > 3100*time.Millisecond {
		t.Errorf("unexpected duration %v", d)
	}
}

func TestResolve_OverrideTakesPriority(t *testing.T) {
	dir := t.TempDir()
	def := writeRef(t, dir, "default.wav", 2)
	override := writeRef(t, dir, "override.wav", 2)
	r := New(Options{Candidates: []string{def}})

	v, err := r.Resolve(override)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Path != override {
		t.Errorf("override should win, got %s", v.Path)
	}

	// override 不存在时退回默认候选
	v, err = r.Resolve(filepath.Join(dir, "nope.wav"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Path != def {
		t.Errorf("expected fallback to default, got %s", v.Path)
	}
}

func TestResolve_RelativePathIsAbsolute(t *testing.T) {
	dir := t.TempDir()
	writeRef(t, dir, "ref.wav", 2)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	v, err := New(Options{Candidates: []string{"./sub/../ref.wav"}}).Resolve("")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !filepath.IsAbs(v.Path) || filepath.Base(v.Path) != "ref.wav" {
		t.Errorf("expected clean absolute path, got %s", v.Path)
	}
}

func TestResolve_DecodeError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(bad, []byte("not audio"), 0644); err != nil {
		t.Fatal(err)
	}
	r := New(Options{Candidates: []string{bad, filepath.Join(dir, "missing.wav")}})

	_, err := r.Resolve("")
	if !errors.Is(err, core.ErrReferenceDecode) {
		t.Fatalf("expected ReferenceDecodeError, got %v", err)
	}
}

func TestResolve_DecodeErrorFallsThrough(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.mp3")
	if err := os.WriteFile(bad, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	good := writeRef(t, dir, "good.wav", 2)

	v, err := New(Options{Candidates: []string{good}}).Resolve(bad)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Path != good {
		t.Errorf("expected fallthrough to %s, got %s", good, v.Path)
	}
}

func TestResolve_DurationOutOfRange(t *testing.T) {
	dir := t.TempDir()
	short := writeRef(t, dir, "short.wav", 0.3)
	long := writeRef(t, dir, "long.wav", 5)
	r := New(Options{Candidates: []string{short, long}, MaxDuration: 4 * time.Second})

	_, err := r.Resolve("")
	if !errors.Is(err, core.ErrReferenceDecode) {
		t.Fatalf("expected ReferenceDecodeError for out-of-range durations, got %v", err)
	}
}

func TestResolve_CustomDecoder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.ogg")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	calls := 0
	r := New(Options{
		Candidates: []string{path},
		Decode: func(string) (core.Waveform, error) {
			calls++
			return core.Waveform{Samples: make([]float32, 32000), SampleRate: 16000}, nil
		},
	})

	if _, err := r.Resolve(""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 decode, got %d", calls)
	}
}

func countingResolver(t *testing.T, calls *atomic.Int32, candidates ...string) *Resolver {
	t.Helper()
	return New(Options{
		Candidates: candidates,
		Decode: func(path string) (core.Waveform, error) {
			calls.Add(1)
			return audio.DecodeFile(path)
		},
	})
}

func TestResolve_DecodesOncePerOverride(t *testing.T) {
	dir := t.TempDir()
	def := writeRef(t, dir, "default.wav", 2)
	override := writeRef(t, dir, "override.wav", 2)
	var calls atomic.Int32
	r := countingResolver(t, &calls, def)

	first, err := r.Resolve("")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := r.Resolve("  ")
			if err != nil || v != first {
				t.Errorf("expected the memoized voice, got %p err=%v", v, err)
			}
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Fatalf("expected 1 decode across repeated resolves, got %d", calls.Load())
	}

	for i := 0; i < 3; i++ {
		v, err := r.Resolve(override)
		if err != nil || v.Path != override {
			t.Fatalf("expected %s, got %v err=%v", override, v, err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("override should be decoded once as its own entry, got %d decodes", calls.Load())
	}
}

func TestResolve_FailureIsNotMemoized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "later.wav")
	var calls atomic.Int32
	r := countingResolver(t, &calls, path)

	if _, err := r.Resolve(""); !errors.Is(err, core.ErrReferenceNotFound) {
		t.Fatalf("expected ReferenceNotFound, got %v", err)
	}
	writeRef(t, dir, "later.wav", 2)
	v, err := r.Resolve("")
	if err != nil {
		t.Fatalf("file added after a failed resolve should be found: %v", err)
	}
	if v.Path != path {
		t.Errorf("expected %s, got %s", path, v.Path)
	}
}

func TestResolve_Reset(t *testing.T) {
	dir := t.TempDir()
	def := writeRef(t, dir, "default.wav", 2)
	var calls atomic.Int32
	r := countingResolver(t, &calls, def)

	if _, err := r.Resolve(""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(filepath.Join(dir, "missing.wav")); err != nil {
		t.Fatal(err)
	}
	paths := r.Reset()
	if len(paths) != 1 || paths[0] != def {
		t.Fatalf("expected [%s], got %v", def, paths)
	}
	if _, err := r.Resolve(""); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected re-decode after Reset, got %d decodes", calls.Load())
	}
}
