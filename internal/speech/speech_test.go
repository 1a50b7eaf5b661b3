package speech

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
)

func sine(n, rate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return out
}

func TestWAVRoundTrip(t *testing.T) {
	in := sine(1600, 16000)
	samples, rate, err := DecodeWAV(EncodeWAV(in, 16000))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rate != 16000 || len(samples) != len(in) {
		t.Fatalf("rate=%d len=%d", rate, len(samples))
	}
	for i := range in {
		if math.Abs(float64(samples[i]-in[i])) > 1e-3 {
			t.Fatalf("sample %d: %f vs %f", i, samples[i], in[i])
		}
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file at all")); !errors.Is(err, ErrBadWAV) {
		t.Fatalf("expected ErrBadWAV, got %v", err)
	}
}

func TestResample(t *testing.T) {
	out := Resample(sine(44100, 44100), 44100, 16000)
	if len(out) != 16000 {
		t.Fatalf("len = %d", len(out))
	}
	same := []float32{1, 2}
	if got := Resample(same, 8000, 8000); &got[0] != &same[0] {
		t.Fatalf("same-rate resample should return input")
	}
}

func TestIsSilent(t *testing.T) {
	if !IsSilent(make([]float32, 100), DefaultSilenceRMS) {
		t.Fatalf("zeros should be silent")
	}
	if IsSilent(sine(100, 16000), DefaultSilenceRMS) {
		t.Fatalf("sine should not be silent")
	}
	if !IsSilent(nil, DefaultSilenceRMS) {
		t.Fatalf("empty should be silent")
	}
}

func TestWhisperTranscribe(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotLang = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if _, rate, err := DecodeWAV(data); err != nil || rate != WhisperRate {
			t.Errorf("wav: rate=%d err=%v", rate, err)
		}
		w.Write([]byte(`{"text":"  merhaba dünya \n"}`))
	}))
	defer srv.Close()

	wh := NewWhisper(srv.URL, WhisperOptions{})
	text, err := wh.Transcribe(context.Background(), sine(4800, 48000), 48000)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "merhaba dünya" || gotLang != "tr" {
		t.Fatalf("text=%q lang=%q", text, gotLang)
	}
}

func TestWhisperTranscribe_SilenceSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()
	text, err := NewWhisper(srv.URL, WhisperOptions{}).Transcribe(context.Background(), make([]float32, 1000), 16000)
	if err != nil || text != "" || called {
		t.Fatalf("text=%q err=%v called=%v", text, err, called)
	}
}

func TestWhisperTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()
	_, err := NewWhisper(srv.URL, WhisperOptions{}).Transcribe(context.Background(), sine(1600, 16000), 16000)
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("err = %v", err)
	}
}

func TestPiperSynthesize(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := NewPiper("sh", "voice.onnx", 16000, testLogger())
	// 1000 zero bytes of PCM, i.e. 500 samples.
	p.args = []string{"-c", "cat >/dev/null; head -c 1000 /dev/zero"}
	ch, err := p.Synthesize(context.Background(), "merhaba")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	samples, rate, err := Collect(ch)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(samples) != 500 || rate != 16000 {
		t.Fatalf("samples=%d rate=%d", len(samples), rate)
	}
}

func TestPiperSynthesize_Failure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := NewPiper("sh", "voice.onnx", 0, testLogger())
	p.args = []string{"-c", "echo voice missing >&2; exit 3"}
	ch, err := p.Synthesize(context.Background(), "merhaba")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if _, _, err := Collect(ch); err == nil || !strings.Contains(err.Error(), "voice missing") {
		t.Fatalf("err = %v", err)
	}
}

func TestPiperSynthesize_Empty(t *testing.T) {
	if _, err := NewPiper("", "", 0, testLogger()).Synthesize(context.Background(), " \n "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v", err)
	}
}
