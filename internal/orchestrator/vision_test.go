package orchestrator

import (
	"context"
	"image"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"asistan/internal/backend"
	"asistan/internal/residency"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foto.png")
	if err := imaging.Save(image.NewNRGBA(image.Rect(0, 0, 32, 24)), path); err != nil {
		t.Fatalf("save image: %v", err)
	}
	return path
}

func TestAnalyzeImage_VariantsAndCompose(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	// Language is resident before the vision call and must be released.
	f.o.Generate(ctx, "merhaba", nil)

	f.vis.push("", nil)
	f.vis.push("A black cat sleeping on a red sofa.", nil)
	f.lang.push("- kara kedi\n- kırmızı koltuk", nil)
	f.lang.push("Resimde kırmızı koltukta uyuyan kara bir kedi var. 猫", nil)
	f.lang.push("Resimde kırmızı koltukta uyuyan kara bir kedi var.", nil)

	res := f.o.AnalyzeImage(ctx, writeImage(t), "")
	if res.Err != nil {
		t.Fatalf("analyze: %v", res.Err)
	}
	if res.Text != "Resimde kırmızı koltukta uyuyan kara bir kedi var." {
		t.Fatalf("text=%q", res.Text)
	}
	vcalls := f.vis.Calls()
	if len(vcalls) != 2 || vcalls[0].msgs[0].Content == vcalls[1].msgs[0].Content {
		t.Fatalf("expected two distinct prompt variants, got %d calls", len(vcalls))
	}
	if len(vcalls[0].msgs[0].Images) != 1 || len(vcalls[0].msgs[0].Images[0]) == 0 {
		t.Fatalf("image not attached")
	}
	if !strings.Contains(vcalls[0].msgs[0].Content, DefaultImageQuestion) {
		t.Fatalf("default question not used: %q", vcalls[0].msgs[0].Content)
	}
	if f.res.IsResident(residency.Vision) || !f.res.IsResident(residency.Language) {
		t.Fatalf("resident=%v", f.res.Resident())
	}
	releases := 0
	for _, e := range f.pub.Events() {
		if e.Name == residency.EventRelease && e.Class == residency.Language {
			releases++
		}
	}
	if releases != 1 {
		t.Fatalf("language releases=%d", releases)
	}
	// facts, draft, one regeneration
	if n := len(f.lang.Calls()); n != 1+3 {
		t.Fatalf("language calls=%d", n)
	}
	if h := f.o.History(); len(h) != 4 || !strings.HasPrefix(h[2].Text, "[Görsel]") {
		t.Fatalf("history=%+v", h)
	}
}

func TestAnalyzeImage_TransientReloadsOnce(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.vis.push("", &backend.StatusError{Code: 503, Body: "model runner unexpectedly stopped"})
	f.vis.push("A dog.", nil)

	res := f.o.AnalyzeImage(context.Background(), writeImage(t), "Ne görüyorsun?")
	if res.Err != nil {
		t.Fatalf("analyze: %v", res.Err)
	}
	loads := 0
	for _, e := range f.pub.Events() {
		if e.Name == residency.EventLoadReady && e.Class == residency.Vision {
			loads++
		}
	}
	if loads != 2 {
		t.Fatalf("vision loads=%d want 2", loads)
	}
	vcalls := f.vis.Calls()
	if len(vcalls) != 2 || vcalls[0].msgs[0].Content != vcalls[1].msgs[0].Content {
		t.Fatalf("retry should reuse the same phrasing")
	}
	if f.res.IsResident(residency.Vision) {
		t.Fatalf("vision left resident")
	}
}

func TestAnalyzeImage_SecondTransientGivesUp(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	busy := &backend.StatusError{Code: 503, Body: "busy"}
	f.vis.push("", busy)
	f.vis.push("", busy)

	res := f.o.AnalyzeImage(context.Background(), writeImage(t), "")
	if !IsBackendCall(res.Err) || res.Text != FallbackVision {
		t.Fatalf("result=%+v", res)
	}
	if f.res.IsResident(residency.Vision) {
		t.Fatalf("vision left resident")
	}
}

func TestAnalyzeImage_AllVariantsEmpty(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.vis.def = ""
	res := f.o.AnalyzeImage(context.Background(), writeImage(t), "")
	if !IsEmptyResponse(res.Err) || res.Text != FallbackVision {
		t.Fatalf("result=%+v", res)
	}
	if n := len(f.vis.Calls()); n != 3 {
		t.Fatalf("vision calls=%d want 3", n)
	}
	if f.res.IsResident(residency.Vision) || len(f.lang.Calls()) != 0 {
		t.Fatalf("vision must be released and language untouched")
	}
}

func TestAnalyzeImage_TruncatesAfterRegenerationBudget(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.lang.push("- kedi", nil)
	for i := 0; i < 3; i++ {
		f.lang.push("Bir kedi var. これは猫です", nil)
	}
	res := f.o.AnalyzeImage(context.Background(), writeImage(t), "")
	if res.Err != nil || res.Text != "Bir kedi var." {
		t.Fatalf("result=%+v", res)
	}
	if n := len(f.lang.Calls()); n != 1+1+maxVisionRegenerations {
		t.Fatalf("language calls=%d", n)
	}
}

func TestAnalyzeImage_MissingFile(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	res := f.o.AnalyzeImage(context.Background(), filepath.Join(t.TempDir(), "yok.jpg"), "")
	if res.Err == nil || res.Text != FallbackVision || len(f.vis.Calls()) != 0 {
		t.Fatalf("result=%+v", res)
	}
}
