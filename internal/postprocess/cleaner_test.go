package postprocess

import "testing"

func TestClean_ForeignTailAndFormalAddress(t *testing.T) {
	c := New(Options{})
	got := c.Clean("Size yardımcı olabilirim. 你好")
	if got != "Sana yardımcı olabilirim." {
		t.Fatalf("unexpected clean result: %q", got)
	}
}

func TestClean_Substitutions(t *testing.T) {
	c := New(Options{})
	cases := map[string]string{
		"Sizin için hazırladım.":          "Senin için hazırladım.",
		"İsterseniz devam edebilirsiniz.": "İstersen devam edebilirsin.",
		"Bunu size söyledim.":             "Bunu sana söyledim.",
		"SİZE":                            "SANA",
		"Sizlerin":                        "Sizlerin",
	}
	for in, want := range cases {
		if got := c.Clean(in); got != want {
			t.Fatalf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClean_BannedAndWhitespace(t *testing.T) {
	c := New(Options{})
	in := "Bir yapay zeka dil modeli olarak, bugün hava güzel.\n\n\n\nYarın  yağmur var.</s>"
	want := "bugün hava güzel.\n\nYarın yağmur var."
	if got := c.Clean(in); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestClean_EmptyFallsBack(t *testing.T) {
	c := New(Options{})
	for _, in := range []string{"", "   \n\n", "你好世界", "<|im_end|>"} {
		if got := c.Clean(in); got != DefaultFallback {
			t.Fatalf("Clean(%q) = %q, want fallback", in, got)
		}
	}
	custom := New(Options{Fallback: "yok"})
	if got := custom.Clean(""); got != "yok" {
		t.Fatalf("custom fallback: %q", got)
	}
}

func TestClean_Idempotent(t *testing.T) {
	c := New(Options{})
	inputs := []string{
		"Size yardımcı olabilirim. 你好",
		"Sizce yarın hava nasıl olur?\n\n\n\n\nBelki yağmur.",
		"As an AI language model, Siz ne isterseniz yaparım. Привет",
		"  Merhaba!  Nasılsın?  ",
		"Satır bir\n\n\nSatır iki\n\n\n\nSatır üç",
		"",
		DefaultFallback,
		"Si</s>ze yardım ederim.",
		"Bir yapay zeka Bir yapay zeka olarak, olarak, merhaba",
		"Bir yapay  zeka olarak, merhaba",
	}
	for _, in := range inputs {
		once := c.Clean(in)
		twice := c.Clean(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestClean_CustomTables(t *testing.T) {
	c := New(Options{Words: map[string]string{"Merhaba": "selam"}, Banned: []string{"!!"}})
	if got := c.Clean("Merhaba dünya!!"); got != "Selam dünya" {
		t.Fatalf("got %q", got)
	}
}

func TestClean_BannedRemovalRejoinsWords(t *testing.T) {
	c := New(Options{})
	cases := [][2]string{
		{"Si</s>ze yardım ederim.", "Sana yardım ederim."},
		{"Bir yapay zeka Bir yapay zeka olarak, olarak, merhaba", "merhaba"},
		{"<|im_start|>Siz<|im_end|>in için", "Senin için"},
	}
	for _, tc := range cases {
		if got := c.Clean(tc[0]); got != tc[1] {
			t.Fatalf("Clean(%q) = %q, want %q", tc[0], got, tc[1])
		}
	}
}
