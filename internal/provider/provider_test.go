package provider

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRoute(t *testing.T) {
	cases := []struct {
		q    string
		want Intent
		ok   bool
	}{
		{"bugün hava nasıl", IntentWeather, true},
		{"Bugün dolar kaç TL?", IntentCurrency, true},
		{"saat kaç", IntentTime, true},
		{"Bitcoin ne kadar oldu", IntentCrypto, true},
		{"gram altın fiyatı", IntentGold, true},
		{"Galatasaray maçı kaç kaç bitti", IntentSports, true},
		{"son dakika haberleri", IntentNews, true},
		{"İstanbul'da yağmur yağacak mı", IntentWeather, true},
		{"bugün ne yapsam", "", false},
		{"yeni bir kurs aldım", "", false},
		{"merhaba", "", false},
	}
	for _, tc := range cases {
		got, ok := Route(tc.q)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Route(%q) = %q,%v want %q,%v", tc.q, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIntents_Order(t *testing.T) {
	got := Intents("saat kaçta hava ısınır, dolar da yükselir mi")
	want := []Intent{IntentWeather, IntentCurrency, IntentTime}
	if len(got) != len(want) {
		t.Fatalf("intents: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("intents[%d]=%q want %q (all %v)", i, got[i], want[i], got)
		}
	}
}

func TestRouterFetch_FallsThrough(t *testing.T) {
	calls := []Intent{}
	r := NewRouter(Config{Providers: map[Intent]Provider{
		IntentWeather: Func(func(ctx context.Context, q string) (string, bool) {
			calls = append(calls, IntentWeather)
			return "", false
		}),
		IntentTime: Func(func(ctx context.Context, q string) (string, bool) {
			calls = append(calls, IntentTime)
			return "Saat: 10:00", true
		}),
	}})
	text, ok := r.Fetch(context.Background(), "saat kaçta hava açar")
	if !ok || text != "Saat: 10:00" {
		t.Fatalf("fetch: %q %v", text, ok)
	}
	if len(calls) != 2 || calls[0] != IntentWeather {
		t.Fatalf("calls: %v", calls)
	}
}

func TestRouterFetch_Timeout(t *testing.T) {
	r := NewRouter(Config{Timeout: 20 * time.Millisecond, Providers: map[Intent]Provider{
		IntentWeather: Func(func(ctx context.Context, q string) (string, bool) {
			<-ctx.Done()
			return "", false
		}),
	}})
	start := time.Now()
	if _, ok := r.Fetch(context.Background(), "hava nasıl"); ok {
		t.Fatalf("expected no context")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("fetch did not honor timeout")
	}
}

func TestRouterFetch_NoMatch(t *testing.T) {
	r := NewRouter(Config{})
	r.Register(IntentTime, Clock{})
	if _, ok := r.Fetch(context.Background(), "bir şiir yaz"); ok {
		t.Fatalf("unexpected context")
	}
	if text, ok := r.Fetch(context.Background(), "saat kaç"); !ok || !strings.Contains(text, "Saat:") {
		t.Fatalf("clock: %q %v", text, ok)
	}
}

func TestClockFormat(t *testing.T) {
	ts := time.Date(2026, time.October, 15, 9, 5, 0, 0, time.UTC)
	got, ok := Clock{Now: func() time.Time { return ts }}.Fetch(context.Background(), "")
	want := "GUNCEL ZAMAN BILGISI:\nTarih: 15 Ekim 2026, Perşembe\nSaat: 09:05"
	if !ok || got != want {
		t.Fatalf("got %q", got)
	}
}
