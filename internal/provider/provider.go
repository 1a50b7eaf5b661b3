// Package provider supplies live external context (time, weather, rates) for
// prompts that need facts the model cannot know.
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Provider fetches context text for a query. ok is false when the provider
// has nothing useful; errors are the provider's own business.
type Provider interface {
	Fetch(ctx context.Context, query string) (text string, ok bool)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, query string) (string, bool)

func (f Func) Fetch(ctx context.Context, query string) (string, bool) { return f(ctx, query) }

// Intent is a category of live information.
type Intent string

const (
	IntentWeather  Intent = "weather"
	IntentCurrency Intent = "currency"
	IntentCrypto   Intent = "crypto"
	IntentGold     Intent = "gold"
	IntentSports   Intent = "sports"
	IntentNews     Intent = "news"
	IntentTime     Intent = "time"
)

// rule binds an intent to keywords. Keywords are folded; a multi-word
// keyword matches consecutive tokens, and each keyword word matches a token
// that starts with it so inflected forms ("havalar", "dolari") still count.
type rule struct {
	intent   Intent
	keywords []string
}

// rules are evaluated in order. Time comes last and deliberately has no
// "bugun": "bugun hava nasil" is a weather question.
var rules = []rule{
	{IntentWeather, []string{"hava", "sicaklik", "derece", "yagmur", "kar yag", "ruzgar", "nem orani", "meteoroloji"}},
	{IntentCurrency, []string{"dolar", "euro", "avro", "sterlin", "doviz", "kur", "pound", "yen", "frank"}},
	{IntentCrypto, []string{"bitcoin", "btc", "ethereum", "eth", "kripto", "coin", "solana", "dogecoin", "xrp", "cardano"}},
	{IntentGold, []string{"altin", "ceyrek", "22 ayar", "14 ayar"}},
	{IntentSports, []string{"mac", "skor", "super lig", "sampiyonlar", "galatasaray", "fenerbahce", "besiktas", "trabzonspor", "milli takim", "formula", "nba", "basketbol"}},
	{IntentNews, []string{"haber", "son dakika", "gundem", "gelisme", "duyuru"}},
	{IntentTime, []string{"saat", "tarih", "zaman", "hangi gun", "gunlerden", "kac oldu"}},
}

// DefaultTimeout bounds a single provider fetch.
const DefaultTimeout = 5 * time.Second

// Config configures a Router.
type Config struct {
	Providers map[Intent]Provider
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// Router picks providers by intent. It is itself a Provider.
type Router struct {
	providers map[Intent]Provider
	timeout   time.Duration
	log       zerolog.Logger
}

// NewRouter returns a Router over cfg.Providers.
func NewRouter(cfg Config) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	ps := make(map[Intent]Provider, len(cfg.Providers))
	for k, v := range cfg.Providers {
		if v != nil {
			ps[k] = v
		}
	}
	return &Router{providers: ps, timeout: cfg.Timeout, log: cfg.Logger}
}

// Register adds or replaces the provider for an intent.
func (r *Router) Register(intent Intent, p Provider) {
	r.providers[intent] = p
}

// Intents returns every intent the query matches, in evaluation order.
func Intents(query string) []Intent {
	tokens := strings.Fields(fold(query))
	var out []Intent
	for _, ru := range rules {
		for _, kw := range ru.keywords {
			if matchPhrase(tokens, strings.Fields(kw)) {
				out = append(out, ru.intent)
				break
			}
		}
	}
	return out
}

// Route returns the first matching intent.
func Route(query string) (Intent, bool) {
	in := Intents(query)
	if len(in) == 0 {
		return "", false
	}
	return in[0], true
}

// Fetch tries each matching intent's provider in order and returns the first
// useful answer.
func (r *Router) Fetch(ctx context.Context, query string) (string, bool) {
	for _, intent := range Intents(query) {
		p, ok := r.providers[intent]
		if !ok {
			continue
		}
		start := time.Now()
		fctx, cancel := context.WithTimeout(ctx, r.timeout)
		text, ok := p.Fetch(fctx, query)
		cancel()
		r.log.Debug().Str("intent", string(intent)).Bool("ok", ok).Dur("dur", time.Since(start)).Msg("context fetch")
		if ok && strings.TrimSpace(text) != "" {
			return text, true
		}
		if ctx.Err() != nil {
			return "", false
		}
	}
	return "", false
}

func matchPhrase(tokens, words []string) bool {
	if len(words) == 0 || len(words) > len(tokens) {
		return false
	}
	for i := 0; i+len(words) <= len(tokens); i++ {
		hit := true
		for j, w := range words {
			if !wordMatches(tokens[i+j], w) {
				hit = false
				break
			}
		}
		if hit {
			return true
		}
	}
	return false
}

// minPrefixLen is the shortest keyword word allowed to match by prefix.
// Shorter words ("kur", "yen", "mac") must match a whole token.
const minPrefixLen = 4

func wordMatches(token, w string) bool {
	if len(w) < minPrefixLen {
		return token == w
	}
	return strings.HasPrefix(token, w)
}

var foldReplacer = strings.NewReplacer(
	"ç", "c", "ğ", "g", "ı", "i", "ö", "o", "ş", "s", "ü", "u",
	"Ç", "c", "Ğ", "g", "İ", "i", "I", "i", "Ö", "o", "Ş", "s", "Ü", "u",
	"â", "a", "î", "i", "û", "u",
)

// fold lowercases Turkish text to ASCII and turns punctuation into spaces.
func fold(s string) string {
	s = strings.ToLower(foldReplacer.Replace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return ' '
		}
	}, s)
}
