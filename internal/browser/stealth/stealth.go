package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/config"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
	Width     int
	Height    int
}

// NewPersona builds a persona from configuration, drawing the user agent at
// random from the configured pool.
func NewPersona(cfg config.BrowserConfig, rng *rand.Rand) Persona {
	ua := ""
	if n := len(cfg.UserAgents); n > 0 {
		ua = cfg.UserAgents[rng.Intn(n)]
	}

	langs := []string{cfg.Locale}
	if base, _, ok := strings.Cut(cfg.Locale, "-"); ok {
		langs = append(langs, base)
	}

	return Persona{
		UserAgent: ua,
		Platform:  platformFor(ua),
		Languages: langs,
		Timezone:  cfg.Timezone,
		Locale:    cfg.Locale,
		Width:     cfg.Viewport.Width,
		Height:    cfg.Viewport.Height,
	}
}

func platformFor(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Win32"
	case strings.Contains(ua, "Macintosh"):
		return "MacIntel"
	case strings.Contains(ua, "Linux"):
		return "Linux x86_64"
	default:
		return ""
	}
}

// AcceptLanguage renders the persona's languages as an Accept-Language header,
// e.g. "en-US,en;q=0.9".
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return ""
	}
	parts := []string{p.Languages[0]}
	for i, l := range p.Languages[1:] {
		q := 0.9 - float64(i)*0.1
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", l, q))
	}
	return strings.Join(parts, ",")
}

// Headers are sent with every request from a page using this persona.
func (p Persona) Headers() network.Headers {
	h := network.Headers{
		"Accept-Encoding": "gzip, deflate, br",
	}
	if al := p.AcceptLanguage(); al != "" {
		h["Accept-Language"] = al
	}
	return h
}

// Script returns the startup script injected into every new document.
func (p Persona) Script() string {
	blob, _ := json.Marshal(map[string]any{
		"platform":  p.Platform,
		"languages": p.Languages,
	})
	return fmt.Sprintf("window.__autoapplyPersona = %s;\n%s", blob, evasionsScript)
}

// Apply returns the CDP actions that make a tab present as p.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona.",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.String("timezone", p.Timezone),
	)

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithAcceptLanguage(p.AcceptLanguage()).
			WithPlatform(p.Platform),

		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(p.Script()).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),

		network.Enable(),
		network.SetExtraHTTPHeaders(p.Headers()),
	}

	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if p.Width > 0 && p.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(p.Width), int64(p.Height), 1, false))
	}
	return tasks
}
