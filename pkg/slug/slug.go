package slug

import (
	"strings"
	"unicode"
)

// Option configures slug generation.
type Option func(*config)

type config struct {
	separator string
	maxLength int
}

// Separator sets the separator rune sequence. Default is "_".
func Separator(s string) Option {
	return func(c *config) { c.separator = s }
}

// MaxLength truncates the slug to at most n runes. Zero means no limit.
func MaxLength(n int) Option {
	return func(c *config) { c.maxLength = n }
}

// Make converts s to a slug: lowercase, runs of non-alphanumeric characters
// collapsed into a single separator, leading/trailing separators trimmed.
//
//	Make("Main Router (HQ)") == "main_router_hq"
func Make(s string, opts ...Option) string {
	cfg := &config{separator: "_"}
	for _, opt := range opts {
		opt(cfg)
	}

	var b strings.Builder
	b.Grow(len(s))

	pendingSep := false
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteString(cfg.separator)
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	out := b.String()
	if cfg.maxLength > 0 {
		runes := []rune(out)
		if len(runes) > cfg.maxLength {
			out = strings.TrimSuffix(string(runes[:cfg.maxLength]), cfg.separator)
		}
	}
	return out
}
