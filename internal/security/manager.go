package security

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// TruncationMarker is appended whenever sanitized content was cut at
	// MaxPromptLength, so downstream consumers can detect truncation.
	TruncationMarker = "... [CONTEÚDO TRUNCADO]"

	// RedactionMarker replaces high-severity trigger phrases that survive
	// into a substituted prompt.
	RedactionMarker = "[CONTEÚDO REMOVIDO]"

	// maxStripPasses bounds the fixpoint loops in sanitization. Stripping a
	// tag can expose a tag that was split across it, so each pass repeats
	// until the output is stable.
	maxStripPasses = 10
)

// Config holds the static tuning values of the Manager. The depth threshold
// and truncation length are defense-in-depth heuristics, not semantic limits.
type Config struct {
	MaxPromptLength int
	MaxJSONDepth    int
}

// DefaultConfig returns the Manager defaults used when a zero Config is given.
func DefaultConfig() Config {
	return Config{
		MaxPromptLength: 8000,
		MaxJSONDepth:    5,
	}
}

// Manager is the stateless sanitization, threat-detection and
// safe-prompt-construction service.
type Manager struct {
	cfg Config
}

// NewManager creates a Manager. Zero config fields fall back to defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = def.MaxPromptLength
	}
	if cfg.MaxJSONDepth <= 0 {
		cfg.MaxJSONDepth = def.MaxJSONDepth
	}
	return &Manager{cfg: cfg}
}

var (
	escapeSeqRe     = regexp.MustCompile(`\\x[0-9a-fA-F]{2}|\\u[0-9a-fA-F]{4}`)
	scriptBlockRe   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	strayScriptRe   = regexp.MustCompile(`(?i)</?script\b[^>]*>`)
	embedBlockRe    = regexp.MustCompile(`(?is)<(iframe|object|embed)\b[^>]*>.*?</(iframe|object|embed)\s*>`)
	strayEmbedRe    = regexp.MustCompile(`(?i)</?(iframe|object|embed)\b[^>]*>`)
	genericTagRe    = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9:-]*\b[^<>]*>`)
	selfClosedEmbed = regexp.MustCompile(`(?i)<(iframe|object|embed)\b[^>]*/>`)
)

// SanitizeInput coerces any value to a string and scrubs it for prompt use.
// Pass order is fixed: control characters, escaped-encoding sequences, HTML
// tags, then length truncation — truncation last so the marker itself can
// never be truncated away. The function is idempotent and never fails.
func (m *Manager) SanitizeInput(v any) string {
	s := stringify(v)

	s = stripControlChars(s)
	s = stripFixpoint(s, func(in string) string {
		return escapeSeqRe.ReplaceAllString(in, "")
	})
	s = stripFixpoint(s, stripTags)
	s = m.truncate(s)

	return s
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// stripControlChars removes ASCII control characters 0x00-0x1F except the
// common whitespace characters tab, newline and carriage return.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripFixpoint applies strip until the output stabilizes, bounded by
// maxStripPasses.
func stripFixpoint(s string, strip func(string) string) string {
	for i := 0; i < maxStripPasses; i++ {
		next := strip(s)
		if next == s {
			return next
		}
		s = next
	}
	return s
}

func stripTags(s string) string {
	s = scriptBlockRe.ReplaceAllString(s, "")
	s = strayScriptRe.ReplaceAllString(s, "")
	s = embedBlockRe.ReplaceAllString(s, "")
	s = selfClosedEmbed.ReplaceAllString(s, "")
	s = strayEmbedRe.ReplaceAllString(s, "")
	s = genericTagRe.ReplaceAllString(s, "")
	return s
}

// truncate cuts content exceeding MaxPromptLength (in runes) and appends the
// truncation marker. Re-sanitizing truncated output yields the same string.
func (m *Manager) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= m.cfg.MaxPromptLength {
		return s
	}
	return string(runes[:m.cfg.MaxPromptLength]) + TruncationMarker
}

// DetectThreats classifies content into LOW/MEDIUM/HIGH using the static rule
// families and returns the sanitized form alongside the verdict. Matching is
// case-insensitive; overlapping matches across families all contribute.
func (m *Manager) DetectThreats(content string) SecurityResult {
	result := SecurityResult{
		ThreatLevel:      ThreatLow,
		SanitizedContent: m.SanitizeInput(content),
	}

	for _, rule := range jailbreakRules {
		if rule.pattern.MatchString(content) {
			result.ThreatLevel = ThreatHigh
			result.BlockedPatterns = append(result.BlockedPatterns, rule.name)
		}
	}
	for _, rule := range execRules {
		if rule.pattern.MatchString(content) {
			result.ThreatLevel = ThreatHigh
			result.BlockedPatterns = append(result.BlockedPatterns, rule.name)
		}
	}
	for _, rule := range suspiciousRules {
		if rule.pattern.MatchString(content) {
			if result.ThreatLevel < ThreatMedium {
				result.ThreatLevel = ThreatMedium
			}
			result.Warnings = append(result.Warnings, rule.description)
		}
	}

	// Structural anomaly: deeply nested JSON-shaped input is suspicious but
	// not proof of attack, so it warns instead of blocking.
	if looksLikeJSON(content) && nestingDepth(content) > m.cfg.MaxJSONDepth {
		if result.ThreatLevel < ThreatMedium {
			result.ThreatLevel = ThreatMedium
		}
		result.Warnings = append(result.Warnings, "estrutura muito profunda")
	}

	result.IsSafe = result.ThreatLevel < ThreatHigh
	return result
}

func looksLikeJSON(s string) bool {
	t := strings.TrimSpace(s)
	return strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")
}

// nestingDepth measures the maximum brace/bracket nesting, skipping quoted
// strings so punctuation inside values does not inflate the count.
func nestingDepth(s string) int {
	depth, max := 0, 0
	inString, escaped := false, false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > max {
				max = depth
			}
		case '}', ']':
			if depth > 0 {
				depth--
			}
		}
	}
	return max
}

// CreateSafePrompt looks up a named template, sanitizes every value
// independently, substitutes, and redacts any high-severity trigger phrase
// that survives composition across fields. Missing required values fail with
// InvalidTemplateError rather than silently omitting content.
func (m *Manager) CreateSafePrompt(templateName string, values map[string]string) (string, error) {
	tpl, ok := promptTemplates[templateName]
	if !ok {
		return "", &InvalidTemplateError{Template: templateName}
	}

	var missing []string
	for _, name := range tpl.required {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &InvalidTemplateError{Template: templateName, Missing: missing}
	}

	prompt := tpl.body
	for name, value := range values {
		prompt = strings.ReplaceAll(prompt, "{"+name+"}", m.SanitizeInput(value))
	}

	// Second line of defense: per-field sanitization is allowed to be
	// imperfect against composition attacks across substituted fields.
	for _, rule := range highSeverityRules() {
		prompt = rule.pattern.ReplaceAllString(prompt, RedactionMarker)
	}

	return prompt, nil
}

// ValidateResponse scans model output for first-person disclosure of its own
// instructions. An empty response is trivially valid.
func (m *Manager) ValidateResponse(response string) bool {
	if strings.TrimSpace(response) == "" {
		return true
	}
	for _, re := range leakRules {
		if re.MatchString(response) {
			return false
		}
	}
	return true
}
