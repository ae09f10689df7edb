// Package security implements the prompt-injection defense layer that sits
// between attacker-reachable text (page HTML, API payloads, URLs) and the LLM
// gateway. The Manager is stateless: every method is a pure function of its
// input plus static configuration, so a single instance is safe to share
// across all workers.
package security

// ThreatLevel is the ordered severity classification assigned to scanned text.
type ThreatLevel int

const (
	ThreatLow ThreatLevel = iota
	ThreatMedium
	ThreatHigh
)

func (t ThreatLevel) String() string {
	switch t {
	case ThreatLow:
		return "LOW"
	case ThreatMedium:
		return "MEDIUM"
	case ThreatHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// SecurityResult is the outcome of a threat scan over one piece of content.
type SecurityResult struct {
	// IsSafe is false whenever a HIGH-severity pattern matched.
	IsSafe bool `json:"is_safe"`

	// ThreatLevel is the highest severity observed.
	ThreatLevel ThreatLevel `json:"threat_level"`

	// SanitizedContent is always produced, even for unsafe content.
	SanitizedContent string `json:"sanitized_content"`

	// Warnings holds human-readable notes for MEDIUM findings.
	Warnings []string `json:"warnings,omitempty"`

	// BlockedPatterns names the HIGH-severity signatures that matched.
	// Non-empty exactly when ThreatLevel is HIGH.
	BlockedPatterns []string `json:"blocked_patterns,omitempty"`
}

// InvalidTemplateError reports a CreateSafePrompt call that referenced an
// unknown template or omitted required values. This is a programmer error,
// not an attacker scenario, and must fail loudly.
type InvalidTemplateError struct {
	Template string
	Missing  []string
}

func (e *InvalidTemplateError) Error() string {
	if len(e.Missing) == 0 {
		return "security: unknown prompt template " + e.Template
	}
	msg := "security: template " + e.Template + " missing required values:"
	for _, m := range e.Missing {
		msg += " " + m
	}
	return msg
}
