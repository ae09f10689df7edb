package security

import "regexp"

// threatRule is a single detection pattern in the threat scanner. Rules are
// grouped in three families: instruction-override phrases and code-execution
// indicators escalate to HIGH; ambiguous keywords only accumulate warnings.
type threatRule struct {
	name        string
	level       ThreatLevel
	pattern     *regexp.Regexp
	description string
}

// jailbreakRules match instruction-override and role-hijack phrasing.
var jailbreakRules = []threatRule{
	{
		name:        "instruction_override",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|rules?|prompts?)`),
		description: "instruction override phrasing",
	},
	{
		name:        "memory_wipe",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(above|before|previous)`),
		description: "context reset phrasing",
	},
	{
		name:        "disregard_safety",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(instructions?|rules?|safety\s+filters?)`),
		description: "safety filter bypass phrasing",
	},
	{
		name:        "role_hijack",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)act\s+as\s+(an?\s+)?(admin(istrator)?|root|system)`),
		description: "privileged role assumption",
	},
	{
		name:        "unrestricted_mode",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)you\s+are\s+now\s+(free|unrestricted|unfiltered)`),
		description: "unrestricted mode phrasing",
	},
	{
		name:        "injected_system_turn",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)(^|\n)\s*system\s*:\s*(you\s+are|ignore|forget)`),
		description: "embedded system-role turn",
	},
	{
		name:        "new_instructions",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
		description: "instruction replacement marker",
	},
}

// execRules match system/code-execution indicators smuggled inside content.
var execRules = []threatRule{
	{
		name:        "python_os_import",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)\bimport\s+os\b`),
		description: "os module import",
	},
	{
		name:        "exec_call",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)\bexec\s*\(`),
		description: "dynamic code execution call",
	},
	{
		name:        "os_system_call",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)os\.system\s*\(`),
		description: "shell execution call",
	},
	{
		name:        "subprocess_use",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)\bsubprocess\.`),
		description: "subprocess module use",
	},
	{
		name:        "eval_call",
		level:       ThreatHigh,
		pattern:     regexp.MustCompile(`(?i)\beval\s*\(`),
		description: "dynamic evaluation call",
	},
}

// suspiciousRules match ambiguous keywords. A match raises the level to
// MEDIUM and records a warning but never blocks on its own.
var suspiciousRules = []threatRule{
	{
		name:        "developer_console",
		level:       ThreatMedium,
		pattern:     regexp.MustCompile(`(?i)developer\s+console`),
		description: "mentions developer console",
	},
	{
		name:        "bypass_restrictions",
		level:       ThreatMedium,
		pattern:     regexp.MustCompile(`(?i)bypass\s+(the\s+)?restrictions?`),
		description: "mentions bypassing restrictions",
	},
	{
		name:        "debug_mode",
		level:       ThreatMedium,
		pattern:     regexp.MustCompile(`(?i)enable\s+debug\s+mode`),
		description: "requests debug mode",
	},
	{
		name:        "hidden_prompt_probe",
		level:       ThreatMedium,
		pattern:     regexp.MustCompile(`(?i)(reveal|show|print)\s+(your|the)\s+(system\s+)?prompt`),
		description: "probes for the system prompt",
	},
}

// highSeverityRules is the union used for the post-substitution redaction
// pass in CreateSafePrompt.
func highSeverityRules() []threatRule {
	rules := make([]threatRule, 0, len(jailbreakRules)+len(execRules))
	rules = append(rules, jailbreakRules...)
	rules = append(rules, execRules...)
	return rules
}

// leakRules detect first-person meta-disclosure in model output. They require
// self-referential framing so ordinary analytical prose that discusses
// "instructions" in a domain sense never matches.
var leakRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)based\s+on\s+my\s+system\s+prompt`),
	regexp.MustCompile(`(?i)according\s+to\s+my\s+(system\s+)?prompt`),
	regexp.MustCompile(`(?i)my\s+instructions\s+(are|say|tell\s+me\s+to)`),
	regexp.MustCompile(`(?i)my\s+system\s+prompt\s+(says|states|is|contains)`),
	regexp.MustCompile(`(?i)the\s+user\s+asked\s+me\s+to\s+ignore\s+previous\s+instructions`),
	regexp.MustCompile(`(?i)i\s+(was|am)\s+(instructed|told)\s+to\s+(ignore|reveal|disregard)`),
}
