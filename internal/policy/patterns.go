package policy

import "regexp"

// pattern is one detection rule: a stable id for audit/CLI reporting, the
// compiled regex that fires it, and an optional secondary validator that
// must also accept the matched text (e.g. a checksum) for the rule to fire.
type pattern struct {
	id       string
	re       *regexp.Regexp
	validate func(match string) bool
}

func compileAll(pairs [][2]string) []pattern {
	out := make([]pattern, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, pattern{id: p[0], re: regexp.MustCompile(p[1])})
	}
	return out
}

// luhnValid reports whether match's digits pass the Luhn mod-10 checksum
// (spec.md section 4.2's "payment card numbers with Luhn check").
func luhnValid(match string) bool {
	var digits []int
	for _, r := range match {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 12 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// secretPatterns: cloud provider keys, generic API key prefixes, bearer
// tokens, private key PEM headers, JWT-shaped triples (~10 families).
var secretPatterns = compileAll([][2]string{
	{"secret-pem-private-key", `-----BEGIN (RSA |EC |OPENSSH |DSA |PGP )?PRIVATE KEY-----`},
	{"secret-pem-certificate", `-----BEGIN CERTIFICATE-----`},
	{"secret-api-key", `(?i)api[_-]?key\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,}`},
	{"secret-generic-token", `(?i)(secret|token|password)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{8,}`},
	{"secret-aws-access-key-id", `(?i)aws_access_key_id\s*[:=]\s*['"]?AKIA[0-9A-Z]{16}`},
	{"secret-aws-secret-access-key", `(?i)aws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}`},
	{"secret-github-pat", `ghp_[A-Za-z0-9]{36,}`},
	{"secret-openai-key", `sk-[A-Za-z0-9]{20,}`},
	{"secret-jwt", `eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`},
	{"secret-long-base64", `[A-Za-z0-9+/]{60,}={0,2}`},
})

// injectionPatterns: prompt-injection payloads (~8 families).
var injectionPatterns = compileAll([][2]string{
	{"injection-ignore-previous", `(?i)ignore (all )?(previous|prior|above) instructions`},
	{"injection-forget-previous", `(?i)forget (all )?(previous|prior|above) instructions`},
	{"injection-you-are-now", `(?i)you are now a`},
	{"injection-store-as-system", `(?i)store this as (the )?system prompt`},
	{"injection-override-system", `(?i)override (the )?system (prompt|instructions)`},
	{"injection-override-safety", `(?i)override (the )?(safety|security) (rules|checks)`},
	{"injection-system-tag", `<system>`},
	{"injection-system-bracket", `\[SYSTEM\]`},
})

// instructionalBlockPatterns: reject-level tool-invocation syntax and
// role-impersonation markers (~8 families).
var instructionalBlockPatterns = compileAll([][2]string{
	{"instructional-block-you-are-chatgpt", `(?i)you are (chatgpt|claude|gpt|gemini|an ai)`},
	{"instructional-block-system-prefix", `(?im)^(system|developer|assistant|human):`},
	{"instructional-block-tool-call-verb", `(?i)(use|call|invoke|run)\s+(the\s+)?(memory_\w+|tool|function)`},
	{"instructional-block-json-tool-name", `\{"tool_name"\s*:`},
	{"instructional-block-json-action", `\{"action"\s*:`},
	{"instructional-block-json-function-call", `\{"function_call"\s*:`},
	{"instructional-block-json-tool-use", `\{"tool_use"\s*:`},
	{"instructional-block-json-params", `\{"(parameters|arguments|params)"\s*:\s*\{`},
	{"instructional-block-xml-tool-tag", `<(tool_use|tool_result|result|function_call)>`},
})

// instructionalQuarantinePatterns: softer, quarantine-level self-instruction
// variants (~4 families).
var instructionalQuarantinePatterns = compileAll([][2]string{
	{"instructional-quarantine-always-remember", `(?i)(always|never) (remember|forget)`},
	{"instructional-quarantine-future-sessions", `(?i)in (future|subsequent|later) sessions`},
	{"instructional-quarantine-must-always", `(?i)(must|should|shall) (always|never)`},
	{"instructional-quarantine-henceforth", `(?i)(from now on|henceforth|going forward)`},
})

// piiPatterns: national identifiers, payment cards, IBAN, email, phone
// (~5 families, quarantine-level only per spec.md section 4.2).
var piiPatterns = append(compileAll([][2]string{
	{"pii-ssn", `\b\d{3}-\d{2}-\d{4}\b`},
	{"pii-email", `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`},
	{"pii-phone", `(\+\d{1,3}[ .-]?)?\(?\d{3}\)?[ .-]?\d{3}[ .-]?\d{4}\b`},
	{"pii-iban", `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`},
}), pattern{
	id: "pii-credit-card",
	re: regexp.MustCompile(`\b(4\d{3}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}|5[1-5]\d{2}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}|3[47]\d{2}[- ]?\d{6}[- ]?\d{5})\b`),
	validate: luhnValid,
})

func firstMatch(patterns []pattern, text string) (pattern, bool) {
	for _, p := range patterns {
		if p.validate == nil {
			if p.re.MatchString(text) {
				return p, true
			}
			continue
		}
		for _, m := range p.re.FindAllString(text, -1) {
			if p.validate(m) {
				return p, true
			}
		}
	}
	return pattern{}, false
}
