package loop

import "testing"

func TestParseDirectiveJSONNeedsMoreCarriesQuery(t *testing.T) {
	d, err := ParseDirective(ProtocolJSON, `{"need_more": true, "query": "what changed", "stop": false}`)
	if err != nil {
		t.Fatalf("parse directive: %v", err)
	}
	if d.Stop || !d.NeedMore || d.Query != "what changed" {
		t.Fatalf("unexpected directive %+v", d)
	}
}

func TestParseDirectiveJSONAnswerIsEverythingAfterFirstLine(t *testing.T) {
	raw := "{\"need_more\": false, \"stop\": true}\n\nthe final answer"
	d, err := ParseDirective(ProtocolJSON, raw)
	if err != nil {
		t.Fatalf("parse directive: %v", err)
	}
	if !d.Stop || d.Answer != "the final answer" {
		t.Fatalf("unexpected directive %+v", d)
	}
}

func TestParseDirectiveJSONFencedCodeBlock(t *testing.T) {
	raw := "```json\n{\"need_more\": false, \"stop\": true}\n\ndone\n```"
	d, err := ParseDirective(ProtocolJSON, raw)
	if err != nil {
		t.Fatalf("parse directive: %v", err)
	}
	if !d.Stop || d.Answer != "done" {
		t.Fatalf("unexpected directive %+v", d)
	}
}

func TestParseDirectiveJSONEmptyQueryWithNeedMoreTreatedAsStop(t *testing.T) {
	d, err := ParseDirective(ProtocolJSON, `{"need_more": true, "query": "", "stop": false}`)
	if err != nil {
		t.Fatalf("parse directive: %v", err)
	}
	if !d.Stop || d.NeedMore {
		t.Fatalf("expected an empty query under need_more to normalize to a stop, got %+v", d)
	}
}

func TestParseDirectiveJSONInvalidFirstLineFallsBackToFullAnswer(t *testing.T) {
	d, err := ParseDirective(ProtocolJSON, "no json here")
	if err == nil {
		t.Fatal("expected an error reporting the fallback")
	}
	if !d.Stop || d.Answer != "no json here" {
		t.Fatalf("expected the whole response treated as the answer, got %+v", d)
	}
}

func TestParseDirectiveRegexQuery(t *testing.T) {
	d, err := ParseDirective(ProtocolRegex, "QUERY: recent auth decisions")
	if err != nil {
		t.Fatalf("parse directive: %v", err)
	}
	if d.Stop || !d.NeedMore || d.Query != "recent auth decisions" {
		t.Fatalf("unexpected directive %+v", d)
	}
}

func TestParseDirectiveRegexNoMarkersStops(t *testing.T) {
	d, err := ParseDirective(ProtocolRegex, "just rambling, no directive markers")
	if err != nil {
		t.Fatalf("parse directive: %v", err)
	}
	if !d.Stop || d.NeedMore || d.Answer != "just rambling, no directive markers" {
		t.Fatalf("expected a stop with the full response as the answer, got %+v", d)
	}
}

func TestParseDirectivePassiveAlwaysStops(t *testing.T) {
	d, err := ParseDirective(ProtocolPassive, "  the whole response is the answer  ")
	if err != nil {
		t.Fatalf("parse directive: %v", err)
	}
	if !d.Stop || d.Answer != "the whole response is the answer" {
		t.Fatalf("unexpected directive %+v", d)
	}
}
