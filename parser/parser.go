// Package parser turns raw language-model output into structured report
// fields plus a displayable next question. Model output is expected, but
// never guaranteed, to contain a single JSON object; everything here is
// defensive and none of the entry points ever fail outright.
package parser

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// CompletionPhrase is a literal completion marker some providers emit after
// the payload. JSON-mode backends signal completion through the
// report_complete key instead, but the marker is still honored when present.
const CompletionPhrase = "REPORT_COMPLETE"

// Deterministic substitute questions, chosen by which required field is still
// empty, in fixed priority order.
const (
	QuestionDescribe     = "Please describe the incident."
	QuestionWhoInvolved  = "Who was involved in the incident?"
	QuestionReportType   = "What type of violation occurred?"
	QuestionTradeField   = "What trade or field of work was involved?"
	QuestionAnythingElse = "Is there anything else you would like to add?"
)

// TurnFields is the slot state re-derived from a single assistant turn. The
// assistant re-emits the full accumulated state every turn, so each parse
// replaces the previous state rather than merging into it.
type TurnFields struct {
	ReportTitle       string   `json:"report_title"`
	ReportType        []string `json:"report_type"`
	TradesField       []string `json:"trades_field"`
	ReportDescription string   `json:"report_description"`
	PartiesInvolved   []string `json:"parties_involved"`
	Witnesses         []string `json:"witnesses"`

	// ExtraNotes collects the values of unrecognized string-valued keys the
	// model invented, kept separate from the description on purpose.
	ExtraNotes []string `json:"extra_notes"`
}

// EmptyTurnFields returns a TurnFields with all list fields non-nil.
func EmptyTurnFields() TurnFields {
	return TurnFields{
		ReportType:      []string{},
		TradesField:     []string{},
		PartiesInvolved: []string{},
		Witnesses:       []string{},
		ExtraNotes:      []string{},
	}
}

// TurnResult is the outcome of parsing one assistant turn. HasPayload is true
// only when a JSON object was both found and decoded; callers must not treat
// Fields as new state without it, since a salvaged-but-undecodable candidate
// yields empty fields.
type TurnResult struct {
	Fields       TurnFields
	NextQuestion string
	Completed    bool
	HasPayload   bool
}

var (
	greetingRe      = regexp.MustCompile(`(?i)^\s*(hi|hello|hey)(\s+there)?[,!.]?\s*`)
	introRe         = regexp.MustCompile(`(?i)^\s*i['’]?m\s+[^.!?]*[.!?:]\s*`)
	listMarkerRe    = regexp.MustCompile(`(?m)^\s*(?:[-•*]|\d+[.)])\s+`)
	bulletLineRe    = regexp.MustCompile(`(?m)^\s*(?:[-•*]|\d+[.)])\s+\S`)
	firstQuestionRe = regexp.MustCompile(`[^.?!]*\?+`)
	metaRe          = regexp.MustCompile(`(?i)\b(rephrase|rephrasing|processing|polic(?:y|ies)|procedures?|format)\b`)
	boundaryRe      = regexp.MustCompile(`[.!?]`)
	funcCallRe      = regexp.MustCompile(`\w+\s*\(`)
)

// ExtractJSON isolates the first complete JSON object from arbitrary text
// using a balanced-brace scan that tracks string-literal context, so braces
// inside string values are not counted. When no balanced object is found it
// falls back to a greedy first-"{" to last-"}" slice, and reports false only
// when there is no opening brace at all.
func ExtractJSON(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}

	// Unbalanced output, e.g. an unescaped quote inside a value. Greedy
	// slice is the only recovery we have.
	end := strings.LastIndexByte(raw, '}')
	if end <= start {
		return "", false
	}
	return strings.TrimSpace(raw[start : end+1]), true
}

// ValidateAndFix decodes a candidate JSON object into TurnFields. All list
// fields are coerced to string slices (scalars become single-element lists,
// anything else becomes empty), every known key ends up present with the
// right type, and unrecognized string-valued keys are captured into
// ExtraNotes instead of being dropped. The next-question text and completion
// flag the model may embed are returned separately.
func ValidateAndFix(candidate string) (TurnFields, string, bool, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return EmptyTurnFields(), "", false, false
	}

	fields := EmptyTurnFields()
	nextQuestion := ""
	completed := false
	extras := map[string]string{}

	for key, value := range obj {
		switch key {
		case "report_title", "title":
			fields.ReportTitle = toString(value)
		case "report_type":
			fields.ReportType = toStringList(value)
		case "trades_field", "trade_field":
			fields.TradesField = toStringList(value)
		case "report_description", "report_desc", "description":
			fields.ReportDescription = toString(value)
		case "parties_involved", "primaries_involved":
			fields.PartiesInvolved = toStringList(value)
		case "witnesses":
			fields.Witnesses = toStringList(value)
		case "next_question":
			nextQuestion = toString(value)
		case "report_complete":
			b, _ := value.(bool)
			completed = completed || b
		default:
			if s := toString(value); s != "" {
				extras[key] = s
			}
		}
	}

	// Deterministic order for the catch-all, the map iteration is not.
	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields.ExtraNotes = append(fields.ExtraNotes, extras[k])
	}

	return fields, nextQuestion, completed, true
}

// ParseTurn parses one raw assistant turn. prevUserMsg is the user message
// that prompted this turn; the fallback ladder uses it when the model output
// has no usable JSON. ParseTurn never fails: it always yields a usable next
// question unless the turn completed the report.
func ParseTurn(raw, prevUserMsg string) TurnResult {
	completed := strings.Contains(raw, CompletionPhrase)

	if candidate, found := ExtractJSON(raw); found {
		if fields, embeddedQ, jsonComplete, ok := ValidateAndFix(candidate); ok {
			completed = completed || jsonComplete
			result := TurnResult{Fields: fields, Completed: completed, HasPayload: true}
			if completed {
				return result
			}
			source := embeddedQ
			if source == "" {
				source = strings.Replace(raw, candidate, "", 1)
			}
			result.NextQuestion = NextQuestion(source, fields)
			return result
		}
	}

	result := TurnResult{Fields: EmptyTurnFields(), Completed: completed}
	if !completed {
		result.NextQuestion = FallbackQuestion(raw, prevUserMsg)
	}
	return result
}

// NextQuestion sanitizes the model's question text, replacing it entirely
// with a deterministic substitute when the model drifted into meta-commentary
// about rephrasing, processing, policies or formats.
func NextQuestion(raw string, fields TurnFields) string {
	if metaRe.MatchString(raw) {
		return SubstituteQuestion(fields)
	}
	q := SanitizeQuestion(raw)
	if q == "" {
		return SubstituteQuestion(fields)
	}
	return q
}

// SanitizeQuestion cleans a conversational question string: wrapping quotes
// and greeting prefixes go first, then per-line list markers, and finally the
// text is collapsed to its first interrogative clause when one exists.
func SanitizeQuestion(raw string) string {
	s := strings.TrimSpace(raw)
	s = stripWrappingQuotes(s)
	s = greetingRe.ReplaceAllString(s, "")
	s = introRe.ReplaceAllString(s, "")
	s = listMarkerRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if q := firstQuestionRe.FindString(s); q != "" {
		return strings.TrimSpace(q)
	}
	return s
}

// SubstituteQuestion picks the next question from whichever required field is
// still empty: description, then parties, then report type, then trade field.
// A description of 20 characters or fewer is treated as not yet given.
func SubstituteQuestion(fields TurnFields) string {
	switch {
	case len(strings.TrimSpace(fields.ReportDescription)) <= 20:
		return QuestionDescribe
	case len(fields.PartiesInvolved) == 0:
		return QuestionWhoInvolved
	case len(fields.ReportType) == 0:
		return QuestionReportType
	case len(fields.TradesField) == 0:
		return QuestionTradeField
	default:
		return QuestionAnythingElse
	}
}

// FallbackQuestion salvages a next question from model output that contained
// no usable JSON. It never fails.
func FallbackQuestion(raw, prevUserMsg string) string {
	// Bullet lists or a bare completion phrase mean the model answered in
	// prose; pick the question from what the user already told us.
	if bulletLineRe.MatchString(raw) || strings.Contains(raw, CompletionPhrase) {
		return questionFromPreviousMessage(prevUserMsg)
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "?") {
			continue
		}
		if looksLikeCode(line) {
			continue
		}
		return line
	}

	return questionFromPreviousMessage(prevUserMsg)
}

// questionFromPreviousMessage guesses where the conversation is from the
// user's last message: a long or multi-sentence message is assumed to already
// contain the incident description.
func questionFromPreviousMessage(prev string) string {
	prev = strings.TrimSpace(prev)
	if len(prev) > 120 || len(boundaryRe.FindAllString(prev, -1)) >= 2 {
		return QuestionWhoInvolved
	}
	return QuestionDescribe
}

func looksLikeCode(line string) bool {
	if strings.ContainsAny(line, "{}") {
		return true
	}
	if strings.Contains(line, `":`) {
		return true
	}
	return funcCallRe.MatchString(line)
}

func stripWrappingQuotes(s string) string {
	for len(s) > 1 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		if strings.HasPrefix(s, "“") && strings.HasSuffix(s, "”") {
			s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "“"), "”"))
			continue
		}
		return s
	}
	return s
}

func toString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func toStringList(v any) []string {
	switch value := v.(type) {
	case []any:
		out := []string{}
		for _, item := range value {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		if strings.TrimSpace(value) == "" {
			return []string{}
		}
		return []string{strings.TrimSpace(value)}
	default:
		return []string{}
	}
}
