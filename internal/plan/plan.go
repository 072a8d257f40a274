// Package plan turns a spoken command into a single shell command with a risk
// tier and a one-line explanation.
package plan

import (
	"strings"

	"github.com/tidwall/gjson"
)

type Risk string

const (
	Low    Risk = "low"
	Medium Risk = "medium"
	High   Risk = "high"
)

func (r Risk) Valid() bool {
	switch r {
	case Low, Medium, High:
		return true
	}
	return false
}

// Defaults substituted for missing or malformed fields. An unusable risk
// falls back to medium so that the plan needs confirmation.
const (
	DefaultCommand     = "echo error"
	DefaultRisk        = Medium
	DefaultExplanation = "Run command."
)

type Plan struct {
	Command     string `json:"command"`
	Risk        Risk   `json:"risk"`
	Explanation string `json:"explanation"`
	// Request is the transcript the plan was made for.
	Request string `json:"request,omitempty"`
}

// Parse extracts a plan from a model reply. Only the text between the first
// '{' and the last '}' is considered; every field that is missing, of the
// wrong type, or blank takes its default.
func Parse(raw string) Plan {
	p := Plan{
		Command:     DefaultCommand,
		Risk:        DefaultRisk,
		Explanation: DefaultExplanation,
	}

	body, ok := jsonObject(raw)
	if !ok {
		return p
	}

	if v := stringField(body, "command"); v != "" {
		p.Command = v
	}
	if r := Risk(strings.ToLower(stringField(body, "risk"))); r.Valid() {
		p.Risk = r
	}
	if v := stringField(body, "explanation"); v != "" {
		p.Explanation = v
	}
	return p
}

func jsonObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	body := raw[start : end+1]
	return body, gjson.Valid(body)
}

func stringField(body, key string) string {
	v := gjson.Get(body, key)
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}
