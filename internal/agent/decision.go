package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Decision is one parsed reasoning step: either an action invocation or
// a final answer, never both.
type Decision struct {
	Action      ActionKind
	Args        map[string]string
	FinalAnswer string
	IsFinal     bool
}

type rawDecision struct {
	Action      string         `json:"action"`
	Args        map[string]any `json:"args"`
	FinalAnswer *string        `json:"final_answer"`
}

// ParseDecision is the single boundary between the reasoning
// capability's free-form output and the loop. It expects one JSON
// object, tolerates surrounding prose and markdown fences, and rejects
// everything else. Unknown action names pass through: the executor
// turns them into a structured observation listing the valid actions.
func ParseDecision(raw string) (Decision, error) {
	payload, ok := extractJSONObject(raw)
	if !ok {
		return Decision{}, fmt.Errorf("no JSON object found in response")
	}

	var rd rawDecision
	if err := json.Unmarshal([]byte(payload), &rd); err != nil {
		return Decision{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if rd.FinalAnswer != nil {
		if strings.TrimSpace(*rd.FinalAnswer) == "" {
			return Decision{}, fmt.Errorf("final_answer is empty")
		}
		return Decision{FinalAnswer: strings.TrimSpace(*rd.FinalAnswer), IsFinal: true}, nil
	}

	action := strings.TrimSpace(rd.Action)
	if action == "" {
		return Decision{}, fmt.Errorf("response has neither an action nor a final_answer")
	}

	args := make(map[string]string, len(rd.Args))
	for k, v := range rd.Args {
		args[k] = argToString(v)
	}
	return Decision{Action: ActionKind(action), Args: args}, nil
}

func argToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// extractJSONObject returns the first balanced top-level JSON object in
// the text, skipping braces inside string literals.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
