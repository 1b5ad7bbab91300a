package activities

import (
	"encoding/json"
	"strings"
)

// parseTopicList extracts topic strings from model output. Strict JSON first;
// models wrap arrays in prose or code fences often enough that we fall back
// to scanning for the first bracketed array, then to bullet/numbered lines.
func parseTopicList(raw string, max int) []string {
	text := stripCodeFence(raw)

	var arr []string
	if err := json.Unmarshal([]byte(text), &arr); err != nil {
		if inner := extractArray(text); inner != "" {
			_ = json.Unmarshal([]byte(inner), &arr)
		}
	}
	if len(arr) == 0 {
		arr = parseBulletLines(text)
	}

	out := make([]string, 0, len(arr))
	seen := make(map[string]bool, len(arr))
	for _, t := range arr {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	return out
}

// workerOutput is the structured shape workers are prompted to return.
type workerOutput struct {
	Note      string   `json:"note"`
	SubTopics []string `json:"sub_topics"`
}

// parseWorkerOutput extracts the note and sub-topic proposals. A response
// that is not the expected JSON object is treated as the note verbatim so a
// chatty model never loses a topic's findings.
func parseWorkerOutput(raw string) workerOutput {
	text := stripCodeFence(raw)

	var out workerOutput
	if err := json.Unmarshal([]byte(text), &out); err == nil && out.Note != "" {
		return out
	}
	if inner := extractObject(text); inner != "" {
		if err := json.Unmarshal([]byte(inner), &out); err == nil && out.Note != "" {
			return out
		}
	}
	return workerOutput{Note: strings.TrimSpace(raw)}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func extractArray(s string) string  { return extractDelimited(s, '[', ']') }
func extractObject(s string) string { return extractDelimited(s, '{', '}') }

func extractDelimited(s string, open, closing byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func parseBulletLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		line = strings.Trim(line, `"`)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
