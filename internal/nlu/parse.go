package nlu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

func normaliseJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
		if strings.HasPrefix(strings.ToLower(s), "json") {
			if idx := strings.IndexByte(s, '\n'); idx >= 0 {
				s = s[idx+1:]
			} else {
				s = ""
			}
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		if start := strings.Index(s, "{"); start >= 0 {
			if end := strings.LastIndex(s, "}"); end >= start {
				s = s[start : end+1]
			}
		}
	}
	// Handle truncated output like {"intent":"browse","confidence":0.8
	if strings.HasSuffix(s, "\"") && !strings.HasSuffix(s, "}") {
		s = s + "\"}"
	}
	openBraces := strings.Count(s, "{")
	closeBraces := strings.Count(s, "}")
	if openBraces > closeBraces {
		s = s + strings.Repeat("}", openBraces-closeBraces)
	}
	return strings.TrimSpace(s)
}

// fallbackParseIntent attempts to extract key fields using regex from a
// malformed or truncated JSON-like string.
func fallbackParseIntent(raw string) (*IntentResult, error) {
	r := &IntentResult{}

	extract := func(pattern string) string {
		re := regexp.MustCompile(pattern)
		m := re.FindStringSubmatch(raw)
		if len(m) >= 2 {
			return strings.TrimSpace(m[1])
		}
		return ""
	}

	// Truncated-safe scanner: finds `"key":"value...` even when the closing
	// quote is missing.
	scan := func(src, key string) string {
		keyMark := `"` + key + `"`
		idx := strings.Index(src, keyMark)
		if idx < 0 {
			return ""
		}
		colon := strings.Index(src[idx+len(keyMark):], ":")
		if colon < 0 {
			return ""
		}
		afterColon := src[idx+len(keyMark)+colon+1:]
		open := strings.Index(afterColon, `"`)
		if open < 0 {
			return ""
		}
		rest := afterColon[open+1:]
		close := strings.Index(rest, `"`)
		val := ""
		if close >= 0 {
			val = rest[:close]
		} else {
			end := len(rest)
			for i, ch := range rest {
				if ch == '\n' || ch == '\r' || ch == ',' || ch == '}' {
					end = i
					break
				}
			}
			val = rest[:end]
		}
		return strings.TrimSpace(val)
	}

	r.Intent = extract(`"intent"\s*:\s*"([^"]+)"`)
	if r.Intent == "" {
		r.Intent = scan(raw, "intent")
	}

	confStr := extract(`"confidence"\s*:\s*([0-9\.]+)`)
	if confStr != "" {
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			r.Confidence = v
		}
	}

	r.Reply = extract(`"reply"\s*:\s*"([^"]*)"`)
	if r.Reply == "" {
		r.Reply = scan(raw, "reply")
	}

	for _, field := range []struct {
		key string
		dst *string
	}{
		{"name", &r.Contact.Name},
		{"email", &r.Contact.Email},
		{"phone", &r.Contact.Phone},
		{"address", &r.Contact.Address},
	} {
		// Contact fields live inside the contact object; a bare scan is good
		// enough for salvage since item names rarely collide with them.
		if contactIdx := strings.Index(raw, `"contact"`); contactIdx >= 0 {
			*field.dst = scan(raw[contactIdx:], field.key)
		}
	}

	// First item mention, when present.
	if itemsIdx := strings.Index(raw, `"items"`); itemsIdx >= 0 {
		if name := scan(raw[itemsIdx:], "name"); name != "" {
			qty := 1
			if q := extract(`"qty"\s*:\s*([0-9]+)`); q != "" {
				if v, err := strconv.Atoi(q); err == nil && v > 0 {
					qty = v
				}
			}
			r.Items = append(r.Items, ItemRef{Name: name, Qty: qty})
		}
	}

	if strings.TrimSpace(r.Intent) == "" {
		return nil, fmt.Errorf("fallback parse: intent not found")
	}

	return r, nil
}
