package realtime

import (
	"encoding/json"
	"fmt"
)

// decodeLenient decodes a JSON object, tolerating raw control characters
// inside string literals. Device firmware embeds newlines in log text
// without escaping them.
func decodeLenient(data []byte) (map[string]any, error) {
	var out map[string]any
	err := json.Unmarshal(data, &out)
	if err == nil {
		return out, nil
	}
	if fixed, changed := escapeControl(data); changed {
		out = nil
		if err2 := json.Unmarshal(fixed, &out); err2 == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
}

// escapeControl rewrites bytes below 0x20 that appear inside string
// literals as \u escapes. data is returned untouched when there are none.
func escapeControl(data []byte) ([]byte, bool) {
	var out []byte
	inString, escaped := false, false

	for i, b := range data {
		switch {
		case escaped:
			escaped = false
		case inString && b == '\\':
			escaped = true
		case b == '"':
			inString = !inString
		case inString && b < 0x20:
			if out == nil {
				out = make([]byte, 0, len(data)+16)
				out = append(out, data[:i]...)
			}
			out = fmt.Appendf(out, `\u%04x`, b)
			continue
		}
		if out != nil {
			out = append(out, b)
		}
	}

	if out == nil {
		return data, false
	}
	return out, true
}
