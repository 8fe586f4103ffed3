package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoObject is returned when the input contains no balanced
// brace-delimited region.
var ErrNoObject = errors.New("jsonx: no JSON object found in text")

// Extract locates the first balanced brace-delimited region in free-form
// text and returns it verbatim. Upstream text models wrap their JSON in
// prose or markdown fences, so the scan ignores everything outside the
// braces and tracks string/escape state so that braces inside string
// literals do not affect balancing. Quote characters in the surrounding
// prose are not interpreted; a quoted brace before the payload can
// therefore open a garbage region. ExtractObject compensates by moving
// on to the next candidate region when one fails to parse.
func Extract(text string) (string, error) {
	region, _, err := scan(text, 0)
	return region, err
}

// scan finds the first balanced brace region at or after from and
// returns it with its start offset
func scan(text string, from int) (string, int, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := from; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1], start, nil
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}

	// start is reported even on failure so callers can resume the scan
	// past a region that opened but never balanced
	return "", start, ErrNoObject
}

// ExtractObject returns the first candidate brace region that parses as
// a JSON object. Candidates that do not parse (a quoted brace in prose,
// a truncated fragment) are stepped past rather than returned, so
// callers never receive malformed data.
func ExtractObject(text string) (json.RawMessage, error) {
	var parseErr error

	for from := 0; from < len(text); {
		region, start, err := scan(text, from)
		if err != nil {
			if start < 0 {
				break
			}
			// A region opened but never balanced; a quoted brace in the
			// prose can cause this. Resume just past its opening brace.
			from = start + 1
			continue
		}

		var obj map[string]interface{}
		if uerr := json.Unmarshal([]byte(region), &obj); uerr != nil {
			parseErr = fmt.Errorf("jsonx: extracted region is not valid JSON: %w", uerr)
			// Re-scan from just past the failed region's opening brace
			from = start + 1
			continue
		}

		return json.RawMessage(region), nil
	}

	if parseErr != nil {
		return nil, parseErr
	}
	return nil, ErrNoObject
}
