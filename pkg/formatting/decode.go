package formatting

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// ErrDecodeFailed is returned when a payload cannot be decoded as JSON,
// either directly, from a markdown code fence, or from an embedded object.
var ErrDecodeFailed = errors.New("failed to decode payload")

var jsonBlockRegex = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// Decode unmarshals data as JSON into T. Service responses that wrap their
// JSON in a markdown fence or surround it with log noise are unwrapped first.
func Decode[T any](data []byte) (T, error) {
	var result T
	data = bytes.TrimSpace(data)

	if err := json.Unmarshal(data, &result); err == nil {
		return result, nil
	}

	if matches := jsonBlockRegex.FindSubmatch(data); len(matches) >= 2 {
		if err := json.Unmarshal(bytes.TrimSpace(matches[1]), &result); err == nil {
			return result, nil
		}
	}

	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start >= 0 && end > start {
		if err := json.Unmarshal(data[start:end+1], &result); err == nil {
			return result, nil
		}
	}

	return result, fmt.Errorf("%w: %s", ErrDecodeFailed, truncate(data, 256))
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
