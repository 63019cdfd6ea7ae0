package model

import (
	"bytes"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tags maps tag keys to values. Collectors in the wild send booleans and numbers as tag values, so
// decoding keeps any JSON scalar as its literal text and null as "".
type Tags map[string]string

func (t *Tags) UnmarshalJSON(data []byte) error {
	var raw map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw == nil {
		*t = nil
		return nil
	}

	tags := make(Tags, len(raw))

	for k, v := range raw {
		v = bytes.TrimSpace(v)

		switch {
		case len(v) == 0, bytes.Equal(v, []byte("null")):
			tags[k] = ""
		case v[0] == '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("tag %q: %w", k, err)
			}

			tags[k] = s
		default:
			tags[k] = string(v)
		}
	}

	*t = tags

	return nil
}

// DecodeTraces reads either a flat array of spans or an array of span arrays. A flat array is returned
// as a single group; callers that expect several traces in one list regroup it by trace id.
func DecodeTraces(r io.Reader) ([][]Span, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read spans: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var raw []jsoniter.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode spans: %w", err)
	}

	if len(raw) == 0 {
		return nil, nil
	}

	if first := bytes.TrimSpace(raw[0]); len(first) > 0 && first[0] == '[' {
		var traces [][]Span
		if err := json.Unmarshal(data, &traces); err != nil {
			return nil, fmt.Errorf("failed to decode traces: %w", err)
		}

		return traces, nil
	}

	var spans []Span
	if err := json.Unmarshal(data, &spans); err != nil {
		return nil, fmt.Errorf("failed to decode spans: %w", err)
	}

	return [][]Span{spans}, nil
}
