package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// args is a loosely typed view of provider arguments. Providers send numbers
// as strings and strings as numbers, so accessors accept both.
type args map[string]any

func parseArgs(raw json.RawMessage) (args, error) {
	out := args{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	return out, nil
}

func (a args) str(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func (a args) number(key string) (float64, bool) {
	switch v := a[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(v)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (a args) integer(key string, def int) int {
	f, ok := a.number(key)
	if !ok {
		return def
	}
	return int(f)
}
