package zon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Translate converts ZON source into a strict-JSON string. For any
// document within the supported grammar subset the output parses without
// error under encoding/json; malformed input returns an error and never
// panics.
//
// Mapping: struct literal → object, positional literal → array, empty
// literal → {}, enum literal → its name as a string. String values keep
// every character verbatim (a URL containing "//", "?", or "#" survives
// unchanged), since comments and separators are resolved by the
// tokenizer, not by text substitution.
func Translate(src string) (string, error) {
	v, err := Parse(src)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := writeJSON(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeJSON(b *strings.Builder, v Value) error {
	switch v.Kind {
	case KindObject:
		b.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			key, err := json.Marshal(f.Name)
			if err != nil {
				return err
			}
			b.Write(key)
			b.WriteByte(':')
			if err := writeJSON(b, f.Value); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case KindArray:
		b.WriteByte('[')
		for i, e := range v.Elems {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeJSON(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case KindString, KindEnum:
		s, err := json.Marshal(v.Str)
		if err != nil {
			return err
		}
		b.Write(s)
	case KindNumber:
		n, err := normalizeNumber(v.Str)
		if err != nil {
			return err
		}
		b.WriteString(n)
	case KindBool:
		b.WriteString(strconv.FormatBool(v.Bool))
	case KindNull:
		b.WriteString("null")
	}
	return nil
}

// normalizeNumber rewrites a ZON numeric literal as a JSON number:
// digit separators dropped, hex/octal/binary converted to decimal.
func normalizeNumber(raw string) (string, error) {
	s := strings.TrimPrefix(raw, "+")
	if u, err := strconv.ParseUint(s, 0, 64); err == nil {
		return strconv.FormatUint(u, 10), nil
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("zon: unsupported number literal %q", raw)
}
