package transform

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ParseJSON reads a JSON document into a Value, keeping key order and
// number literals.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSON(dec)
	if err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.Errorf("parsing JSON: unexpected data after document")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &Object{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, errors.Errorf("object key is %T", keyTok)
				}
				val, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := &Array{}
			for dec.More() {
				val, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				arr.Items = append(arr.Items, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, errors.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		return Number(t.String()), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null{}, nil
	default:
		return nil, errors.Errorf("unexpected token %T", tok)
	}
}

// EncodeJSON writes v as JSON indented with two spaces, no trailing newline
func EncodeJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeJSON(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJSON(buf *bytes.Buffer, v Value, depth int) error {
	switch t := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(string(t))
	case String:
		return writeJSONString(buf, string(t))
	case *Array:
		if len(t.Items) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteString("[\n")
		for i, item := range t.Items {
			indent(buf, depth+1)
			if err := encodeJSON(buf, item, depth+1); err != nil {
				return err
			}
			if i < len(t.Items)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		indent(buf, depth)
		buf.WriteByte(']')
	case *Object:
		if len(t.Members) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteString("{\n")
		for i, m := range t.Members {
			indent(buf, depth+1)
			if err := writeJSONString(buf, m.Key); err != nil {
				return err
			}
			buf.WriteString(": ")
			if err := encodeJSON(buf, m.Value, depth+1); err != nil {
				return err
			}
			if i < len(t.Members)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		indent(buf, depth)
		buf.WriteByte('}')
	default:
		return errors.Errorf("unsupported value %T", v)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return errors.Errorf("encoding string: %w", err)
	}
	buf.WriteString(strings.TrimSuffix(tmp.String(), "\n"))
	return nil
}

func indent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}
