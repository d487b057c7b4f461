package xrayconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// member is one key of a JSON object with its value kept verbatim. Offset is
// where Value starts in the bytes the object was decoded from.
type member struct {
	Key    string
	Value  json.RawMessage
	Offset int
}

// object is a JSON object that remembers key order. Values are never
// re-encoded unless the caller replaces them, which is what lets the proxy's
// own settings survive a rewrite untouched.
type object []member

func decodeObject(data []byte) (object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var o object
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value of %q: %w", key, err)
		}
		o = append(o, member{Key: key, Value: raw, Offset: valueOffset(dec, raw)})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o object) get(key string) (json.RawMessage, bool) {
	m, ok := o.lookup(key)
	return m.Value, ok
}

func (o object) lookup(key string) (member, bool) {
	for _, m := range o {
		if m.Key == key {
			return m, true
		}
	}
	return member{}, false
}

// set replaces the first member named key or appends a new one.
func (o object) set(key string, value json.RawMessage) object {
	for i := range o {
		if o[i].Key == key {
			o[i].Value = value
			return o
		}
	}
	return append(o, member{Key: key, Value: value})
}

func (o object) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := encodeNoEscape(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if err := json.Compact(&buf, m.Value); err != nil {
			return nil, fmt.Errorf("value of %q: %w", m.Key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeArray splits a JSON array into its elements and the offset of each
// element in data.
func decodeArray(data []byte) ([]json.RawMessage, []int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, nil, fmt.Errorf("expected array, got %v", tok)
	}

	var (
		items   []json.RawMessage
		offsets []int
	)
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("element %d: %w", len(items), err)
		}
		items = append(items, raw)
		offsets = append(offsets, valueOffset(dec, raw))
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return items, offsets, nil
}

// valueOffset is the start of the value dec has just decoded into raw. The
// decoder stops right after a value and raw never carries surrounding space.
func valueOffset(dec *json.Decoder, raw json.RawMessage) int {
	return int(dec.InputOffset()) - len(raw)
}

func encodeArray(items []json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := json.Compact(&buf, it); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// encodeNoEscape marshals v without HTML escaping so '<', '>' and '&'
// round-trip the way the proxy wrote them.
func encodeNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
