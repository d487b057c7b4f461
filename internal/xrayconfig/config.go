// Package xrayconfig reads and rewrites the proxy server's own configuration
// document. Only the client list of the first inbound is ever modified; the
// rest of the file, comments and formatting included, is written back as it
// was read.
package xrayconfig

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/vlesskeeper/internal/common"
	"github.com/tidwall/jsonc"
)

// FlowVision is the flow mode written for every client this service adds.
const FlowVision = "xtls-rprx-vision"

// Client is a credential entry in inbounds[0].settings.clients.
type Client struct {
	ID    string `json:"id"`
	Flow  string `json:"flow"`
	Email string `json:"email"`
}

// Document is a parsed proxy configuration.
type Document struct {
	raw      []byte
	root     object
	inbounds []json.RawMessage
	inbound  object
	settings object
	clients  []entry
	dirty    bool

	// span locates the client array in raw. It is unset when the first
	// inbound has no clients key to splice into.
	span    [2]int
	spliced bool
	layout  layout

	trailingNewline bool
}

// entry is one client object. Entries read from the file keep their bytes;
// fresh ones are laid out to match the surrounding document on write.
type entry struct {
	raw   json.RawMessage
	fresh bool
}

// layout is the indentation around the client array.
type layout struct {
	compact bool
	base    string
	unit    string
}

// Parse decodes data, which may contain // and /* */ comments and trailing
// commas.
func Parse(data []byte) (*Document, error) {
	clean := jsonc.ToJSON(data)

	root, err := decodeObject(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorMalformedConfig, err)
	}

	inboundsM, ok := root.lookup("inbounds")
	if !ok {
		return nil, fmt.Errorf("%w: no inbounds", common.ErrorMalformedConfig)
	}
	inbounds, offsets, err := decodeArray(inboundsM.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: inbounds: %v", common.ErrorMalformedConfig, err)
	}
	if len(inbounds) == 0 {
		return nil, fmt.Errorf("%w: inbounds is empty", common.ErrorMalformedConfig)
	}

	inbound, err := decodeObject(inbounds[0])
	if err != nil {
		return nil, fmt.Errorf("%w: inbounds[0]: %v", common.ErrorMalformedConfig, err)
	}

	settingsM, ok := inbound.lookup("settings")
	if !ok {
		return nil, fmt.Errorf("%w: inbounds[0] has no settings", common.ErrorMalformedConfig)
	}
	settings, err := decodeObject(settingsM.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: inbounds[0].settings: %v", common.ErrorMalformedConfig, err)
	}

	d := &Document{
		raw:             append([]byte(nil), data...),
		root:            root,
		inbounds:        inbounds,
		inbound:         inbound,
		settings:        settings,
		trailingNewline: bytes.HasSuffix(data, []byte("\n")),
	}

	clientsM, ok := settings.lookup("clients")
	if !ok {
		return d, nil
	}
	if !isNull(clientsM.Value) {
		items, _, err := decodeArray(clientsM.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: clients: %v", common.ErrorMalformedConfig, err)
		}
		for _, it := range items {
			d.clients = append(d.clients, entry{raw: it})
		}
	}

	// Comments and trailing commas are blanked in place, so offsets into
	// clean are offsets into data.
	if len(clean) == len(data) {
		start := inboundsM.Offset + offsets[0] + settingsM.Offset + clientsM.Offset
		d.span = [2]int{start, start + len(clientsM.Value)}
		d.spliced = true
		d.layout = detectLayout(clean, root, start)
	}
	return d, nil
}

// Raw returns the bytes the document was parsed from.
func (d *Document) Raw() []byte {
	return d.raw
}

// Clients decodes the current client list. Unknown client fields are
// ignored here but preserved on write.
func (d *Document) Clients() ([]Client, error) {
	out := make([]Client, 0, len(d.clients))
	for i, e := range d.clients {
		var c Client
		if err := json.Unmarshal(e.raw, &c); err != nil {
			return nil, fmt.Errorf("%w: clients[%d]: %v", common.ErrorMalformedConfig, i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// HasClient reports whether a client with the given id is present.
func (d *Document) HasClient(id string) bool {
	return d.indexOf(id) >= 0
}

// AddClient appends c to the client list.
func (d *Document) AddClient(c Client) error {
	b, err := encodeNoEscape(c)
	if err != nil {
		return err
	}
	d.clients = append(d.clients, entry{raw: b, fresh: true})
	d.dirty = true
	return nil
}

// RemoveClient drops every client whose id matches and reports whether any
// was found. Other entries keep their exact bytes and order.
func (d *Document) RemoveClient(id string) bool {
	kept := make([]entry, 0, len(d.clients))
	removed := false
	for _, e := range d.clients {
		if clientID(e.raw) == id {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	d.clients = kept
	if removed {
		d.dirty = true
	}
	return removed
}

// RealityPrivateKey returns inbounds[0].streamSettings.realitySettings.privateKey
// or an empty string.
func (d *Document) RealityPrivateKey() string {
	raw, ok := d.inbound.get("streamSettings")
	if !ok {
		return ""
	}
	var ss struct {
		RealitySettings struct {
			PrivateKey string `json:"privateKey"`
		} `json:"realitySettings"`
	}
	if err := json.Unmarshal(raw, &ss); err != nil {
		return ""
	}
	return ss.RealitySettings.PrivateKey
}

// Bytes renders the document. An unchanged document is returned as parsed.
// Otherwise only the client array is rewritten and every byte around it,
// comments included, is kept. A document without a clients key is rebuilt
// with two-space indentation.
func (d *Document) Bytes() ([]byte, error) {
	if !d.dirty {
		return append([]byte(nil), d.raw...), nil
	}
	if !d.spliced {
		return d.rebuild()
	}

	clients, err := d.renderClients()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(d.raw)+len(clients))
	out = append(out, d.raw[:d.span[0]]...)
	out = append(out, clients...)
	out = append(out, d.raw[d.span[1]:]...)
	return out, nil
}

func (d *Document) renderClients() ([]byte, error) {
	if len(d.clients) == 0 {
		return []byte("[]"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	if d.layout.compact {
		for i, e := range d.clients {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(e.raw)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	}

	inner := d.layout.base + d.layout.unit
	for i, e := range d.clients {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n" + inner)
		if !e.fresh {
			buf.Write(e.raw)
			continue
		}
		if err := json.Indent(&buf, e.raw, inner, d.layout.unit); err != nil {
			return nil, err
		}
	}
	buf.WriteString("\n" + d.layout.base + "]")
	return buf.Bytes(), nil
}

func (d *Document) rebuild() ([]byte, error) {
	raws := make([]json.RawMessage, len(d.clients))
	for i, e := range d.clients {
		raws[i] = e.raw
	}
	clients, err := encodeArray(raws)
	if err != nil {
		return nil, err
	}

	settings, err := d.settings.set("clients", clients).encode()
	if err != nil {
		return nil, err
	}
	inbound, err := d.inbound.set("settings", settings).encode()
	if err != nil {
		return nil, err
	}

	inbounds := make([]json.RawMessage, len(d.inbounds))
	copy(inbounds, d.inbounds)
	inbounds[0] = inbound
	rawInbounds, err := encodeArray(inbounds)
	if err != nil {
		return nil, err
	}

	compact, err := d.root.set("inbounds", rawInbounds).encode()
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	if d.trailingNewline {
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

// detectLayout reads the indent step from the document's first key and the
// base indent from the line the client array opens on. A document whose first
// key shares a line with the opening brace is treated as compact.
func detectLayout(data []byte, root object, clientsAt int) layout {
	first := root[0].Offset
	open := bytes.IndexByte(data, '{')
	if open < 0 || bytes.IndexByte(data[open:first], '\n') < 0 {
		return layout{compact: true}
	}
	unit := lineIndent(data, first)
	if unit == "" {
		unit = "  "
	}
	return layout{base: lineIndent(data, clientsAt), unit: unit}
}

// lineIndent returns the leading spaces and tabs of the line holding data[at].
func lineIndent(data []byte, at int) string {
	start := bytes.LastIndexByte(data[:at], '\n') + 1
	end := start
	for end < at && (data[end] == ' ' || data[end] == '\t') {
		end++
	}
	return string(data[start:end])
}

func (d *Document) indexOf(id string) int {
	for i, e := range d.clients {
		if clientID(e.raw) == id {
			return i
		}
	}
	return -1
}

func clientID(raw json.RawMessage) string {
	var c struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return ""
	}
	return c.ID
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
