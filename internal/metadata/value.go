// Package metadata discovers the server facts a connection link needs: the
// externally reachable address and the Reality public key. Lookups are best
// effort and never fail; an unavailable fact is reported as such and the
// caller decides what to render in its place.
package metadata

// Placeholders rendered for unavailable facts.
const (
	AddressPlaceholder   = "YOUR_SERVER_IP"
	PublicKeyPlaceholder = ""
)

// Value is a resolved fact or the marker that resolution failed.
type Value struct {
	Text     string
	Resolved bool
}

func Resolved(text string) Value {
	return Value{Text: text, Resolved: true}
}

func Unavailable() Value {
	return Value{}
}

// Or returns the resolved text or placeholder.
func (v Value) Or(placeholder string) string {
	if v.Resolved {
		return v.Text
	}
	return placeholder
}
