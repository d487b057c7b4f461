// Package descriptor renders the shareable vless:// connection link.
package descriptor

import (
	"strconv"
	"strings"

	"github.com/dmitrijs2005/vlesskeeper/internal/metadata"
)

// Scheme of every link produced here.
const Scheme = "vless"

// Profile is the transport and security parameter set baked into links.
type Profile struct {
	Port        int
	Encryption  string
	Flow        string
	Security    string
	SNI         string
	Fingerprint string
	ShortID     string
	Transport   string
	HeaderType  string
}

// Reality is the only profile the server is set up with.
var Reality = Profile{
	Port:        443,
	Encryption:  "none",
	Flow:        "xtls-rprx-vision",
	Security:    "reality",
	SNI:         "yandex.ru",
	Fingerprint: "chrome",
	ShortID:     "0123456789abcdef",
	Transport:   "tcp",
	HeaderType:  "none",
}

// Input holds the per-user and per-server parts of a link.
type Input struct {
	Identity  string
	Username  string
	Address   metadata.Value
	PublicKey metadata.Value
}

// Build renders the link for in using the Reality profile. Unavailable
// metadata is replaced by its placeholder; the result is then syntactically
// valid but will not connect.
func Build(in Input) string {
	return Reality.Build(in)
}

// Build renders the link for in. Inputs are not validated or escaped; the
// username is a display-only fragment ignored by the proxy.
func (p Profile) Build(in Input) string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString("://")
	b.WriteString(in.Identity)
	b.WriteByte('@')
	b.WriteString(in.Address.Or(metadata.AddressPlaceholder))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(p.Port))
	b.WriteByte('?')

	params := [][2]string{
		{"encryption", p.Encryption},
		{"flow", p.Flow},
		{"security", p.Security},
		{"sni", p.SNI},
		{"fp", p.Fingerprint},
		{"pbk", in.PublicKey.Or(metadata.PublicKeyPlaceholder)},
		{"sid", p.ShortID},
		{"type", p.Transport},
		{"headerType", p.HeaderType},
	}
	for i, kv := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(kv[1])
	}

	b.WriteByte('#')
	b.WriteString(in.Username)
	return b.String()
}
