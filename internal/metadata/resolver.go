package metadata

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/vlesskeeper/internal/cryptox"
	"github.com/dmitrijs2005/vlesskeeper/internal/logging"
	"github.com/dmitrijs2005/vlesskeeper/internal/netx"
)

// PublicKeyMarker prefixes the public key line in the setup artifact.
const PublicKeyMarker = "Public Key:"

// DefaultEchoURL answers with the caller's public address as plain text.
const DefaultEchoURL = "https://ifconfig.me"

// DefaultTimeout bounds the address echo request.
const DefaultTimeout = 5 * time.Second

// PrivateKeySource yields the Reality private key configured on the proxy.
type PrivateKeySource interface {
	RealityPrivateKey(ctx context.Context) (string, error)
}

// Options configures a Resolver. Zero values select the defaults above.
type Options struct {
	// EchoURL is queried for the public address unless StaticAddress is set.
	EchoURL       string
	Timeout       time.Duration
	StaticAddress string

	// ServerInfoPath is the text file holding the PublicKeyMarker line.
	ServerInfoPath string

	// KeySource, when set, is used to derive the public key if the
	// artifact does not carry one.
	KeySource PrivateKeySource

	HTTPClient *http.Client
}

type Resolver struct {
	opts   Options
	logger logging.Logger
}

func NewResolver(opts Options, logger logging.Logger) *Resolver {
	if opts.EchoURL == "" {
		opts.EchoURL = DefaultEchoURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Resolver{opts: opts, logger: logger.With("module", "metadata")}
}

// ResolveAddress returns the server's public address.
func (r *Resolver) ResolveAddress(ctx context.Context) Value {
	if r.opts.StaticAddress != "" {
		return Resolved(r.opts.StaticAddress)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	addr, err := netx.FetchText(ctx, r.opts.HTTPClient, r.opts.EchoURL)
	if err != nil {
		r.logger.Warn(ctx, "address lookup failed", "url", r.opts.EchoURL, "error", err)
		return Unavailable()
	}
	if addr == "" || strings.ContainsAny(addr, " \t\r\n<>") {
		r.logger.Warn(ctx, "address lookup returned unusable body", "url", r.opts.EchoURL)
		return Unavailable()
	}
	if ip := net.ParseIP(addr); ip != nil && ip.To4() == nil {
		// IPv6 literals need brackets inside a URI authority.
		addr = "[" + addr + "]"
	}
	return Resolved(addr)
}

// ResolvePublicKey returns the Reality public key from the setup artifact,
// falling back to deriving it from the proxy's private key when configured.
func (r *Resolver) ResolvePublicKey(ctx context.Context) Value {
	if key, err := r.readArtifact(); err != nil {
		r.logger.Warn(ctx, "server info unreadable", "path", r.opts.ServerInfoPath, "error", err)
	} else if key != "" {
		return Resolved(key)
	} else {
		r.logger.Warn(ctx, "public key marker not found", "path", r.opts.ServerInfoPath)
	}

	if r.opts.KeySource == nil {
		return Unavailable()
	}

	priv, err := r.opts.KeySource.RealityPrivateKey(ctx)
	if err != nil || priv == "" {
		r.logger.Warn(ctx, "no reality private key to derive from", "error", err)
		return Unavailable()
	}
	pub, err := cryptox.PublicKeyFromPrivate(priv)
	if err != nil {
		r.logger.Warn(ctx, "public key derivation failed", "error", err)
		return Unavailable()
	}
	r.logger.Debug(ctx, "public key derived from reality private key")
	return Resolved(pub)
}

func (r *Resolver) readArtifact() (string, error) {
	f, err := os.Open(r.opts.ServerInfoPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ScanPublicKey(f)
}

// ScanPublicKey returns the token following PublicKeyMarker on the first
// line that contains it, or "" when no line does.
func ScanPublicKey(rd io.Reader) (string, error) {
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		line := sc.Text()
		idx := strings.LastIndex(line, PublicKeyMarker)
		if idx < 0 {
			continue
		}
		return strings.TrimSpace(line[idx+len(PublicKeyMarker):]), nil
	}
	return "", sc.Err()
}
