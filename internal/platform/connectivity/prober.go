// Package connectivity answers whether the service can currently reach its backing store's network.
package connectivity

import (
	"context"
	"net"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const defaultTimeout = time.Second

// Prober dials a TCP target, honouring ALL_PROXY/NO_PROXY, to decide whether the network is up.
type Prober struct {
	target  string
	timeout time.Duration
	dialer  proxy.Dialer
}

// NewProber builds a prober for host:port. An empty target makes the prober always report online.
func NewProber(target string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Prober{
		target:  strings.TrimSpace(target),
		timeout: timeout,
		dialer:  proxy.FromEnvironmentUsing(&net.Dialer{Timeout: timeout}),
	}
}

// Online reports whether a connection to the target could be opened within the timeout.
func (p *Prober) Online(ctx context.Context) bool {
	if p == nil || p.target == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if cd, ok := p.dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", p.target)
	} else {
		conn, err = p.dialer.Dial("tcp", p.target)
	}
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
