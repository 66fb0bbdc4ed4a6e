package collector

import (
	"context"
	"net"
	"time"
)

// defaultProbeHosts are public DNS servers; reaching any one of them counts
// as having connectivity.
var defaultProbeHosts = []string{"8.8.8.8:53", "1.1.1.1:53", "208.67.222.222:53"}

// InternetChecker probes connectivity by opening a TCP connection to
// well-known resolvers.
type InternetChecker struct {
	hosts   []string
	timeout time.Duration
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewInternetChecker() *InternetChecker {
	d := &net.Dialer{}
	return &InternetChecker{
		hosts:   defaultProbeHosts,
		timeout: 3 * time.Second,
		dial:    d.DialContext,
	}
}

// Connected returns true as soon as one probe host accepts a connection.
func (c *InternetChecker) Connected(ctx context.Context) bool {
	for _, h := range c.hosts {
		dctx, cancel := context.WithTimeout(ctx, c.timeout)
		conn, err := c.dial(dctx, "tcp", h)
		cancel()
		if err != nil {
			continue
		}
		_ = conn.Close()
		return true
	}
	return false
}
