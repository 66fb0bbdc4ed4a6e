package collector

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

type fakeConn struct{ net.Conn }

func (fakeConn) Close() error { return nil }

func TestConnectedFirstProbeWins(t *testing.T) {
	var dialed []string
	c := &InternetChecker{
		hosts:   []string{"8.8.8.8:53", "1.1.1.1:53"},
		timeout: time.Second,
		dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialed = append(dialed, addr)
			return fakeConn{}, nil
		},
	}
	if !c.Connected(context.Background()) {
		t.Fatal("expected connected")
	}
	if len(dialed) != 1 {
		t.Fatalf("dialed %v, want a single probe", dialed)
	}
}

func TestConnectedFallsThroughProbes(t *testing.T) {
	var dialed []string
	c := &InternetChecker{
		hosts:   []string{"8.8.8.8:53", "1.1.1.1:53", "208.67.222.222:53"},
		timeout: time.Second,
		dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialed = append(dialed, addr)
			if addr == "208.67.222.222:53" {
				return fakeConn{}, nil
			}
			return nil, errors.New("unreachable")
		},
	}
	if !c.Connected(context.Background()) {
		t.Fatal("expected connected via last probe")
	}
	if len(dialed) != 3 {
		t.Fatalf("dialed %v, want all three probes", dialed)
	}
}

func TestDisconnected(t *testing.T) {
	c := &InternetChecker{
		hosts:   []string{"8.8.8.8:53"},
		timeout: time.Second,
		dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, errors.New("no route to host")
		},
	}
	if c.Connected(context.Background()) {
		t.Fatal("expected disconnected")
	}
}
