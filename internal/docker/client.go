package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client speaks the Docker Engine API over the unix socket, enough for the
// bot's container listing and lifecycle commands.
type Client struct {
	http *http.Client
}

type ContainerSummary struct {
	ID     string            `json:"Id"`
	Names  []string          `json:"Names"`
	Image  string            `json:"Image"`
	State  string            `json:"State"`
	Status string            `json:"Status"`
	Labels map[string]string `json:"Labels"`
}

type ContainerInspect struct {
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	RestartCount int    `json:"RestartCount"`
	State        struct {
		StartedAt string `json:"StartedAt"`
		Status    string `json:"Status"`
	} `json:"State"`
}

func NewClient(socketPath string) *Client {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{http: &http.Client{Transport: transport, Timeout: 30 * time.Second}}
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/_ping", nil)
	return err
}

func (c *Client) ListContainers(ctx context.Context) ([]ContainerSummary, error) {
	b, err := c.do(ctx, http.MethodGet, "/containers/json?all=1", nil)
	if err != nil {
		return nil, err
	}
	var out []ContainerSummary
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) InspectContainer(ctx context.Context, id string) (ContainerInspect, error) {
	b, err := c.do(ctx, http.MethodGet, "/containers/"+id+"/json", nil)
	if err != nil {
		return ContainerInspect{}, err
	}
	var out ContainerInspect
	if err := json.Unmarshal(b, &out); err != nil {
		return ContainerInspect{}, err
	}
	return out, nil
}

func (c *Client) StartContainer(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/start", nil)
	return err
}

func (c *Client) StopContainer(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/stop", nil)
	return err
}

func (c *Client) RestartContainer(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/restart", nil)
	return err
}

// Name returns a container's display name, preferring the compose service
// label.
func (s ContainerSummary) Name() string {
	if v := s.Labels["com.docker.compose.service"]; v != "" {
		return v
	}
	if len(s.Names) > 0 {
		return strings.TrimPrefix(s.Names[0], "/")
	}
	if len(s.ID) >= 12 {
		return s.ID[:12]
	}
	return s.ID
}

func (c *Client) do(ctx context.Context, method, p string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+p, reader)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(b))
		if msg == "" {
			msg = res.Status
		}
		return nil, fmt.Errorf("docker api %s %s failed: %s", method, p, msg)
	}
	return b, nil
}
