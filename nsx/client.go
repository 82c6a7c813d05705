// Package nsx is the typed client for the network-virtualization manager
// API. The control-plane core consumes it through narrow per-package
// interfaces so tests can substitute fakes.
package nsx

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v3"
	"github.com/pkg/errors"
)

const (
	apiPrefix      = "/api/v1"
	maxErrorBody   = 4096
	defaultRetries = 4
)

// Config holds the connection parameters for the manager.
type Config struct {
	// Endpoint is the manager base URL, e.g. https://nsx-mgr:443.
	Endpoint string
	Username string
	Password string
	Insecure bool
}

// Validate checks the config is suitable for building a client.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint must not be empty")
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		return errors.Wrap(err, "parsing endpoint")
	}
	return nil
}

// Client talks to the manager. All calls are blocking round-trips; temporary
// manager errors are retried with backoff, everything else surfaces to the
// caller as-is.
type Client struct {
	httpClient *http.Client
	base       string
	username   string
	password   string
}

// NewClient returns an initialized Client using the provided configuration.
func NewClient(c Config) (*Client, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}

	transport := http.DefaultTransport
	if c.Insecure {
		transport = &http.Transport{
			// nolint:gosec // deployments with self-signed manager certs opt in explicitly
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		base:       c.Endpoint + apiPrefix,
		username:   c.Username,
		password:   c.Password,
	}, nil
}

// GetTransportZone retrieves a transport zone's type and switch mode.
func (c *Client) GetTransportZone(ctx context.Context, id string) (TransportZone, error) {
	var out TransportZone
	err := c.do(ctx, http.MethodGet, "/transport-zones/"+id, nil, &out)
	return out, err
}

// GetLogicalSwitch retrieves an existing logical switch.
func (c *Client) GetLogicalSwitch(ctx context.Context, id string) (LogicalSwitch, error) {
	var out LogicalSwitch
	err := c.do(ctx, http.MethodGet, "/logical-switches/"+id, nil, &out)
	return out, err
}

// CreateLogicalSwitch realizes a network on the fabric.
func (c *Client) CreateLogicalSwitch(ctx context.Context, req CreateLogicalSwitchRequest) (LogicalSwitch, error) {
	var out LogicalSwitch
	if err := req.Validate(); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/logical-switches", req, &out)
	return out, err
}

// DeleteLogicalSwitch removes a logical switch and everything attached to it.
func (c *Client) DeleteLogicalSwitch(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/logical-switches/"+id+"?cascade=true&detach=true", nil, nil)
}

// CreateLogicalPort attaches an entity to a logical switch.
func (c *Client) CreateLogicalPort(ctx context.Context, req CreateLogicalPortRequest) (LogicalPort, error) {
	var out LogicalPort
	if err := req.Validate(); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/logical-ports", req, &out)
	return out, err
}

// DeleteLogicalPort removes a logical port. A missing port surfaces as a
// NotFound Error for the caller to tolerate.
func (c *Client) DeleteLogicalPort(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/logical-ports/"+id+"?detach=true", nil, nil)
}

// CreateDhcpServer provisions a logical DHCP server.
func (c *Client) CreateDhcpServer(ctx context.Context, req CreateDhcpServerRequest) (DhcpServer, error) {
	var out DhcpServer
	if err := req.Validate(); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/dhcp/servers", req, &out)
	return out, err
}

// DeleteDhcpServer removes a logical DHCP server.
func (c *Client) DeleteDhcpServer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/dhcp/servers/"+id, nil, nil)
}

// CreateDhcpStaticBinding pins a port's address under a DHCP server and
// returns the backend binding id.
func (c *Client) CreateDhcpStaticBinding(ctx context.Context, serverID string, req CreateDhcpStaticBindingRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	var out DhcpStaticBinding
	path := fmt.Sprintf("/dhcp/servers/%s/static-bindings", serverID)
	err := c.do(ctx, http.MethodPost, path, req, &out)
	return out.ID, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var encoded []byte
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		encoded = buf
	}

	err := retry.Do(
		func() error {
			var payload io.Reader
			if encoded != nil {
				payload = bytes.NewReader(encoded)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
			if err != nil {
				return errors.Wrap(err, "building request")
			}
			req.Header.Set("Content-Type", "application/json")
			if c.username != "" {
				req.SetBasicAuth(c.username, c.password)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return errors.Wrap(err, "executing request")
			}
			defer resp.Body.Close()

			if resp.StatusCode >= http.StatusBadRequest {
				return readError(resp)
			}
			if out != nil {
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					return errors.Wrap(err, "decoding response")
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(defaultRetries),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var e Error
			return errors.As(err, &e) && e.Temporary()
		}),
	)
	return err // nolint:wrapcheck // wrapping this just introduces noise
}

func readError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		body = []byte("<unreadable>")
	}
	return Error{Code: resp.StatusCode, Body: body}
}
