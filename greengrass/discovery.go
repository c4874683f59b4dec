package greengrass

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/vitalvas/awsiot"
)

// ErrDiscoveryFailed is matched by every *DiscoveryError.
var ErrDiscoveryFailed = errors.New("greengrass discovery failed")

// DiscoveryError is returned when the discovery endpoint answers with a
// status other than 200.
type DiscoveryError struct {
	StatusCode int
	Body       string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("greengrass discovery failed: status %d", e.StatusCode)
}

func (e *DiscoveryError) Unwrap() error { return ErrDiscoveryFailed }

// DiscoverResponse lists the Greengrass groups the thing belongs to.
type DiscoverResponse struct {
	GGGroups []GGGroup `json:"GGGroups,omitempty"`
}

// GGGroup is a Greengrass group with its cores and certificate authorities.
type GGGroup struct {
	GGGroupID *string  `json:"GGGroupId,omitempty"`
	Cores     []GGCore `json:"Cores,omitempty"`
	CAs       []string `json:"CAs,omitempty"`
}

// GGCore is a Greengrass core device and the endpoints it can be reached on.
type GGCore struct {
	ThingArn     *string            `json:"thingArn,omitempty"`
	Connectivity []ConnectivityInfo `json:"Connectivity,omitempty"`
}

// ConnectivityInfo is one endpoint of a core.
type ConnectivityInfo struct {
	ID          *string `json:"Id,omitempty"`
	HostAddress *string `json:"HostAddress,omitempty"`
	PortNumber  *uint16 `json:"PortNumber,omitempty"`
	Metadata    *string `json:"Metadata,omitempty"`
}

type discoveryOptions struct {
	host    string
	port    int
	alpn    bool
	proxy   *ProxyDialer
	timeout time.Duration
	logger  awsiot.Logger
}

// DiscoveryOption configures a DiscoveryClient.
type DiscoveryOption func(*discoveryOptions)

// WithDiscoveryEndpoint overrides the regional endpoint host and port.
func WithDiscoveryEndpoint(host string, port int) DiscoveryOption {
	return func(o *discoveryOptions) {
		o.host = host
		o.port = port
	}
}

// WithoutALPN connects on port 8443 instead of negotiating ALPN on port 443.
func WithoutALPN() DiscoveryOption {
	return func(o *discoveryOptions) {
		o.alpn = false
		if o.port == awsiot.PortALPN {
			o.port = awsiot.PortHTTPS
		}
	}
}

// WithProxy routes discovery requests through an HTTP CONNECT or SOCKS5 proxy.
func WithProxy(d *ProxyDialer) DiscoveryOption {
	return func(o *discoveryOptions) {
		o.proxy = d
	}
}

// WithDiscoveryTimeout bounds a whole discovery request. Default is 30s.
func WithDiscoveryTimeout(d time.Duration) DiscoveryOption {
	return func(o *discoveryOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithDiscoveryLogger sets the client logger.
func WithDiscoveryLogger(logger awsiot.Logger) DiscoveryOption {
	return func(o *discoveryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// DiscoveryClient looks up the Greengrass cores a thing can connect to.
type DiscoveryClient struct {
	http    *http.Client
	baseURL string
	logger  awsiot.Logger
}

// NewDiscoveryClient creates a client for the region's discovery endpoint.
// tlsConfig must carry the thing's certificate.
func NewDiscoveryClient(region string, tlsConfig *tls.Config, opts ...DiscoveryOption) (*DiscoveryClient, error) {
	if region == "" {
		return nil, awsiot.NewMissingFieldError("region")
	}
	if tlsConfig == nil {
		return nil, fmt.Errorf("%w: tls config is required", awsiot.ErrInvalidOptions)
	}

	o := &discoveryOptions{
		host:    "greengrass-ats.iot." + region + ".amazonaws.com",
		port:    awsiot.PortALPN,
		alpn:    true,
		timeout: 30 * time.Second,
		logger:  awsiot.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := tlsConfig.Clone()
	if o.alpn && o.port == awsiot.PortALPN {
		cfg = awsiot.WithALPN(cfg, awsiot.ALPNHTTP)
	}
	if cfg.ServerName == "" {
		cfg.ServerName = o.host
	}

	transport := &http.Transport{
		TLSClientConfig:     cfg,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        2,
		IdleConnTimeout:     90 * time.Second,
	}
	if o.proxy != nil {
		transport.DialContext = o.proxy.DialContext
	}

	return &DiscoveryClient{
		http:    &http.Client{Transport: transport, Timeout: o.timeout},
		baseURL: "https://" + net.JoinHostPort(o.host, strconv.Itoa(o.port)),
		logger:  o.logger,
	}, nil
}

// Discover returns the connectivity information of the cores thingName may use.
func (c *DiscoveryClient) Discover(ctx context.Context, thingName string) (*DiscoverResponse, error) {
	if thingName == "" {
		return nil, awsiot.NewMissingFieldError("thingName")
	}

	endpoint := c.baseURL + "/greengrass/discover/thing/" + url.PathEscape(thingName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read discovery response: %w", err)
	}

	c.logger.Debug("discovery response", awsiot.LogFields{
		awsiot.LogFieldThingName: thingName,
		awsiot.LogFieldStatus:    resp.StatusCode,
		awsiot.LogFieldDuration:  time.Since(start).String(),
	})

	if resp.StatusCode != http.StatusOK {
		return nil, &DiscoveryError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	out := &DiscoverResponse{}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("%w: %w", awsiot.ErrPayloadParse, err)
	}
	return out, nil
}

// Close releases idle connections.
func (c *DiscoveryClient) Close() {
	c.http.CloseIdleConnections()
}
