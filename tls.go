package awsiot

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ALPN protocol names accepted by AWS IoT on port 443.
const (
	ALPNMQTT = "x-amzn-mqtt-ca"
	ALPNHTTP = "x-amzn-http-ca"
)

// Default AWS IoT data plane ports.
const (
	PortMQTT    = 8883
	PortHTTPS   = 8443
	PortALPN    = 443
	PortDefault = PortMQTT
)

// NewTLSConfig builds a mutual TLS configuration from PEM files.
// caFile is optional; the system pool is used when it is empty.
func NewTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// WithALPN returns a copy of cfg advertising protocol, for connecting on port 443.
func WithALPN(cfg *tls.Config, protocol string) *tls.Config {
	out := cfg.Clone()
	if out == nil {
		out = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	out.NextProtos = []string{protocol}
	return out
}
