package awsiot

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestCertificate(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "dev-1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,

		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func TestNewTLSConfig(t *testing.T) {
	certFile, keyFile := writeTestCertificate(t)

	t.Run("client certificate only", func(t *testing.T) {
		cfg, err := NewTLSConfig(certFile, keyFile, "")
		require.NoError(t, err)
		assert.Len(t, cfg.Certificates, 1)
		assert.Nil(t, cfg.RootCAs)
		assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	})

	t.Run("custom ca", func(t *testing.T) {
		cfg, err := NewTLSConfig(certFile, keyFile, certFile)
		require.NoError(t, err)
		assert.NotNil(t, cfg.RootCAs)
	})

	t.Run("missing files", func(t *testing.T) {
		_, err := NewTLSConfig("/nonexistent/cert.pem", keyFile, "")
		assert.Error(t, err)

		_, err = NewTLSConfig(certFile, keyFile, "/nonexistent/ca.pem")
		assert.Error(t, err)
	})

	t.Run("ca without certificates", func(t *testing.T) {
		_, err := NewTLSConfig(certFile, keyFile, keyFile)
		assert.Error(t, err)
	})
}

func TestWithALPN(t *testing.T) {
	base := &tls.Config{ServerName: "example"}
	cfg := WithALPN(base, ALPNMQTT)

	assert.Equal(t, []string{"x-amzn-mqtt-ca"}, cfg.NextProtos)
	assert.Equal(t, "example", cfg.ServerName)
	assert.Empty(t, base.NextProtos)

	assert.Equal(t, []string{ALPNHTTP}, WithALPN(nil, ALPNHTTP).NextProtos)
}
