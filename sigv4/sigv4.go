// Package sigv4 builds SigV4 presigned websocket URLs for connecting to
// AWS IoT Core with IAM credentials.
package sigv4

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/vitalvas/awsiot"
)

// ServiceName is the signing name of the AWS IoT device gateway.
const ServiceName = "iotdevicegateway"

// sha256 of the empty payload
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// PresignURL returns wss://{endpoint}/mqtt signed for region at now.
// The session token, when present, is appended after signing as the
// device gateway expects.
func PresignURL(ctx context.Context, endpoint, region string, creds aws.Credentials, now time.Time) (string, error) {
	if endpoint == "" {
		return "", awsiot.NewMissingFieldError("endpoint")
	}
	if region == "" {
		return "", awsiot.NewMissingFieldError("region")
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return "", fmt.Errorf("%w: credentials are incomplete", awsiot.ErrInvalidOptions)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "wss://"+endpoint+"/mqtt", nil)
	if err != nil {
		return "", fmt.Errorf("build websocket request: %w", err)
	}

	token := creds.SessionToken
	creds.SessionToken = ""

	signed, _, err := v4.NewSigner().PresignHTTP(ctx, creds, req, emptyPayloadHash, ServiceName, region, now.UTC())
	if err != nil {
		return "", fmt.Errorf("presign websocket url: %w", err)
	}

	if token != "" {
		signed += "&X-Amz-Security-Token=" + url.QueryEscape(token)
	}
	return signed, nil
}

// Presigner signs a fresh URL for every connection attempt.
type Presigner struct {
	endpoint    string
	region      string
	credentials aws.CredentialsProvider
	now         func() time.Time
}

// NewPresigner creates a presigner for endpoint in region.
func NewPresigner(endpoint, region string, credentials aws.CredentialsProvider) *Presigner {
	return &Presigner{
		endpoint:    endpoint,
		region:      region,
		credentials: credentials,
		now:         time.Now,
	}
}

// Presign retrieves current credentials and signs a websocket URL.
func (p *Presigner) Presign(ctx context.Context) (string, error) {
	if p.credentials == nil {
		return "", fmt.Errorf("%w: no credentials provider", awsiot.ErrInvalidOptions)
	}

	creds, err := p.credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("retrieve credentials: %w", err)
	}
	return PresignURL(ctx, p.endpoint, p.region, creds, p.now())
}

// LoadPresigner resolves region and credentials with the default AWS
// configuration chain.
func LoadPresigner(ctx context.Context, endpoint string, optFns ...func(*config.LoadOptions) error) (*Presigner, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		return nil, awsiot.NewMissingFieldError("region")
	}
	return NewPresigner(endpoint, cfg.Region, cfg.Credentials), nil
}

// LoadPresignedURL signs a websocket URL with the default AWS configuration chain.
func LoadPresignedURL(ctx context.Context, endpoint string, optFns ...func(*config.LoadOptions) error) (string, error) {
	p, err := LoadPresigner(ctx, endpoint, optFns...)
	if err != nil {
		return "", err
	}
	return p.Presign(ctx)
}
