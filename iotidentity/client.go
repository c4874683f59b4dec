// Package iotidentity is a client for the AWS IoT fleet provisioning MQTT API.
//
// Provisioning replies carry no correlation token, so each operation is
// matched by its response topic alone. Concurrent calls of the same
// operation complete in publish order.
package iotidentity

import (
	"context"

	"github.com/vitalvas/awsiot"
	"github.com/vitalvas/awsiot/internal/servicev2"
	"github.com/vitalvas/awsiot/reqresp"
)

// ClientV2 runs provisioning requests through a request/response engine.
// Request errors are *awsiot.ServiceError[V2ErrorResponse].
type ClientV2 struct {
	rr reqresp.RequestResponseClient
}

// NewClientV2 creates a provisioning client.
func NewClientV2(rr reqresp.RequestResponseClient) *ClientV2 {
	return &ClientV2{rr: rr}
}

func request[R any](ctx context.Context, c *ClientV2, publishTopic string, body any) (*R, error) {
	payload, err := servicev2.Encode(body)
	if err != nil {
		return nil, err
	}

	return servicev2.Do[R, V2ErrorResponse](ctx, c.rr, &servicev2.Exchange{
		PublishTopic: publishTopic,
		Filters:      []string{publishTopic + "/accepted", publishTopic + "/rejected"},
		Payload:      payload,
	})
}

// CreateKeysAndCertificate creates a key pair and a certificate signed by the AWS IoT CA.
func (c *ClientV2) CreateKeysAndCertificate(ctx context.Context, req *CreateKeysAndCertificateRequest) (*CreateKeysAndCertificateResponse, error) {
	return request[CreateKeysAndCertificateResponse](ctx, c, "$aws/certificates/create/json", req)
}

// CreateCertificateFromCsr creates a certificate from a certificate signing request.
func (c *ClientV2) CreateCertificateFromCsr(ctx context.Context, req *CreateCertificateFromCsrRequest) (*CreateCertificateFromCsrResponse, error) {
	return request[CreateCertificateFromCsrResponse](ctx, c, "$aws/certificates/create-from-csr/json", req)
}

// RegisterThing provisions a thing with the named provisioning template.
func (c *ClientV2) RegisterThing(ctx context.Context, req *RegisterThingRequest) (*RegisterThingResponse, error) {
	if err := servicev2.Require(servicev2.Field("templateName", req.TemplateName)); err != nil {
		return nil, err
	}

	topic := awsiot.JoinTopic("$aws/provisioning-templates", *req.TemplateName, "provision", "json")
	return request[RegisterThingResponse](ctx, c, topic, req)
}
