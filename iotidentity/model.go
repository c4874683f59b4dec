package iotidentity

import (
	"strconv"
)

// CreateKeysAndCertificateRequest asks for a new key pair and certificate.
type CreateKeysAndCertificateRequest struct{}

// CreateKeysAndCertificateResponse carries the new certificate and its private key.
type CreateKeysAndCertificateResponse struct {
	CertificateID             *string `json:"certificateId,omitempty"`
	CertificatePem            *string `json:"certificatePem,omitempty"`
	PrivateKey                *string `json:"privateKey,omitempty"`
	CertificateOwnershipToken *string `json:"certificateOwnershipToken,omitempty"`
}

// CreateCertificateFromCsrRequest asks for a certificate signed from a CSR.
type CreateCertificateFromCsrRequest struct {
	CertificateSigningRequest *string `json:"certificateSigningRequest,omitempty"`
}

// CreateCertificateFromCsrResponse carries the signed certificate.
type CreateCertificateFromCsrResponse struct {
	CertificateID             *string `json:"certificateId,omitempty"`
	CertificatePem            *string `json:"certificatePem,omitempty"`
	CertificateOwnershipToken *string `json:"certificateOwnershipToken,omitempty"`
}

// RegisterThingRequest provisions a thing from a template.
type RegisterThingRequest struct {
	TemplateName *string `json:"-"`

	CertificateOwnershipToken *string           `json:"certificateOwnershipToken,omitempty"`
	Parameters                map[string]string `json:"parameters,omitempty"`
}

// RegisterThingResponse carries the provisioned thing.
type RegisterThingResponse struct {
	ThingName           *string           `json:"thingName,omitempty"`
	DeviceConfiguration map[string]string `json:"deviceConfiguration,omitempty"`
}

// V2ErrorResponse is the payload of a rejected provisioning request.
type V2ErrorResponse struct {
	StatusCode   *int32  `json:"statusCode,omitempty"`
	ErrorCode    *string `json:"errorCode,omitempty"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
}

// ErrorResponse is the name used by the service model for V2ErrorResponse.
type ErrorResponse = V2ErrorResponse

func (e *V2ErrorResponse) String() string {
	var s string
	switch {
	case e.ErrorCode != nil:
		s = *e.ErrorCode
	case e.StatusCode != nil:
		s = strconv.Itoa(int(*e.StatusCode))
	default:
		s = "unknown"
	}
	if e.ErrorMessage != nil {
		s += ": " + *e.ErrorMessage
	}
	return s
}
