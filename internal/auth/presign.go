package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// emptyPayloadHash is the SHA-256 of an empty body.
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// BrokerConfig locates the realtime broker's WebSocket endpoint.
type BrokerConfig struct {
	Endpoint string // host name
	Path     string // usually /mqtt
	Service  string // SigV4 service name, iotdevicegateway
	Region   string
}

// PresignBrokerURL returns a wss:// URL for the broker signed with SigV4
// query parameters.
//
// The broker expects the session token to be left out of the signed query
// and appended afterwards as X-Amz-Security-Token. Signing it in is
// rejected.
func PresignBrokerURL(ctx context.Context, creds aws.Credentials, broker BrokerConfig, now time.Time) (string, error) {
	u := url.URL{Scheme: "https", Host: broker.Endpoint, Path: broker.Path}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("building broker request: %w", err)
	}

	token := creds.SessionToken
	creds.SessionToken = ""

	signed, _, err := v4.NewSigner().PresignHTTP(ctx, creds, req, emptyPayloadHash, broker.Service, broker.Region, now.UTC())
	if err != nil {
		return "", fmt.Errorf("signing broker url: %w", err)
	}

	out, err := url.Parse(signed)
	if err != nil {
		return "", fmt.Errorf("parsing signed url: %w", err)
	}
	out.Scheme = "wss"
	if token != "" {
		out.RawQuery += "&X-Amz-Security-Token=" + url.QueryEscape(token)
	}
	return out.String(), nil
}
