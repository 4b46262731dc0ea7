package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/api/option"

	vkit "cloud.google.com/go/secretmanager/apiv1"
	pb "google.golang.org/genproto/googleapis/cloud/secretmanager/v1"
)

// Client reads secrets from GCP Secret Manager
type Client struct {
	pbc *vkit.Client
}

func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	pbc, err := vkit.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("secretmanager: %w", err)
	}
	return &Client{pbc}, nil
}

type secretOpt struct {
	version string
}

type SecretOption func(s *secretOpt)

func WithVersion(v string) SecretOption {
	return func(s *secretOpt) {
		s.version = v
	}
}

func (c *Client) Close() error {
	return c.pbc.Close()
}

// GetSecret returns the payload of the secret (latest version by default)
func (c *Client) GetSecret(ctx context.Context, project, secretName string, opts ...SecretOption) ([]byte, error) {
	so := secretOpt{
		version: "latest",
	}
	for _, o := range opts {
		o(&so)
	}

	resp, err := c.pbc.AccessSecretVersion(ctx, &pb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, secretName, so.version),
	})
	if err != nil {
		return nil, fmt.Errorf("getsecret %s/%s: %w", project, secretName, err)
	}
	return resp.GetPayload().GetData(), nil
}

// DecodeSecret decodes a json secret into v. Unknown fields are rejected.
func (c *Client) DecodeSecret(ctx context.Context, project, secretName string, v interface{}, opts ...SecretOption) error {
	data, err := c.GetSecret(ctx, project, secretName, opts...)
	if err != nil {
		return err
	}
	return decodeJSON(data, v)
}

func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("json.decode secret: %w", err)
	}
	return nil
}
