// Package secrets retrieves credentials from Google Secret Manager.
package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// Accessor fetches a secret value by name. The chat path fetches the LLM
// credential through this on every request, so tests can count calls.
type Accessor interface {
	AccessSecret(ctx context.Context, name string) (string, error)
}

type Client struct {
	client  *secretmanager.Client
	project string
}

func NewClient(ctx context.Context, credentialFile, project string) (*Client, error) {
	var opts []option.ClientOption
	if credentialFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialFile))
	}
	smc, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.WithMessage(err, "couldn't create secret manager client")
	}
	return &Client{client: smc, project: project}, nil
}

// AccessSecret returns the latest version of the named secret, trimmed of
// surrounding whitespace.
func (c *Client) AccessSecret(ctx context.Context, name string) (string, error) {
	resp, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.project, name),
	})
	if err != nil {
		return "", errors.WithMessagef(err, "couldn't access secret %s", name)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
