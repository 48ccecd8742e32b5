// Package lookup detects customer identifiers embedded in chat messages and
// resolves them against the customer data API.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// TypeCPF marks a result resolved from an 11-digit national tax identifier.
	TypeCPF = "CPF"
	// TypeCustomerID marks a result resolved from a 6-9 digit customer identifier.
	TypeCustomerID = "ID"
)

var (
	cpfPattern        = regexp.MustCompile(`\b\d{11}\b`)
	customerIDPattern = regexp.MustCompile(`\b\d{6,9}\b`)
)

// Result is a typed customer lookup hit.
type Result struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Dispatcher scans free text for a customer identifier and resolves it.
// A nil Result means either no identifier was found or the remote lookup
// did not return a usable record; callers treat both the same.
type Dispatcher interface {
	Lookup(ctx context.Context, message string) *Result
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Lookup tries the CPF pattern first, then the customer ID pattern. Only the
// first matching pattern is attempted: a CPF match whose remote call fails
// does not fall through to the ID pattern.
func (c *Client) Lookup(ctx context.Context, message string) *Result {
	if cpf := cpfPattern.FindString(message); cpf != "" {
		return c.fetch(ctx, TypeCPF, fmt.Sprintf("%s/busca-cliente/%s", c.BaseURL, cpf))
	}

	if customerID := customerIDPattern.FindString(message); customerID != "" {
		return c.fetch(ctx, TypeCustomerID, fmt.Sprintf("%s/cliente-completo/%s", c.BaseURL, customerID))
	}

	return nil
}

func (c *Client) fetch(ctx context.Context, resultType, url string) *Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.WithError(err).Warn("couldn't build customer lookup request")
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.WithError(err).Warn("customer lookup failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).Debug("customer lookup returned no result")
		return nil
	}

	var data interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.WithError(err).Warn("couldn't decode customer lookup response")
		return nil
	}

	return &Result{Type: resultType, Data: data}
}
