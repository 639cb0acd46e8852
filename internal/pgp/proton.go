package pgp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const protonLookupTimeout = 5 * time.Second

var ErrNotProtonAddress = errors.New("pgp: not a Proton Mail address")

// ProtonClient fetches published keys from Proton Mail's key server.
type ProtonClient struct {
	client    *resty.Client
	lookupURL string
}

func NewProtonClient(lookupURL string) *ProtonClient {
	return &ProtonClient{
		client:    resty.New().SetTimeout(protonLookupTimeout),
		lookupURL: lookupURL,
	}
}

// Lookup returns the armored key Proton publishes for email. A non-200
// reply means Proton does not host the address.
func (c *ProtonClient) Lookup(ctx context.Context, email string) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"op":     "get",
			"search": email,
		}).
		Get(c.lookupURL)
	if err != nil {
		return "", fmt.Errorf("proton key lookup: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", ErrNotProtonAddress
	}
	return resp.String(), nil
}
