package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// RESTClient talks to the Lightning node's REST gateway.
type RESTClient struct {
	BaseURL string
	Auth    string

	HTTPClient *http.Client
}

// NewRESTClient creates a node client for the given gateway URL.
func NewRESTClient(baseURL, auth string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		BaseURL:    baseURL,
		Auth:       auth,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) CreateInvoice(ctx context.Context, amountMsat int64, description string,
	expiry time.Duration) (NodeInvoice, error) {

	request := struct {
		AmountMsat  int64  `json:"amount_msat"`
		Description string `json:"description"`
		Expiry      int64  `json:"expiry"`
	}{
		AmountMsat:  amountMsat,
		Description: description,
		Expiry:      int64(expiry.Seconds()),
	}

	var invoice NodeInvoice
	if err := c.post(ctx, "/v1/invoices", request, &invoice); err != nil {
		return NodeInvoice{}, err
	}

	return invoice, nil
}

func (c *RESTClient) GetInvoiceStatus(ctx context.Context,
	paymentHash string) (InvoiceStatus, error) {

	var status InvoiceStatus
	path := "/v1/invoices/" + url.PathEscape(paymentHash)
	if err := c.get(ctx, path, &status); err != nil {
		return InvoiceStatus{}, err
	}

	return status, nil
}

func (c *RESTClient) DecodePaymentRequest(ctx context.Context,
	paymentRequest string) (DecodedPaymentRequest, error) {

	var decoded DecodedPaymentRequest
	path := "/v1/payreq/" + url.PathEscape(paymentRequest)
	if err := c.get(ctx, path, &decoded); err != nil {
		return DecodedPaymentRequest{}, err
	}

	return decoded, nil
}

func (c *RESTClient) get(ctx context.Context, path string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}

	return c.do(req, response)
}

func (c *RESTClient) post(ctx context.Context, path string, request,
	response interface{}) error {

	body, err := json.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path,
		bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, response)
}

func (c *RESTClient) do(req *http.Request, response interface{}) error {
	if len(c.Auth) > 0 {
		req.Header.Set("Authorization", c.Auth)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "node request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("node returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return errors.Wrap(err, "decode node response")
	}

	return nil
}
