package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// APIError is a non-2xx reply from the reconciliation backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Status, e.Body)
}

// Client is the typed access layer for the external reconciliation
// backend. It is stateless apart from the response cache.
type Client struct {
	baseURL string
	http    *http.Client
	creds   TokenProvider
	cache   *responseCache
	log     *logrus.Logger
}

func NewClient(baseURL string, creds TokenProvider, cacheTTL time.Duration, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		creds:   creds,
		cache:   newResponseCache(cacheTTL),
		log:     log,
	}
}

func (c *Client) ListBatches(ctx context.Context) ([]RawBatch, error) {
	if cached, ok := c.cache.get("batches"); ok {
		return cached.([]RawBatch), nil
	}
	var batches []RawBatch
	if err := c.getJSON(ctx, "/api/batches", nil, &batches); err != nil {
		return nil, err
	}
	c.cache.put("batches", batches)
	return batches, nil
}

func (c *Client) GetBatch(ctx context.Context, id int64) (RawBatch, error) {
	key := fmt.Sprintf("batch:%d", id)
	if cached, ok := c.cache.get(key); ok {
		return cached.(RawBatch), nil
	}
	var batch RawBatch
	if err := c.getJSON(ctx, fmt.Sprintf("/api/batches/%d", id), nil, &batch); err != nil {
		return RawBatch{}, err
	}
	c.cache.put(key, batch)
	return batch, nil
}

func (c *Client) ListRecords(ctx context.Context, batchID int64, status string, resolved *bool) ([]RawRecord, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if resolved != nil {
		params.Set("resolved", fmt.Sprintf("%t", *resolved))
	}
	key := fmt.Sprintf("records:%d:%s", batchID, params.Encode())
	if cached, ok := c.cache.get(key); ok {
		return cached.([]RawRecord), nil
	}
	var records []RawRecord
	if err := c.getJSON(ctx, fmt.Sprintf("/api/batches/%d/records", batchID), params, &records); err != nil {
		return nil, err
	}
	c.cache.put(key, records)
	return records, nil
}

func (c *Client) RetryBatch(ctx context.Context, id int64) error {
	return c.postJSON(ctx, fmt.Sprintf("/api/batches/%d/retry", id), nil, nil)
}

func (c *Client) ResolveRecord(ctx context.Context, id int64, comment string, resolve bool) error {
	payload := map[string]any{
		"comment": comment,
		"resolve": resolve,
	}
	return c.postJSON(ctx, fmt.Sprintf("/api/records/%d/resolve", id), payload, nil)
}

// UploadReconciliationBatch forwards both source files plus their template
// selections as multipart form data and returns the created batch id.
func (c *Client) UploadReconciliationBatch(ctx context.Context, backofficeName string, backoffice io.Reader, vendorName string, vendor io.Reader, backofficeTemplateID, vendorTemplateID int64) (int64, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("backofficeFile", backofficeName)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(part, backoffice); err != nil {
		return 0, err
	}
	part, err = form.CreateFormFile("vendorFile", vendorName)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(part, vendor); err != nil {
		return 0, err
	}
	_ = form.WriteField("backofficeTemplateId", fmt.Sprintf("%d", backofficeTemplateID))
	_ = form.WriteField("vendorTemplateId", fmt.Sprintf("%d", vendorTemplateID))
	if err := form.Close(); err != nil {
		return 0, err
	}

	body, err := c.do(ctx, http.MethodPost, "/api/reconciliation/upload", form.FormDataContentType(), &buf)
	if err != nil {
		return 0, err
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, err
	}
	c.InvalidateBatches()
	return parsed.BatchID, nil
}

// Forward relays an opaque request (user/role/template/auth CRUD) to the
// backend and hands back status, content type, and body verbatim.
func (c *Client) Forward(ctx context.Context, method, path, contentType string, body io.Reader) (int, string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, "", nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.authorize(ctx, req); err != nil {
		return 0, "", nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", nil, err
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), respBody, nil
}

func (c *Client) InvalidateBatches() {
	c.cache.invalidatePrefix("batches")
	c.cache.invalidatePrefix("batch:")
}

func (c *Client) InvalidateBatch(id int64) {
	c.cache.invalidatePrefix(fmt.Sprintf("batch:%d", id))
	c.cache.invalidatePrefix("batches")
}

func (c *Client) InvalidateRecords(batchID int64) {
	c.cache.invalidatePrefix(fmt.Sprintf("records:%d", batchID))
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	body, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	body, err := c.do(ctx, http.MethodPost, path, "application/json", reader)
	if err != nil {
		return err
	}
	if out != nil && len(body) > 0 {
		return json.Unmarshal(body, out)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
