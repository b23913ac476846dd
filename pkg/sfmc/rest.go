package sfmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	httpclient "github.com/natserract/sfmc/pkg/http"
	"go.uber.org/zap"
)

const defaultPageSize = 50

// restPage is the platform's standard collection envelope. Endpoints
// that return a single entity have no items member; those responses are
// passed through as one opaque record.
type restPage struct {
	Count    int               `json:"count"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Items    []json.RawMessage `json:"items"`
}

// doREST issues one request with the bearer token attached. A 401 forces
// a token refresh and retries once; a second 401 surfaces as RestError
// without a further refresh loop.
func (c *Client) doREST(ctx context.Context, method, url string, body any) (*httpclient.Response, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, url, token, body)
	if err != nil {
		return nil, wrapTimeout("rest "+method, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Info("REST request unauthorized, refreshing token and retrying once",
			zap.String("method", method), zap.String("url", url))
		c.invalidateToken(token)

		token, err = c.Token(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, method, url, token, body)
		if err != nil {
			return nil, wrapTimeout("rest "+method, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("REST request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(resp.Body)))
		return nil, &RestError{Status: resp.StatusCode, Body: string(resp.Body)}
	}

	if c.config.Debug {
		c.logger.Debug("REST response", zap.String("url", url), zap.ByteString("body", resp.Body))
	}

	return resp, nil
}

func (c *Client) send(ctx context.Context, method, url, token string, body any) (*httpclient.Response, error) {
	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
		"Content-Type":  "application/json",
	}
	return c.httpClient.Do(httpclient.RequestOptions{
		Method:  method,
		URL:     url,
		Headers: headers,
		Body:    body,
		Context: ctx,
	})
}

// GetPage fetches one page of a collection endpoint. Pass a zero
// Continuation for the first page (honoring any $page in params); the
// returned continuation carries the next page number when more data
// remains. This is the streaming-level API under Get.
func (c *Client) GetPage(ctx context.Context, path string, params map[string]string, cont Continuation) (*Result, error) {
	query := make(map[string]string, len(params)+1)
	for k, v := range params {
		query[k] = v
	}
	if !cont.Done() {
		query["$page"] = cont.Token()
	}

	url, err := httpclient.BuildURL(c.config.RestBaseURL, path, query)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	resp, err := c.doREST(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var page restPage
	if err := json.Unmarshal(resp.Body, &page); err != nil || page.Items == nil {
		// Not a collection envelope: surface the whole body as one record.
		var single Record
		if err := json.Unmarshal(resp.Body, &single); err != nil {
			return nil, fmt.Errorf("failed to parse response from %s: %w", path, err)
		}
		return &Result{Records: []Record{single}, Status: "OK"}, nil
	}

	records := make([]Record, 0, len(page.Items))
	for _, raw := range page.Items {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse item from %s: %w", path, err)
		}
		records = append(records, rec)
	}

	result := &Result{Records: records, Status: "OK"}

	pageSize := page.PageSize
	if pageSize == 0 {
		pageSize = pageSizeFrom(query)
	}
	pageNum := page.Page
	if pageNum == 0 {
		pageNum = pageNumFrom(query)
	}

	// More pages remain unless the page came back short, empty, or the
	// total count says we have everything.
	exhausted := len(records) == 0 ||
		(pageSize > 0 && len(records) < pageSize) ||
		(page.Count > 0 && pageSize > 0 && pageNum*pageSize >= page.Count)
	if !exhausted {
		result.Continuation = More(strconv.Itoa(pageNum + 1))
	}

	return result, nil
}

func pageSizeFrom(params map[string]string) int {
	if v, err := strconv.Atoi(params["$pagesize"]); err == nil && v > 0 {
		return v
	}
	return defaultPageSize
}

func pageNumFrom(params map[string]string) int {
	if v, err := strconv.Atoi(params["$page"]); err == nil && v > 0 {
		return v
	}
	return 1
}

// Get fetches a REST resource. Pagination parameters ($page, $pagesize)
// and passthrough parameters ($filter, $fields, $orderBy) go in params.
// With morerow every page is drained into one ordered result; without it
// the first page and its continuation are returned. Cancellation between
// pages returns what accumulated so far with Partial set.
func (c *Client) Get(ctx context.Context, path string, params map[string]string, morerow bool) (*Result, error) {
	c.logger.Debug("Performing REST GET", zap.String("path", path), zap.Bool("morerow", morerow))

	page, err := c.GetPage(ctx, path, params, Continuation{})
	if err != nil {
		return nil, err
	}
	if !morerow {
		return page, nil
	}

	all := page.Records
	cont := page.Continuation
	for !cont.Done() {
		if ctx.Err() != nil {
			c.logger.Warn("GET cancelled between pages",
				zap.String("path", path),
				zap.Int("records_so_far", len(all)))
			return &Result{Records: all, Status: "OK", Partial: true}, nil
		}

		page, err = c.GetPage(ctx, path, params, cont)
		if err != nil {
			// Cancellation mid-sequence keeps what we have.
			if ctx.Err() != nil {
				return &Result{Records: all, Status: "OK", Partial: true}, nil
			}
			return nil, err
		}
		all = append(all, page.Records...)
		cont = page.Continuation
	}

	c.logger.Info("Retrieved REST records", zap.String("path", path), zap.Int("count", len(all)))
	return &Result{Records: all, Status: "OK"}, nil
}

// Post creates a REST resource and returns the decoded response body.
func (c *Client) Post(ctx context.Context, path string, payload any) (Record, error) {
	return c.write(ctx, http.MethodPost, path, payload)
}

// Put replaces a REST resource and returns the decoded response body.
func (c *Client) Put(ctx context.Context, path string, payload any) (Record, error) {
	return c.write(ctx, http.MethodPut, path, payload)
}

// Patch partially updates a REST resource and returns the decoded
// response body.
func (c *Client) Patch(ctx context.Context, path string, payload any) (Record, error) {
	return c.write(ctx, http.MethodPatch, path, payload)
}

func (c *Client) write(ctx context.Context, method, path string, payload any) (Record, error) {
	c.logger.Debug("Performing REST write", zap.String("method", method), zap.String("path", path))

	url, err := httpclient.BuildURL(c.config.RestBaseURL, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	resp, err := c.doREST(ctx, method, url, payload)
	if err != nil {
		return nil, err
	}

	if len(resp.Body) == 0 {
		return Record{}, nil
	}
	var rec Record
	if err := json.Unmarshal(resp.Body, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return rec, nil
}

// DeleteRest deletes a REST resource and returns the HTTP status code.
func (c *Client) DeleteRest(ctx context.Context, path string) (int, error) {
	c.logger.Debug("Performing REST DELETE", zap.String("path", path))

	url, err := httpclient.BuildURL(c.config.RestBaseURL, path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build URL: %w", err)
	}

	resp, err := c.doREST(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}
