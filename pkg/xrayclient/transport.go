package xrayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"xui-api/internal/constants"
)

// APIResponse is the envelope every panel endpoint answers with
type APIResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// retryIdempotent retries only GET requests that failed before a response
// arrived. Writes are never replayed by the transport.
func retryIdempotent(r *resty.Response, err error) bool {
	if err == nil || r == nil || r.Request == nil {
		return false
	}
	return r.Request.Method == http.MethodGet
}

func sessionRejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// apiPath joins the inbounds API root with path segments, escaping each
func apiPath(segments ...string) string {
	p := constants.APIRootPath
	for _, segment := range segments {
		p += "/" + url.PathEscape(segment)
	}
	return p
}

// routable reports whether a value survives as a single path segment. The
// panel router matches on the decoded path, so an escaped slash still splits.
func routable(segment string) bool {
	return !strings.Contains(segment, "/")
}

// callLocked sends an authenticated request and unwraps the envelope. A
// rejected session is renewed and the request replayed exactly once.
// Must run under the gate.
func (c *Client) callLocked(ctx context.Context, op, method, endpoint string, body interface{}) (json.RawMessage, error) {
	if err := c.ensureSessionLocked(ctx); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		c.logger.Errorf("%s request failed - %s %s: %v", op, method, endpoint, err)
		return nil, &Error{Kind: KindTransport, Operation: op, Endpoint: endpoint, Err: err}
	}

	if sessionRejected(resp.StatusCode()) {
		c.logger.Warnf("Session rejected on %s %s, logging in again", method, endpoint)
		if err := c.loginLocked(ctx); err != nil {
			return nil, err
		}

		resp, err = c.send(ctx, method, endpoint, body)
		if err != nil {
			c.logger.Errorf("%s request failed - %s %s: %v", op, method, endpoint, err)
			return nil, &Error{Kind: KindTransport, Operation: op, Endpoint: endpoint, Err: err}
		}
		if sessionRejected(resp.StatusCode()) {
			c.session.clear()
			c.logger.Errorf("%s failed - session rejected again on %s %s", op, method, endpoint)
			return nil, &Error{Kind: KindAuthentication, Operation: op, Endpoint: endpoint, Status: resp.StatusCode(), Message: "session rejected after login"}
		}
	}

	return c.unwrap(op, method, endpoint, resp)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body interface{}) (*resty.Response, error) {
	c.debugf("%s %s", method, endpoint)

	req := c.httpClient.R().SetContext(ctx)
	if cookie := c.session.get(); cookie != nil {
		req.SetCookie(cookie)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	return req.Execute(method, endpoint)
}

func (c *Client) unwrap(op, method, endpoint string, resp *resty.Response) (json.RawMessage, error) {
	var apiResp APIResponse
	decodeErr := json.Unmarshal(resp.Body(), &apiResp)

	if resp.StatusCode() != http.StatusOK {
		c.logger.Errorf("%s failed - %s %s, Status: %d, Response: %s", op, method, endpoint, resp.StatusCode(), string(resp.Body()))
		if decodeErr != nil {
			return nil, &Error{Kind: KindTransport, Operation: op, Endpoint: endpoint, Status: resp.StatusCode(), Message: "unexpected status"}
		}
		return nil, &Error{Kind: KindProtocol, Operation: op, Endpoint: endpoint, Status: resp.StatusCode(), Message: apiResp.Msg}
	}

	if decodeErr != nil {
		c.logger.Errorf("Failed to parse %s response: %v", op, decodeErr)
		return nil, &Error{Kind: KindProtocol, Operation: op, Endpoint: endpoint, Status: resp.StatusCode(), Message: "malformed response", Err: decodeErr}
	}

	if !apiResp.Success {
		c.debugf("%s rejected by panel: %s", op, apiResp.Msg)
		return nil, &Error{Kind: KindProtocol, Operation: op, Endpoint: endpoint, Status: resp.StatusCode(), Message: apiResp.Msg}
	}

	return apiResp.Obj, nil
}

// isNull reports whether obj carries no value
func isNull(obj json.RawMessage) bool {
	trimmed := bytes.TrimSpace(obj)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeObj decodes the envelope payload of a successful call
func decodeObj(op, endpoint string, obj json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(obj, v); err != nil {
		return &Error{Kind: KindProtocol, Operation: op, Endpoint: endpoint, Message: "unexpected payload", Err: err}
	}
	return nil
}
