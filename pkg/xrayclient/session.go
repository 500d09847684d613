package xrayclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"xui-api/internal/constants"
)

// session holds the panel session cookie. It is only written under the gate
// but may be read by observers, hence the lock.
type session struct {
	mu     sync.RWMutex
	cookie *http.Cookie
}

func (s *session) get() *http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cookie
}

func (s *session) valid() bool {
	return s.get() != nil
}

func (s *session) set(cookie *http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookie = cookie
}

func (s *session) clear() {
	s.set(nil)
}

// lastCookie picks the session cookie out of a login response. The panel may
// send several Set-Cookie headers; the last non-empty one is authoritative.
func lastCookie(cookies []*http.Cookie) *http.Cookie {
	for i := len(cookies) - 1; i >= 0; i-- {
		if cookies[i] != nil && cookies[i].Value != "" {
			return &http.Cookie{Name: cookies[i].Name, Value: cookies[i].Value}
		}
	}
	return nil
}

// ensureSessionLocked logs in when no session is held. Must run under the gate.
func (c *Client) ensureSessionLocked(ctx context.Context) error {
	if c.session.valid() {
		return nil
	}
	return c.loginLocked(ctx)
}

// loginLocked posts the credentials and stores the returned session cookie.
// Must run under the gate.
func (c *Client) loginLocked(ctx context.Context) error {
	c.session.clear()

	loginURL := strings.TrimSuffix(c.server.APIURL, "/") + constants.LoginPath
	c.debugf("Logging in to x-ui panel at %s", loginURL)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": c.server.User,
			"password": c.server.Password,
		}).
		Post(loginURL)

	if err != nil {
		c.logger.Errorf("Login request failed - URL: %s, Error: %v", loginURL, err)
		return &Error{Kind: KindAuthentication, Operation: "login", Endpoint: constants.LoginPath, Err: err}
	}

	if resp.StatusCode() != http.StatusOK {
		c.logger.Errorf("Login failed - URL: %s, Status: %d", loginURL, resp.StatusCode())
		return &Error{
			Kind:      KindAuthentication,
			Operation: "login",
			Endpoint:  constants.LoginPath,
			Status:    resp.StatusCode(),
			Message:   "unexpected status",
		}
	}

	var apiResp APIResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		c.logger.Errorf("Failed to parse login response: %v", err)
		return &Error{Kind: KindAuthentication, Operation: "login", Endpoint: constants.LoginPath, Status: resp.StatusCode(), Err: err}
	}

	if !apiResp.Success {
		c.logger.Errorf("Login rejected by panel: %s", apiResp.Msg)
		return &Error{Kind: KindAuthentication, Operation: "login", Endpoint: constants.LoginPath, Status: resp.StatusCode(), Message: apiResp.Msg}
	}

	cookie := lastCookie(resp.Cookies())
	if cookie == nil {
		c.logger.Error("No session cookie received from panel")
		return &Error{Kind: KindAuthentication, Operation: "login", Endpoint: constants.LoginPath, Status: resp.StatusCode(), Message: "no session cookie received"}
	}

	c.session.set(cookie)
	c.logger.Info("Successfully logged in to x-ui panel")
	return nil
}
