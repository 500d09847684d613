// Package testpanel serves an in-memory 3x-ui panel over HTTP for tests.
// It implements the login flow and the inbounds API with the same envelope,
// cookie and path conventions as the real panel, and records every request
// it receives.
package testpanel

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"xui-api/internal/constants"
	"xui-api/pkg/models"
)

// CookieName is the session cookie issued on login
const CookieName = "3x-ui"

// Msg is the response envelope of every panel endpoint
type Msg struct {
	Success bool        `json:"success"`
	Msg     string      `json:"msg"`
	Obj     interface{} `json:"obj"`
}

type inboundState struct {
	inbound models.Inbound
	clients []models.ClientOptions
	stats   []models.ClientStat
}

// Panel is a fake panel. The zero value is not usable; use New.
type Panel struct {
	User     string
	Password string

	mu            sync.Mutex
	inbounds      []*inboundState
	nextInboundID int
	nextStatID    int
	sessions      map[string]bool
	ips           map[string]string
	online        []string
	hits          map[string]int
	failures      map[string][]int

	engine *gin.Engine
	server *httptest.Server
}

// New starts a panel with credentials admin/secret and stops it when the test ends
func New(t testing.TB) *Panel {
	t.Helper()
	gin.SetMode(gin.TestMode)

	p := &Panel{
		User:          "admin",
		Password:      "secret",
		nextInboundID: 1,
		nextStatID:    1,
		sessions:      make(map[string]bool),
		ips:           make(map[string]string),
		online:        []string{},
		hits:          make(map[string]int),
		failures:      make(map[string][]int),
	}

	p.engine = gin.New()
	p.engine.Use(p.record)
	p.engine.POST(constants.LoginPath, p.login)

	api := p.engine.Group(constants.APIRootPath)
	api.Use(p.authorize)
	p.initRouter(api)

	p.server = httptest.NewServer(p.engine)
	t.Cleanup(p.server.Close)
	return p
}

// URI returns the connection URI of the panel, credentials included
func (p *Panel) URI() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, _ := url.Parse(p.server.URL)
	u.User = url.UserPassword(p.User, p.Password)
	return u.String()
}

// URL returns the base URL of the panel
func (p *Panel) URL() string {
	return p.server.URL
}

// Handler returns the panel's router
func (p *Panel) Handler() http.Handler {
	return p.engine
}

// Hits returns how many requests hit a route, e.g. "GET /list" or "POST /login".
// API routes are named relative to the API root, with gin path parameters.
func (p *Panel) Hits(route string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[route]
}

// TotalHits returns how many requests the panel received
func (p *Panel) TotalHits() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, n := range p.hits {
		total += n
	}
	return total
}

// Logins returns how many login requests the panel received
func (p *Panel) Logins() int {
	return p.Hits("POST " + constants.LoginPath)
}

// ResetHits clears the request counters
func (p *Panel) ResetHits() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits = make(map[string]int)
}

// SetPassword changes the panel password. Clients created earlier keep the old one.
func (p *Panel) SetPassword(password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Password = password
}

// ExpireSessions invalidates every issued session cookie
func (p *Panel) ExpireSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = make(map[string]bool)
}

// FailNext makes the next request to route fail. Status 200 answers with
// success=false; any other status answers with a plain text body.
func (p *Panel) FailNext(route string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[route] = append(p.failures[route], status)
}

// SetClientIPs sets the IP record the panel reports for email
func (p *Panel) SetClientIPs(email, record string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ips[email] = record
}

// SetOnline sets the emails reported as online
func (p *Panel) SetOnline(emails ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = append([]string{}, emails...)
}

// SeedInbound stores an inbound with its clients and returns its id. Every
// client gets a traffic record.
func (p *Panel) SeedInbound(inbound models.Inbound, clients ...models.ClientOptions) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	inbound.Settings = inbound.Settings.Clone()
	if inbound.Settings == nil {
		inbound.Settings = models.EmbeddedJSON{}
	}
	delete(inbound.Settings, "clients")

	state := p.insertLocked(inbound)
	for _, client := range clients {
		client.InboundID = state.inbound.ID
		state.clients = append(state.clients, client.Clone())
	}
	p.syncStatsLocked(state)
	return state.inbound.ID
}

// DropStats removes the traffic record of a client, as happens before the
// panel has seen any traffic for a freshly imported client
func (p *Panel) DropStats(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, state := range p.inbounds {
		for i, stat := range state.stats {
			if stat.Email == email {
				state.stats = append(state.stats[:i], state.stats[i+1:]...)
				return
			}
		}
	}
}

// SetTraffic sets the traffic counters of a client
func (p *Panel) SetTraffic(email string, up, down int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if stat := p.statLocked(email); stat != nil {
		stat.Up, stat.Down = up, down
	}
}

// Client returns the stored options of a client, for assertions
func (p *Panel) Client(email string) (models.ClientOptions, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, state := range p.inbounds {
		for _, client := range state.clients {
			if client.Email == email {
				return client.Clone(), true
			}
		}
	}
	return models.ClientOptions{}, false
}

// Inbound returns the stored inbound, for assertions
func (p *Panel) Inbound(id int) (models.Inbound, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state := p.inboundLocked(id); state != nil {
		return state.render(), true
	}
	return models.Inbound{}, false
}

func (p *Panel) record(c *gin.Context) {
	route := c.Request.Method + " " + strings.TrimPrefix(c.FullPath(), constants.APIRootPath)

	p.mu.Lock()
	p.hits[route]++
	var status int
	if pending := p.failures[route]; len(pending) > 0 {
		status = pending[0]
		p.failures[route] = pending[1:]
	}
	p.mu.Unlock()

	switch {
	case status == 0:
		c.Next()
	case status == http.StatusOK:
		c.AbortWithStatusJSON(http.StatusOK, Msg{Success: false, Msg: "injected failure"})
	default:
		c.Data(status, "text/plain; charset=utf-8", []byte(http.StatusText(status)))
		c.Abort()
	}
}

func (p *Panel) authorize(c *gin.Context) {
	token, err := c.Cookie(CookieName)

	p.mu.Lock()
	valid := err == nil && p.sessions[token]
	p.mu.Unlock()

	if !valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, Msg{Success: false, Msg: "unauthorized"})
		return
	}
	c.Next()
}

func (p *Panel) login(c *gin.Context) {
	p.mu.Lock()
	user, password := p.User, p.Password
	p.mu.Unlock()

	if c.PostForm("username") != user || c.PostForm("password") != password {
		c.JSON(http.StatusOK, Msg{Success: false, Msg: "wrong username or password"})
		return
	}

	token := uuid.NewString()
	p.mu.Lock()
	p.sessions[token] = true
	p.mu.Unlock()

	// a stale cookie precedes the live one, as behind some reverse proxies
	http.SetCookie(c.Writer, &http.Cookie{Name: CookieName, Value: "expired-" + token, Path: "/"})
	http.SetCookie(c.Writer, &http.Cookie{Name: CookieName, Value: token, Path: "/", HttpOnly: true})
	c.JSON(http.StatusOK, Msg{Success: true, Msg: "login successfully"})
}

func (p *Panel) insertLocked(inbound models.Inbound) *inboundState {
	inbound.ID = p.nextInboundID
	p.nextInboundID++
	if inbound.Tag == "" {
		inbound.Tag = "inbound-" + inbound.Listen + ":" + strconv.Itoa(inbound.Port)
	}
	inbound.ClientStats = nil

	state := &inboundState{inbound: inbound}
	p.inbounds = append(p.inbounds, state)
	return state
}

func (p *Panel) inboundLocked(id int) *inboundState {
	for _, state := range p.inbounds {
		if state.inbound.ID == id {
			return state
		}
	}
	return nil
}

func (p *Panel) statLocked(email string) *models.ClientStat {
	for _, state := range p.inbounds {
		for i := range state.stats {
			if state.stats[i].Email == email {
				return &state.stats[i]
			}
		}
	}
	return nil
}

// syncStatsLocked gives every client a traffic record, keeps the counters of
// existing ones and drops records of removed clients
func (p *Panel) syncStatsLocked(state *inboundState) {
	existing := make(map[string]models.ClientStat, len(state.stats))
	for _, stat := range state.stats {
		existing[stat.Email] = stat
	}

	stats := make([]models.ClientStat, 0, len(state.clients))
	for _, client := range state.clients {
		stat, ok := existing[client.Email]
		if !ok {
			stat = models.ClientStat{ID: p.nextStatID, InboundID: state.inbound.ID, Email: client.Email}
			p.nextStatID++
		}
		stat.Enable = client.Enable
		stat.ExpiryTime = client.ExpiryTime
		stat.Total = client.TotalGB
		stats = append(stats, stat)
	}
	state.stats = stats
}

func (s *inboundState) render() models.Inbound {
	out := s.inbound.Clone()
	if out.Settings == nil {
		out.Settings = models.EmbeddedJSON{}
	}

	clients := make([]interface{}, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client.Clone())
	}
	out.Settings["clients"] = clients
	out.ClientStats = append([]models.ClientStat{}, s.stats...)
	return out
}
