package testpanel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"xui-api/internal/constants"
	"xui-api/pkg/models"
)

var errNotFound = errors.New("record not found")

// clientSettings is the body of addClient and updateClient
type clientSettings struct {
	ID       int                 `json:"id"`
	Settings models.EmbeddedJSON `json:"settings"`
}

func (s clientSettings) clients() ([]models.ClientOptions, error) {
	return models.Inbound{ID: s.ID, Settings: s.Settings}.Clients()
}

func (p *Panel) initRouter(g *gin.RouterGroup) {
	g.GET("/list", p.getInbounds)
	g.GET("/get/:id", p.getInbound)
	g.GET("/getClientTraffics/:email", p.getClientTraffics)
	g.GET("/createbackup", p.createBackup)

	g.POST("/add", p.addInbound)
	g.POST("/del/:id", p.delInbound)
	g.POST("/update/:id", p.updateInbound)
	g.POST("/clientIps/:email", p.getClientIps)
	g.POST("/clearClientIps/:email", p.clearClientIps)
	g.POST("/addClient", p.addInboundClient)
	g.POST("/:id/delClient/:clientId", p.delInboundClient)
	g.POST("/updateClient/:clientId", p.updateInboundClient)
	g.POST("/:id/resetClientTraffic/:email", p.resetClientTraffic)
	g.POST("/resetAllTraffics", p.resetAllTraffics)
	g.POST("/resetAllClientTraffics/:id", p.resetAllClientTraffics)
	g.POST("/delDepletedClients/:id", p.delDepletedClients)
	g.POST("/onlines", p.onlines)
}

func jsonMsg(c *gin.Context, msg string, err error) {
	jsonMsgObj(c, msg, nil, err)
}

func jsonObj(c *gin.Context, obj interface{}, err error) {
	jsonMsgObj(c, "", obj, err)
}

func jsonMsgObj(c *gin.Context, msg string, obj interface{}, err error) {
	m := Msg{Obj: obj}
	if err == nil {
		m.Success = true
		m.Msg = msg
	} else {
		m.Msg = msg + " (" + err.Error() + ")"
	}
	c.JSON(http.StatusOK, m)
}

func bindBody(c *gin.Context, v interface{}) error {
	data, err := c.GetRawData()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (p *Panel) getInbounds(c *gin.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inbounds := make([]models.Inbound, 0, len(p.inbounds))
	for _, state := range p.inbounds {
		inbounds = append(inbounds, state.render())
	}
	jsonObj(c, inbounds, nil)
}

func (p *Panel) getInbound(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		jsonMsg(c, "get", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.inboundLocked(id)
	if state == nil {
		jsonMsg(c, "obtain failed", errNotFound)
		return
	}
	jsonObj(c, state.render(), nil)
}

func (p *Panel) getClientTraffics(c *gin.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stat := p.statLocked(c.Param("email"))
	if stat == nil {
		jsonObj(c, nil, nil)
		return
	}
	jsonObj(c, *stat, nil)
}

func (p *Panel) createBackup(c *gin.Context) {
	jsonMsg(c, "backup sent", nil)
}

func (p *Panel) addInbound(c *gin.Context) {
	var inbound models.Inbound
	if err := bindBody(c, &inbound); err != nil {
		jsonMsg(c, "create failed", err)
		return
	}

	clients, err := inbound.Clients()
	if err != nil {
		jsonMsg(c, "create failed", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, client := range clients {
		if p.emailTakenLocked(client.Email, "") {
			jsonMsg(c, "create failed", fmt.Errorf("duplicate email: %s", client.Email))
			return
		}
	}

	delete(inbound.Settings, "clients")
	state := p.insertLocked(inbound)
	for _, client := range clients {
		client.InboundID = state.inbound.ID
		state.clients = append(state.clients, client)
	}
	p.syncStatsLocked(state)

	jsonMsgObj(c, "create successfully", state.render(), nil)
}

func (p *Panel) delInbound(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		jsonMsg(c, "delete failed", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, state := range p.inbounds {
		if state.inbound.ID == id {
			p.inbounds = append(p.inbounds[:i], p.inbounds[i+1:]...)
			jsonMsgObj(c, "delete successfully", id, nil)
			return
		}
	}
	jsonMsg(c, "delete failed", errNotFound)
}

func (p *Panel) updateInbound(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		jsonMsg(c, "update failed", err)
		return
	}

	var inbound models.Inbound
	if err := bindBody(c, &inbound); err != nil {
		jsonMsg(c, "update failed", err)
		return
	}

	clients, err := inbound.Clients()
	if err != nil {
		jsonMsg(c, "update failed", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.inboundLocked(id)
	if state == nil {
		jsonMsg(c, "update failed", errNotFound)
		return
	}

	delete(inbound.Settings, "clients")
	inbound.ID = id
	inbound.Up = state.inbound.Up
	inbound.Down = state.inbound.Down
	inbound.ClientStats = nil
	if inbound.Tag == "" {
		inbound.Tag = state.inbound.Tag
	}

	state.inbound = inbound
	state.clients = clients
	p.syncStatsLocked(state)

	jsonMsgObj(c, "update successfully", state.render(), nil)
}

func (p *Panel) getClientIps(c *gin.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, ok := p.ips[c.Param("email")]
	if !ok || record == "" {
		record = constants.NoIPRecord
	}
	jsonObj(c, record, nil)
}

func (p *Panel) clearClientIps(c *gin.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.ips, c.Param("email"))
	jsonMsg(c, "log cleared", nil)
}

func (p *Panel) addInboundClient(c *gin.Context) {
	var body clientSettings
	if err := bindBody(c, &body); err != nil {
		jsonMsg(c, "add client failed", err)
		return
	}

	clients, err := body.clients()
	if err != nil {
		jsonMsg(c, "add client failed", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.inboundLocked(body.ID)
	if state == nil {
		jsonMsg(c, "add client failed", errNotFound)
		return
	}

	for _, client := range clients {
		if p.emailTakenLocked(client.Email, "") {
			jsonMsg(c, "add client failed", fmt.Errorf("duplicate email: %s", client.Email))
			return
		}
	}

	state.clients = append(state.clients, clients...)
	p.syncStatsLocked(state)
	jsonMsg(c, "client(s) added", nil)
}

func (p *Panel) delInboundClient(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		jsonMsg(c, "delete client failed", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.inboundLocked(id)
	if state == nil {
		jsonMsg(c, "delete client failed", errNotFound)
		return
	}

	clientID := c.Param("clientId")
	for i, client := range state.clients {
		if client.Identifier.Value == clientID {
			state.clients = append(state.clients[:i], state.clients[i+1:]...)
			p.syncStatsLocked(state)
			jsonMsg(c, "client deleted", nil)
			return
		}
	}
	jsonMsg(c, "delete client failed", fmt.Errorf("client %s not found", clientID))
}

func (p *Panel) updateInboundClient(c *gin.Context) {
	var body clientSettings
	if err := bindBody(c, &body); err != nil {
		jsonMsg(c, "update client failed", err)
		return
	}

	clients, err := body.clients()
	if err != nil || len(clients) != 1 {
		jsonMsg(c, "update client failed", fmt.Errorf("expected exactly one client: %v", err))
		return
	}
	updated := clients[0]

	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.inboundLocked(body.ID)
	if state == nil {
		jsonMsg(c, "update client failed", errNotFound)
		return
	}

	clientID := c.Param("clientId")
	for i, client := range state.clients {
		if client.Identifier.Value != clientID {
			continue
		}
		if updated.Email != client.Email && p.emailTakenLocked(updated.Email, client.Email) {
			jsonMsg(c, "update client failed", fmt.Errorf("duplicate email: %s", updated.Email))
			return
		}
		for j := range state.stats {
			if state.stats[j].Email == client.Email {
				state.stats[j].Email = updated.Email
			}
		}
		state.clients[i] = updated
		p.syncStatsLocked(state)
		jsonMsg(c, "client updated", nil)
		return
	}
	jsonMsg(c, "update client failed", fmt.Errorf("client %s not found", clientID))
}

func (p *Panel) resetClientTraffic(c *gin.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stat := p.statLocked(c.Param("email"))
	if stat == nil {
		jsonMsg(c, "reset traffic failed", errNotFound)
		return
	}
	stat.Up, stat.Down = 0, 0
	jsonMsg(c, "traffic reset", nil)
}

func (p *Panel) resetAllTraffics(c *gin.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, state := range p.inbounds {
		state.inbound.Up, state.inbound.Down = 0, 0
	}
	jsonMsg(c, "all traffic reset", nil)
}

func (p *Panel) resetAllClientTraffics(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		jsonMsg(c, "reset traffic failed", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, state := range p.inbounds {
		if id != constants.AllInbounds && state.inbound.ID != id {
			continue
		}
		for i := range state.stats {
			state.stats[i].Up, state.stats[i].Down = 0, 0
		}
	}
	jsonMsg(c, "client traffic reset", nil)
}

// delDepletedClients removes clients whose traffic is used up or whose expiry has passed
func (p *Panel) delDepletedClients(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		jsonMsg(c, "delete depleted clients failed", err)
		return
	}

	now := time.Now().UnixMilli()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, state := range p.inbounds {
		if id != constants.AllInbounds && state.inbound.ID != id {
			continue
		}

		depleted := make(map[string]bool)
		for _, stat := range state.stats {
			exhausted := stat.Total > 0 && stat.Up+stat.Down >= stat.Total
			expired := stat.ExpiryTime > 0 && stat.ExpiryTime <= now
			if exhausted || expired {
				depleted[stat.Email] = true
			}
		}

		kept := state.clients[:0]
		for _, client := range state.clients {
			if !depleted[client.Email] {
				kept = append(kept, client)
			}
		}
		state.clients = kept
		p.syncStatsLocked(state)
	}
	jsonMsg(c, "depleted clients deleted", nil)
}

func (p *Panel) onlines(c *gin.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	jsonObj(c, append([]string{}, p.online...), nil)
}

// emailTakenLocked reports whether any client other than except uses email
func (p *Panel) emailTakenLocked(email, except string) bool {
	for _, state := range p.inbounds {
		for _, client := range state.clients {
			if client.Email == email && client.Email != except {
				return true
			}
		}
	}
	return false
}
