package models

import (
	"encoding/json"
	"fmt"
)

// Protocol represents the protocol of an inbound
type Protocol string

// Known inbound protocols. Any other string is accepted as is.
const (
	VMess        Protocol = "vmess"
	VLESS        Protocol = "vless"
	Trojan       Protocol = "trojan"
	Shadowsocks  Protocol = "shadowsocks"
	DokodemoDoor Protocol = "dokodemo-door"
	Socks        Protocol = "socks"
	HTTPS        Protocol = "https"
)

// IdentifierKind returns the kind of client identifier the protocol uses,
// or zero for protocols without per-client credentials.
func (p Protocol) IdentifierKind() IdentifierKind {
	switch p {
	case VMess, VLESS:
		return IdentifierUUID
	case Trojan, Shadowsocks:
		return IdentifierPassword
	default:
		return 0
	}
}

// Inbound represents an inbound as returned by the panel
type Inbound struct {
	ID             int          `json:"id"`
	Up             int64        `json:"up"`
	Down           int64        `json:"down"`
	Total          int64        `json:"total"`
	Remark         string       `json:"remark"`
	Enable         bool         `json:"enable"`
	ExpiryTime     int64        `json:"expiryTime"`
	ClientStats    []ClientStat `json:"clientStats"`
	Listen         string       `json:"listen"`
	Port           int          `json:"port"`
	Protocol       Protocol     `json:"protocol"`
	Settings       EmbeddedJSON `json:"settings"`
	StreamSettings EmbeddedJSON `json:"streamSettings"`
	Tag            string       `json:"tag"`
	Sniffing       EmbeddedJSON `json:"sniffing"`

	// Extra keeps panel fields this package does not model so that
	// updates write them back untouched.
	Extra map[string]json.RawMessage `json:"-"`
}

type inboundAlias Inbound

var inboundKnownFields = map[string]bool{
	"id": true, "up": true, "down": true, "total": true, "remark": true,
	"enable": true, "expiryTime": true, "clientStats": true, "listen": true,
	"port": true, "protocol": true, "settings": true, "streamSettings": true,
	"tag": true, "sniffing": true,
}

// UnmarshalJSON decodes an inbound and keeps unknown fields in Extra
func (i *Inbound) UnmarshalJSON(data []byte) error {
	var alias inboundAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*i = Inbound(alias)
	i.Extra = extraFields(raw, inboundKnownFields)
	if i.Settings == nil {
		i.Settings = EmbeddedJSON{}
	}
	if i.StreamSettings == nil {
		i.StreamSettings = EmbeddedJSON{}
	}
	if i.Sniffing == nil {
		i.Sniffing = EmbeddedJSON{}
	}
	return nil
}

// MarshalJSON encodes the inbound in wire form, Extra fields included
func (i Inbound) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(inboundAlias(i))
	if err != nil {
		return nil, err
	}
	return mergeExtra(known, i.Extra)
}

// RawClients returns the undecoded entries of settings.clients
func (i Inbound) RawClients() ([]json.RawMessage, error) {
	rawClients, ok := i.Settings["clients"]
	if !ok || rawClients == nil {
		return nil, nil
	}

	data, err := json.Marshal(rawClients)
	if err != nil {
		return nil, fmt.Errorf("failed to encode clients of inbound %d: %w", i.ID, err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode clients of inbound %d: %w", i.ID, err)
	}
	return entries, nil
}

// DecodeClient decodes one settings.clients entry and marks it as owned by
// the inbound
func (i Inbound) DecodeClient(entry json.RawMessage) (ClientOptions, error) {
	var client ClientOptions
	if err := json.Unmarshal(entry, &client); err != nil {
		return ClientOptions{}, fmt.Errorf("failed to decode client of inbound %d: %w", i.ID, err)
	}
	client.InboundID = i.ID
	return client, nil
}

// Clients decodes settings.clients. Inbounds without clients yield an empty slice.
func (i Inbound) Clients() ([]ClientOptions, error) {
	entries, err := i.RawClients()
	if err != nil {
		return nil, err
	}

	clients := make([]ClientOptions, 0, len(entries))
	for _, entry := range entries {
		client, err := i.DecodeClient(entry)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}

// Clone returns a deep copy
func (i Inbound) Clone() Inbound {
	out := i
	if i.ClientStats != nil {
		out.ClientStats = make([]ClientStat, len(i.ClientStats))
		copy(out.ClientStats, i.ClientStats)
	}
	out.Settings = i.Settings.Clone()
	out.StreamSettings = i.StreamSettings.Clone()
	out.Sniffing = i.Sniffing.Clone()
	out.Extra = cloneRaw(i.Extra)
	return out
}

// Apply returns a copy of the inbound with every non-nil field of the patch set
func (i Inbound) Apply(p InboundPatch) Inbound {
	out := i.Clone()
	if p.Enable != nil {
		out.Enable = *p.Enable
	}
	if p.Remark != nil {
		out.Remark = *p.Remark
	}
	if p.Listen != nil {
		out.Listen = *p.Listen
	}
	if p.Port != nil {
		out.Port = *p.Port
	}
	if p.Protocol != nil {
		out.Protocol = *p.Protocol
	}
	if p.ExpiryTime != nil {
		out.ExpiryTime = *p.ExpiryTime
	}
	if p.Total != nil {
		out.Total = *p.Total
	}
	if p.Settings != nil {
		out.Settings = p.Settings.Clone()
	}
	if p.StreamSettings != nil {
		out.StreamSettings = p.StreamSettings.Clone()
	}
	if p.Sniffing != nil {
		out.Sniffing = p.Sniffing.Clone()
	}
	return out
}

// ClientStat represents the live traffic record of a client
type ClientStat struct {
	ID         int    `json:"id"`
	InboundID  int    `json:"inboundId"`
	Enable     bool   `json:"enable"`
	Email      string `json:"email"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	ExpiryTime int64  `json:"expiryTime"`
	Total      int64  `json:"total"`
	Reset      int64  `json:"reset"`
}

// InboundOptions is the payload used to create an inbound
type InboundOptions struct {
	Enable         bool         `json:"enable"`
	Remark         string       `json:"remark"`
	Listen         string       `json:"listen"`
	Port           int          `json:"port"`
	Protocol       Protocol     `json:"protocol"`
	ExpiryTime     int64        `json:"expiryTime"`
	Total          int64        `json:"total"`
	Settings       EmbeddedJSON `json:"settings"`
	StreamSettings EmbeddedJSON `json:"streamSettings"`
	Sniffing       EmbeddedJSON `json:"sniffing"`
}

// InboundPatch holds a partial inbound update. Nil fields are left untouched.
type InboundPatch struct {
	Enable         *bool
	Remark         *string
	Listen         *string
	Port           *int
	Protocol       *Protocol
	ExpiryTime     *int64
	Total          *int64
	Settings       EmbeddedJSON
	StreamSettings EmbeddedJSON
	Sniffing       EmbeddedJSON
}

// Ptr returns a pointer to v, handy for building patches
func Ptr[T any](v T) *T {
	return &v
}

func extraFields(raw map[string]json.RawMessage, known map[string]bool) map[string]json.RawMessage {
	var extra map[string]json.RawMessage
	for k, v := range raw {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra
}

func mergeExtra(known []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return known, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

func cloneRaw(raw map[string]json.RawMessage) map[string]json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
