package models

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// IdentifierKind tells which wire field carries a client's protocol identifier
type IdentifierKind int

const (
	// IdentifierUUID is the "id" field used by vmess and vless clients
	IdentifierUUID IdentifierKind = iota + 1
	// IdentifierPassword is the "password" field used by trojan and shadowsocks clients
	IdentifierPassword
)

// String returns the wire field name of the kind
func (k IdentifierKind) String() string {
	switch k {
	case IdentifierUUID:
		return "id"
	case IdentifierPassword:
		return "password"
	default:
		return "unknown"
	}
}

// Identifier is the protocol-specific identifier of a client
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// UUID builds a uuid identifier
func UUID(value string) Identifier {
	return Identifier{Kind: IdentifierUUID, Value: value}
}

// Password builds a password identifier
func Password(value string) Identifier {
	return Identifier{Kind: IdentifierPassword, Value: value}
}

// IsZero reports whether the identifier is unset
func (i Identifier) IsZero() bool {
	return i.Kind == 0 || i.Value == ""
}

func (i Identifier) String() string {
	return i.Value
}

// ErrMissingIdentifier is returned when client options carry neither id nor password
var ErrMissingIdentifier = errors.New("client has neither id nor password")

// ErrAmbiguousIdentifier is returned when client options carry both id and password
var ErrAmbiguousIdentifier = errors.New("client has both id and password")

// TelegramID is the optional telegram user id of a client. The panel has
// shipped it both as a number and as a string.
type TelegramID int64

// UnmarshalJSON accepts numbers, numeric strings and the empty string
func (t *TelegramID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*t = 0
		return nil
	}

	text := string(trimmed)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			*t = 0
			return nil
		}
	}

	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tgId %s: %w", text, err)
	}
	*t = TelegramID(id)
	return nil
}

// ClientOptions is the configuration record of a client embedded in its
// inbound's settings.clients array. Exactly one identifier kind is set.
type ClientOptions struct {
	Identifier Identifier
	Email      string
	LimitIP    int
	TotalGB    int64
	ExpiryTime int64
	Enable     bool
	TgID       TelegramID
	SubID      string
	Reset      *int
	Flow       string // vless and trojan
	Method     string // shadowsocks

	// InboundID is the owning inbound, filled in when the client is read
	// from an inbound. It is not part of the wire format.
	InboundID int

	// Extra keeps fields this package does not model (alterId, comment, ...)
	Extra map[string]json.RawMessage
}

type clientWire struct {
	ID         string     `json:"id,omitempty"`
	Password   string     `json:"password,omitempty"`
	Flow       string     `json:"flow,omitempty"`
	Method     string     `json:"method,omitempty"`
	Email      string     `json:"email"`
	LimitIP    int        `json:"limitIp"`
	TotalGB    int64      `json:"totalGB"`
	ExpiryTime int64      `json:"expiryTime"`
	Enable     bool       `json:"enable"`
	TgID       TelegramID `json:"tgId,omitempty"`
	SubID      string     `json:"subId,omitempty"`
	Reset      *int       `json:"reset,omitempty"`
}

var clientKnownFields = map[string]bool{
	"id": true, "password": true, "flow": true, "method": true, "email": true,
	"limitIp": true, "totalGB": true, "expiryTime": true, "enable": true,
	"tgId": true, "subId": true, "reset": true,
}

// UnmarshalJSON decodes a client and resolves its identifier kind
func (c *ClientOptions) UnmarshalJSON(data []byte) error {
	var wire clientWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var identifier Identifier
	switch {
	case wire.ID != "" && wire.Password != "":
		return fmt.Errorf("client %s: %w", wire.Email, ErrAmbiguousIdentifier)
	case wire.ID != "":
		identifier = UUID(wire.ID)
	case wire.Password != "":
		identifier = Password(wire.Password)
	default:
		return fmt.Errorf("client %s: %w", wire.Email, ErrMissingIdentifier)
	}

	*c = ClientOptions{
		Identifier: identifier,
		Email:      wire.Email,
		LimitIP:    wire.LimitIP,
		TotalGB:    wire.TotalGB,
		ExpiryTime: wire.ExpiryTime,
		Enable:     wire.Enable,
		TgID:       wire.TgID,
		SubID:      wire.SubID,
		Reset:      wire.Reset,
		Flow:       wire.Flow,
		Method:     wire.Method,
		Extra:      extraFields(raw, clientKnownFields),
	}
	return nil
}

// MarshalJSON encodes the client in wire form. The identifier is written
// as "id" or "password" depending on its kind.
func (c ClientOptions) MarshalJSON() ([]byte, error) {
	wire := clientWire{
		Flow:       c.Flow,
		Method:     c.Method,
		Email:      c.Email,
		LimitIP:    c.LimitIP,
		TotalGB:    c.TotalGB,
		ExpiryTime: c.ExpiryTime,
		Enable:     c.Enable,
		TgID:       c.TgID,
		SubID:      c.SubID,
		Reset:      c.Reset,
	}

	switch c.Identifier.Kind {
	case IdentifierUUID:
		wire.ID = c.Identifier.Value
	case IdentifierPassword:
		wire.Password = c.Identifier.Value
	}
	if c.Identifier.IsZero() {
		return nil, fmt.Errorf("client %s: %w", c.Email, ErrMissingIdentifier)
	}

	known, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	return mergeExtra(known, c.Extra)
}

// Clone returns a deep copy
func (c ClientOptions) Clone() ClientOptions {
	out := c
	if c.Reset != nil {
		out.Reset = Ptr(*c.Reset)
	}
	out.Extra = cloneRaw(c.Extra)
	return out
}

// Apply returns a copy of the client with every non-nil field of the patch
// set. The identifier keeps its kind when its value is replaced.
func (c ClientOptions) Apply(p ClientPatch) ClientOptions {
	out := c.Clone()
	if p.Identifier != nil {
		out.Identifier.Value = *p.Identifier
	}
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.LimitIP != nil {
		out.LimitIP = *p.LimitIP
	}
	if p.TotalGB != nil {
		out.TotalGB = *p.TotalGB
	}
	if p.ExpiryTime != nil {
		out.ExpiryTime = *p.ExpiryTime
	}
	if p.Enable != nil {
		out.Enable = *p.Enable
	}
	if p.TgID != nil {
		out.TgID = *p.TgID
	}
	if p.SubID != nil {
		out.SubID = *p.SubID
	}
	if p.Reset != nil {
		out.Reset = Ptr(*p.Reset)
	}
	if p.Flow != nil {
		out.Flow = *p.Flow
	}
	if p.Method != nil {
		out.Method = *p.Method
	}
	return out
}

// ClientPatch holds a partial client update. Nil fields are left untouched.
type ClientPatch struct {
	Identifier *string
	Email      *string
	LimitIP    *int
	TotalGB    *int64
	ExpiryTime *int64
	Enable     *bool
	TgID       *TelegramID
	SubID      *string
	Reset      *int
	Flow       *string
	Method     *string
}

// NewUUIDClient creates enabled vmess/vless client options with a random uuid and sub id
func NewUUIDClient(email string) ClientOptions {
	return ClientOptions{
		Identifier: UUID(uuid.NewString()),
		Email:      email,
		Enable:     true,
		SubID:      GenerateSubID(),
	}
}

// NewPasswordClient creates enabled trojan/shadowsocks client options
func NewPasswordClient(email, password string) ClientOptions {
	return ClientOptions{
		Identifier: Password(password),
		Email:      email,
		Enable:     true,
		SubID:      GenerateSubID(),
	}
}

// GenerateSubID generates a random subscription ID
func GenerateSubID() string {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}

	b64 := base64.RawStdEncoding.EncodeToString(raw)
	b64 = strings.ReplaceAll(b64, "+", "")
	b64 = strings.ReplaceAll(b64, "/", "")

	if len(b64) > 16 {
		b64 = b64[:16]
	}
	return b64
}
