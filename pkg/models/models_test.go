package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vmessInboundJSON = `{
	"id": 3,
	"up": 10,
	"down": 20,
	"total": 0,
	"remark": "vmess-ws",
	"enable": true,
	"expiryTime": 0,
	"allTime": 30,
	"trafficReset": "never",
	"clientStats": [{"id": 1, "inboundId": 3, "enable": true, "email": "alice@example.com", "up": 1, "down": 2, "expiryTime": 0, "total": 0, "reset": 0}],
	"listen": "",
	"port": 48964,
	"protocol": "vmess",
	"settings": "{\"clients\":[{\"id\":\"8841ba90-4734-4eba-bf7d-a9e1ad0c85f7\",\"alterId\":0,\"email\":\"alice@example.com\",\"enable\":true,\"expiryTime\":0,\"limitIp\":2,\"totalGB\":1073741824,\"tgId\":\"\",\"subId\":\"abc\"}],\"decryption\":\"none\",\"fallbacks\":[]}",
	"streamSettings": "",
	"tag": "inbound-48964",
	"sniffing": "{\"enabled\":true,\"destOverride\":[\"http\",\"tls\"]}"
}`

func TestInbound_Decode(t *testing.T) {
	var inbound Inbound
	require.NoError(t, json.Unmarshal([]byte(vmessInboundJSON), &inbound))

	assert.Equal(t, 3, inbound.ID)
	assert.Equal(t, VMess, inbound.Protocol)
	assert.Equal(t, EmbeddedJSON{}, inbound.StreamSettings, "empty blob decodes to an empty object")
	assert.Equal(t, true, inbound.Sniffing["enabled"])
	assert.Contains(t, inbound.Extra, "allTime")
	assert.Contains(t, inbound.Extra, "trafficReset")
	require.Len(t, inbound.ClientStats, 1)
	assert.Equal(t, "alice@example.com", inbound.ClientStats[0].Email)

	clients, err := inbound.Clients()
	require.NoError(t, err)
	require.Len(t, clients, 1)

	client := clients[0]
	assert.Equal(t, UUID("8841ba90-4734-4eba-bf7d-a9e1ad0c85f7"), client.Identifier)
	assert.Equal(t, 3, client.InboundID)
	assert.Equal(t, int64(1073741824), client.TotalGB)
	assert.Equal(t, 2, client.LimitIP)
	assert.Equal(t, TelegramID(0), client.TgID)
	assert.Contains(t, client.Extra, "alterId")
}

func TestInbound_ClientEntries(t *testing.T) {
	inbound := Inbound{ID: 7, Settings: EmbeddedJSON{"clients": []any{
		map[string]any{"id": "u-1", "email": "a"},
		map[string]any{"email": "b"},
	}}}

	entries, err := inbound.RawClients()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	client, err := inbound.DecodeClient(entries[0])
	require.NoError(t, err)
	assert.Equal(t, 7, client.InboundID)
	assert.Equal(t, UUID("u-1"), client.Identifier)

	_, err = inbound.DecodeClient(entries[1])
	assert.Error(t, err, "a client without id or password is unreadable")

	_, err = inbound.Clients()
	assert.Error(t, err)

	clients, err := Inbound{ID: 8, Settings: EmbeddedJSON{}}.Clients()
	require.NoError(t, err)
	assert.Equal(t, []ClientOptions{}, clients)
}

func TestInbound_EncodeRoundTripKeepsWireForm(t *testing.T) {
	var inbound Inbound
	require.NoError(t, json.Unmarshal([]byte(vmessInboundJSON), &inbound))

	data, err := json.Marshal(inbound)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))

	settings, ok := wire["settings"].(string)
	require.True(t, ok, "settings must be written as text")
	assert.Contains(t, settings, `"decryption":"none"`)
	assert.Equal(t, "{}", wire["streamSettings"])
	assert.Equal(t, "never", wire["trafficReset"])
	assert.EqualValues(t, 30, wire["allTime"])
}

func TestEmbeddedJSON_ObjectForm(t *testing.T) {
	var e EmbeddedJSON
	require.NoError(t, json.Unmarshal([]byte(`{"network":"ws"}`), &e))
	assert.Equal(t, "ws", e["network"])

	require.NoError(t, json.Unmarshal([]byte(`null`), &e))
	assert.Equal(t, EmbeddedJSON{}, e)

	assert.Error(t, json.Unmarshal([]byte(`"{not json"`), &e))
}

func TestEmbeddedJSON_NilEncodesEmptyText(t *testing.T) {
	var e EmbeddedJSON
	text, err := e.Encode()
	require.NoError(t, err)
	assert.Equal(t, "", text)

	text, err = EmbeddedJSON{}.Encode()
	require.NoError(t, err)
	assert.Equal(t, "{}", text)
}

func TestEmbeddedJSON_CloneIsDeep(t *testing.T) {
	original, err := ParseEmbeddedJSON(`{"clients":[{"email":"a"}],"nested":{"k":1}}`)
	require.NoError(t, err)

	clone := original.Clone()
	clone["nested"].(map[string]any)["k"] = "changed"
	clone["clients"].([]any)[0].(map[string]any)["email"] = "b"

	assert.Equal(t, json.Number("1"), original["nested"].(map[string]any)["k"])
	assert.Equal(t, "a", original["clients"].([]any)[0].(map[string]any)["email"])
}

func TestClientOptions_IdentifierKinds(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want Identifier
		err  error
	}{
		{name: "vmess", wire: `{"id":"u-1","email":"a"}`, want: UUID("u-1")},
		{name: "trojan", wire: `{"password":"p-1","flow":"xtls-rprx-vision","email":"b"}`, want: Password("p-1")},
		{name: "shadowsocks", wire: `{"password":"p-2","method":"aes-256-gcm","email":"c"}`, want: Password("p-2")},
		{name: "empty id falls back to password", wire: `{"id":"","password":"p-3","email":"d"}`, want: Password("p-3")},
		{name: "neither", wire: `{"email":"e"}`, err: ErrMissingIdentifier},
		{name: "both", wire: `{"id":"u","password":"p","email":"f"}`, err: ErrAmbiguousIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c ClientOptions
			err := json.Unmarshal([]byte(tt.wire), &c)
			if tt.err != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Identifier)
		})
	}
}

func TestClientOptions_EncodeWritesIdentifierField(t *testing.T) {
	trojan := ClientOptions{Identifier: Password("secret"), Email: "t@example.com", Enable: true, Flow: "xtls-rprx-vision"}
	data, err := json.Marshal(trojan)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "secret", wire["password"])
	assert.NotContains(t, wire, "id")
	assert.Equal(t, "xtls-rprx-vision", wire["flow"])

	_, err = json.Marshal(ClientOptions{Email: "none"})
	assert.Error(t, err)
}

func TestClientOptions_TelegramIDForms(t *testing.T) {
	for wire, want := range map[string]TelegramID{
		`{"id":"u","tgId":123}`:   123,
		`{"id":"u","tgId":"456"}`: 456,
		`{"id":"u","tgId":""}`:    0,
		`{"id":"u","tgId":null}`:  0,
	} {
		var c ClientOptions
		require.NoError(t, json.Unmarshal([]byte(wire), &c), wire)
		assert.Equal(t, want, c.TgID, wire)
	}
}

func TestClientOptions_ApplyPreservesUntouchedFields(t *testing.T) {
	var original ClientOptions
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u-1","email":"a@example.com","enable":true,"totalGB":42,"limitIp":3,"alterId":0,"comment":"vip"}`), &original))

	updated := original.Apply(ClientPatch{Enable: Ptr(false)})

	assert.False(t, updated.Enable)
	assert.True(t, original.Enable, "apply must not mutate the receiver")
	assert.Equal(t, int64(42), updated.TotalGB)
	assert.Equal(t, 3, updated.LimitIP)
	assert.Equal(t, original.Identifier, updated.Identifier)
	assert.Equal(t, original.Extra, updated.Extra)

	rotated := original.Apply(ClientPatch{Identifier: Ptr("u-2")})
	assert.Equal(t, UUID("u-2"), rotated.Identifier)
}

func TestInbound_ApplyPreservesUntouchedFields(t *testing.T) {
	var original Inbound
	require.NoError(t, json.Unmarshal([]byte(vmessInboundJSON), &original))

	updated := original.Apply(InboundPatch{Remark: Ptr("renamed")})

	assert.Equal(t, "renamed", updated.Remark)
	assert.Equal(t, "vmess-ws", original.Remark)
	assert.Equal(t, original.Port, updated.Port)
	assert.Equal(t, original.Settings, updated.Settings)
	assert.Equal(t, original.Extra, updated.Extra)
}

func TestNewUUIDClient(t *testing.T) {
	c := NewUUIDClient("new@example.com")
	assert.Equal(t, IdentifierUUID, c.Identifier.Kind)
	assert.Len(t, c.Identifier.Value, 36)
	assert.True(t, c.Enable)
	assert.NotEmpty(t, c.SubID)
	assert.LessOrEqual(t, len(c.SubID), 16)
}

func TestProtocol_IdentifierKind(t *testing.T) {
	assert.Equal(t, IdentifierUUID, VMess.IdentifierKind())
	assert.Equal(t, IdentifierUUID, VLESS.IdentifierKind())
	assert.Equal(t, IdentifierPassword, Trojan.IdentifierKind())
	assert.Equal(t, IdentifierPassword, Shadowsocks.IdentifierKind())
	assert.Equal(t, IdentifierKind(0), Socks.IdentifierKind())
}
