package xrayclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xui-api/internal/testpanel"
	"xui-api/pkg/models"
)

func TestGetInbounds_ReadThrough(t *testing.T) {
	panel := testpanel.New(t)
	panel.SeedInbound(vmessInbound("first", 443), models.NewUUIDClient("alice"), models.NewUUIDClient("bob"))
	panel.SeedInbound(trojanInbound("second", 8443), models.NewPasswordClient("carol", "pw-carol"))

	client := newTestClient(t, panel)
	ctx := context.Background()

	first, err := client.GetInbounds(ctx)
	require.NoError(t, err)
	second, err := client.GetInbounds(ctx)
	require.NoError(t, err)

	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, panel.Hits("GET /list"))
	assert.Equal(t, 1, panel.Logins())
}

func TestGetInbounds_ReturnsCopies(t *testing.T) {
	panel := testpanel.New(t)
	panel.SeedInbound(vmessInbound("first", 443), models.NewUUIDClient("alice"))

	client := newTestClient(t, panel)
	ctx := context.Background()

	inbounds, err := client.GetInbounds(ctx)
	require.NoError(t, err)
	inbounds[0].Remark = "changed"
	inbounds[0].StreamSettings["network"] = "grpc"
	inbounds[0].ClientStats[0].Up = 42

	again, err := client.GetInbounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", again[0].Remark)
	assert.Equal(t, "ws", again[0].StreamSettings["network"])
	assert.Equal(t, int64(0), again[0].ClientStats[0].Up)
}

func TestGetInbounds_Empty(t *testing.T) {
	panel := testpanel.New(t)
	client := newTestClient(t, panel)

	inbounds, err := client.GetInbounds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, inbounds)
}

func TestGetInbounds_TransportFailure(t *testing.T) {
	panel := testpanel.New(t)
	client := newTestClient(t, panel)

	panel.FailNext("GET /list", 500)
	inbounds, err := client.GetInbounds(context.Background())

	assert.Empty(t, inbounds)
	assert.True(t, IsKind(err, KindTransport), "got %v", err)
}

func TestGetInbound(t *testing.T) {
	panel := testpanel.New(t)
	id := panel.SeedInbound(vmessInbound("first", 443), models.NewUUIDClient("alice"))

	client := newTestClient(t, panel)
	ctx := context.Background()

	inbound, err := client.GetInbound(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, inbound)
	assert.Equal(t, "first", inbound.Remark)
	assert.Equal(t, models.VMess, inbound.Protocol)

	_, err = client.GetInbound(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, panel.Hits("GET /get/:id"))
}

func TestGetInbound_ServedFromListing(t *testing.T) {
	panel := testpanel.New(t)
	id := panel.SeedInbound(vmessInbound("first", 443))

	client := newTestClient(t, panel)
	ctx := context.Background()

	_, err := client.GetInbounds(ctx)
	require.NoError(t, err)

	inbound, err := client.GetInbound(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, inbound)
	assert.Equal(t, 0, panel.Hits("GET /get/:id"))
}

func TestGetInbound_NotFound(t *testing.T) {
	panel := testpanel.New(t)
	panel.SeedInbound(vmessInbound("first", 443))

	client := newTestClient(t, panel)

	inbound, err := client.GetInbound(context.Background(), 99)
	assert.NoError(t, err)
	assert.Nil(t, inbound)
	assert.Equal(t, 1, panel.Hits("GET /get/:id"))
	assert.Equal(t, 1, panel.Hits("GET /list"))
}

func TestGetInbound_InvalidID(t *testing.T) {
	panel := testpanel.New(t)
	client := newTestClient(t, panel)

	_, err := client.GetInbound(context.Background(), 0)
	assert.True(t, IsKind(err, KindValidation))
	assert.Equal(t, 0, panel.TotalHits())
}

func TestAddInbound(t *testing.T) {
	panel := testpanel.New(t)
	client := newTestClient(t, panel)
	ctx := context.Background()

	alice := models.NewUUIDClient("alice")
	inbound, err := client.AddInbound(ctx, models.InboundOptions{
		Enable:         true,
		Remark:         "new",
		Port:           10443,
		Protocol:       models.VMess,
		Settings:       models.EmbeddedJSON{"clients": []interface{}{alice}},
		StreamSettings: models.EmbeddedJSON{"network": "tcp"},
	})
	require.NoError(t, err)
	require.NotNil(t, inbound)
	assert.NotZero(t, inbound.ID)
	assert.Equal(t, "new", inbound.Remark)

	// the returned inbound is absorbed, so reads need no request
	cachedInbound, err := client.GetInbound(ctx, inbound.ID)
	require.NoError(t, err)
	assert.Equal(t, inbound.Remark, cachedInbound.Remark)

	options, err := client.GetClientOptions(ctx, alice.Identifier.Value)
	require.NoError(t, err)
	require.NotNil(t, options)
	assert.Equal(t, "alice", options.Email)
	assert.Equal(t, inbound.ID, options.InboundID)

	assert.Equal(t, 0, panel.Hits("GET /get/:id"))
	assert.Equal(t, 0, panel.Hits("GET /list"))
}

func TestAddInbound_Invalid(t *testing.T) {
	panel := testpanel.New(t)
	client := newTestClient(t, panel)

	_, err := client.AddInbound(context.Background(), models.InboundOptions{Port: 0, Protocol: models.VMess})
	assert.True(t, IsKind(err, KindValidation))
	assert.Equal(t, 0, panel.Hits("POST /add"))
}

func TestUpdateInbound_PreservesFields(t *testing.T) {
	panel := testpanel.New(t)
	alice := models.NewUUIDClient("alice")
	id := panel.SeedInbound(vmessInbound("first", 443), alice)

	client := newTestClient(t, panel)

	updated, err := client.UpdateInbound(context.Background(), id, models.InboundPatch{Remark: models.Ptr("renamed")})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "renamed", updated.Remark)

	stored, ok := panel.Inbound(id)
	require.True(t, ok)
	assert.Equal(t, "renamed", stored.Remark)
	assert.Equal(t, 443, stored.Port)
	assert.Equal(t, models.VMess, stored.Protocol)
	assert.Equal(t, "ws", stored.StreamSettings["network"])

	clients, err := stored.Clients()
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, alice.Identifier, clients[0].Identifier)
	assert.Equal(t, alice.SubID, clients[0].SubID)
}

func TestUpdateInbound_NotFound(t *testing.T) {
	panel := testpanel.New(t)
	client := newTestClient(t, panel)

	_, err := client.UpdateInbound(context.Background(), 7, models.InboundPatch{Enable: models.Ptr(false)})
	assert.True(t, IsKind(err, KindValidation), "got %v", err)
	assert.Equal(t, 0, panel.Hits("POST /update/:id"))
}

func TestDeleteInbound_InvalidatesCache(t *testing.T) {
	panel := testpanel.New(t)
	first := panel.SeedInbound(vmessInbound("first", 443), models.NewUUIDClient("alice"))
	panel.SeedInbound(vmessInbound("second", 8443), models.NewUUIDClient("bob"))
	panel.SetOnline("alice")

	client := newTestClient(t, panel)
	ctx := context.Background()

	_, err := client.GetInbounds(ctx)
	require.NoError(t, err)
	_, err = client.GetOnlineClients(ctx)
	require.NoError(t, err)
	require.NotZero(t, client.cache.len())

	require.NoError(t, client.DeleteInbound(ctx, first))
	assert.Zero(t, client.cache.len())

	inbounds, err := client.GetInbounds(ctx)
	require.NoError(t, err)
	assert.Len(t, inbounds, 1)
	assert.Equal(t, 2, panel.Hits("GET /list"))

	options, err := client.GetClientOptions(ctx, "alice")
	assert.NoError(t, err)
	assert.Nil(t, options)
}

func TestDeleteInbound_FailedWriteKeepsCache(t *testing.T) {
	panel := testpanel.New(t)
	id := panel.SeedInbound(vmessInbound("first", 443))

	client := newTestClient(t, panel)
	ctx := context.Background()

	_, err := client.GetInbounds(ctx)
	require.NoError(t, err)
	before := client.cache.len()

	panel.FailNext("POST /del/:id", 200)
	err = client.DeleteInbound(ctx, id)
	assert.True(t, IsKind(err, KindProtocol), "got %v", err)

	assert.Equal(t, before, client.cache.len())
	assert.True(t, client.cache.has(inboundsKey))
	assert.Equal(t, 1, panel.Hits("POST /del/:id"))
}

func TestResetInboundStats(t *testing.T) {
	panel := testpanel.New(t)
	id := panel.SeedInbound(vmessInbound("first", 443), models.NewUUIDClient("alice"))
	panel.SetTraffic("alice", 100, 200)

	client := newTestClient(t, panel)
	ctx := context.Background()

	stat, err := client.GetClient(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, int64(200), stat.Down)

	require.NoError(t, client.ResetInboundStat(ctx, id))
	stat, err = client.GetClient(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, stat.Down)

	require.NoError(t, client.ResetInboundsStat(ctx))
	assert.Equal(t, 1, panel.Hits("POST /resetAllClientTraffics/:id"))
	assert.Equal(t, 1, panel.Hits("POST /resetAllTraffics"))
}
