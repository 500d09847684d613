package xrayclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"xui-api/internal/helpers"
	"xui-api/internal/validation"
	"xui-api/pkg/models"
)

// clientSettingsPayload is the body of addClient and updateClient. The panel
// expects settings as a JSON-encoded string.
type clientSettingsPayload struct {
	ID       int    `json:"id"`
	Settings string `json:"settings"`
}

func newClientSettingsPayload(inboundID int, clients []models.ClientOptions) (clientSettingsPayload, error) {
	settings, err := json.Marshal(map[string]interface{}{"clients": clients})
	if err != nil {
		return clientSettingsPayload{}, fmt.Errorf("failed to marshal client settings: %w", err)
	}
	return clientSettingsPayload{ID: inboundID, Settings: string(settings)}, nil
}

// GetClients returns the traffic stats of every client of every inbound
func (c *Client) GetClients(ctx context.Context) ([]models.ClientStat, error) {
	inbounds, err := c.GetInbounds(ctx)
	if err != nil {
		return nil, err
	}

	stats := []models.ClientStat{}
	for _, inbound := range inbounds {
		stats = append(stats, inbound.ClientStats...)
	}
	return stats, nil
}

// GetClient returns the traffic stats of a client identified by email, uuid
// or password, or nil when the panel has no such client or no stats for it
func (c *Client) GetClient(ctx context.Context, identifier string) (*models.ClientStat, error) {
	const op = "get client"
	if err := validation.ValidateIdentifier(identifier); err != nil {
		return nil, validationError(op, err)
	}

	if stat, ok := c.lookupStat(identifier); ok {
		c.debugf("Client %s loaded from cache", identifier)
		return stat, nil
	}

	return withGate(ctx, c.gate, func() (*models.ClientStat, error) {
		if stat, ok := c.lookupStat(identifier); ok {
			return stat, nil
		}

		if routable(identifier) {
			stat, err := c.fetchStatLocked(ctx, op, identifier)
			if err != nil || stat != nil {
				return stat, err
			}
		}

		c.debugf("Client %s not returned by panel, checking inbound list", identifier)
		if _, err := c.listInboundsLocked(ctx); err != nil {
			return nil, err
		}
		if stat, ok := c.lookupStat(identifier); ok {
			return stat, nil
		}
		return nil, nil
	})
}

// fetchStatLocked asks the panel for a single stat. A protocol failure or an
// empty answer yields nil so the caller can fall back to the inbound list.
func (c *Client) fetchStatLocked(ctx context.Context, op, identifier string) (*models.ClientStat, error) {
	endpoint := apiPath("getClientTraffics", identifier)
	obj, err := c.callLocked(ctx, op, http.MethodGet, endpoint, nil)
	if IsKind(err, KindProtocol) {
		return nil, nil
	}
	if err != nil || isNull(obj) {
		return nil, err
	}

	var stat models.ClientStat
	if err := decodeObj(op, endpoint, obj, &stat); err != nil {
		return nil, err
	}
	if stat.Email == "" {
		return nil, nil
	}

	c.cache.set(statByEmailKey(stat.Email), stat)
	if key, ok := cached[string](c.cache, identifierByEmailKey(stat.Email)); ok {
		c.cache.set(statByIDKey(key), stat)
	}
	if stat.Email != identifier {
		c.cache.set(statByIDKey(identifier), stat)
	}
	return &stat, nil
}

// GetClientOptions returns the configuration record of a client, or nil when
// no inbound holds it
func (c *Client) GetClientOptions(ctx context.Context, identifier string) (*models.ClientOptions, error) {
	if err := validation.ValidateIdentifier(identifier); err != nil {
		return nil, validationError("get client options", err)
	}

	if client, ok := c.lookupOptions(identifier); ok {
		c.debugf("Client options of %s loaded from cache", identifier)
		return client, nil
	}

	return withGate(ctx, c.gate, func() (*models.ClientOptions, error) {
		return c.resolveClientLocked(ctx, identifier)
	})
}

// resolveClientLocked maps an email, uuid or password to the client options
// embedded in its inbound, refreshing the inbound list once on a miss.
// Must run under the gate.
func (c *Client) resolveClientLocked(ctx context.Context, identifier string) (*models.ClientOptions, error) {
	if client, ok := c.lookupOptions(identifier); ok {
		return client, nil
	}

	c.debugf("Client %s not cached, refreshing inbounds", identifier)
	if _, err := c.listInboundsLocked(ctx); err != nil {
		return nil, err
	}

	if client, ok := c.lookupOptions(identifier); ok {
		return client, nil
	}
	return nil, nil
}

// requireClientLocked is resolveClientLocked for mutations, where a missing
// client is an error
func (c *Client) requireClientLocked(ctx context.Context, op, identifier string) (*models.ClientOptions, error) {
	client, err := c.resolveClientLocked(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, notFoundError(op, "client %s", identifier)
	}
	return client, nil
}

// AddClient adds a client to an inbound and returns its stats once the
// panel reports them. The stats are nil if the panel has not created them yet.
func (c *Client) AddClient(ctx context.Context, inboundID int, client models.ClientOptions) (*models.ClientStat, error) {
	const op = "add client"
	if err := validation.ValidateInboundID(inboundID); err != nil {
		return nil, validationError(op, err)
	}

	return withGate(ctx, c.gate, func() (*models.ClientStat, error) {
		if err := c.addClientsLocked(ctx, op, inboundID, []models.ClientOptions{client}); err != nil {
			return nil, err
		}
		return c.refreshStatLocked(ctx, client.Email), nil
	})
}

// AddClients adds several clients to an inbound in one request
func (c *Client) AddClients(ctx context.Context, inboundID int, clients []models.ClientOptions) error {
	const op = "add clients"
	if err := validation.ValidateInboundID(inboundID); err != nil {
		return validationError(op, err)
	}
	if len(clients) == 0 {
		return nil
	}

	return c.gate.do(ctx, func() error {
		return c.addClientsLocked(ctx, op, inboundID, clients)
	})
}

func (c *Client) addClientsLocked(ctx context.Context, op string, inboundID int, clients []models.ClientOptions) error {
	inbound, err := c.inboundLocked(ctx, inboundID)
	if err != nil {
		return err
	}
	if inbound == nil {
		return notFoundError(op, "inbound %d", inboundID)
	}

	for _, client := range clients {
		if err := validation.ValidateClientOptions(inbound.Protocol, client); err != nil {
			return validationError(op, err)
		}
	}

	payload, err := newClientSettingsPayload(inboundID, clients)
	if err != nil {
		return validationError(op, err)
	}

	if _, err := c.callLocked(ctx, op, http.MethodPost, apiPath("addClient"), payload); err != nil {
		return err
	}
	c.cache.invalidateAll()

	c.logger.Infof("Added %d client(s) to inbound %d", len(clients), inboundID)
	return nil
}

// refreshStatLocked re-lists inbounds after a write and returns the stats of
// email. Refresh failures are logged; the write itself already succeeded.
func (c *Client) refreshStatLocked(ctx context.Context, email string) *models.ClientStat {
	if _, err := c.listInboundsLocked(ctx); err != nil {
		c.logger.Warnf("Failed to refresh inbounds after write: %v", err)
		return nil
	}
	stat, _ := c.lookupStat(email)
	return stat
}

// UpdateClient merges patch into the client's current options and writes the
// complete record back. Fields not named in patch keep their current values.
func (c *Client) UpdateClient(ctx context.Context, identifier string, patch models.ClientPatch) (*models.ClientStat, error) {
	const op = "update client"
	if err := validation.ValidateIdentifier(identifier); err != nil {
		return nil, validationError(op, err)
	}

	return withGate(ctx, c.gate, func() (*models.ClientStat, error) {
		current, err := c.requireClientLocked(ctx, op, identifier)
		if err != nil {
			return nil, err
		}

		merged := current.Apply(patch)
		if err := validation.ValidateClientOptions("", merged); err != nil {
			return nil, validationError(op, err)
		}

		payload, err := newClientSettingsPayload(current.InboundID, []models.ClientOptions{merged})
		if err != nil {
			return nil, validationError(op, err)
		}

		endpoint := apiPath("updateClient", current.Identifier.Value)
		if _, err := c.callLocked(ctx, op, http.MethodPost, endpoint, payload); err != nil {
			return nil, err
		}
		c.cache.invalidateAll()

		c.logger.Infof("Client %s updated in inbound %d", merged.Email, current.InboundID)
		return c.refreshStatLocked(ctx, merged.Email), nil
	})
}

// DeleteClient removes a client from its inbound
func (c *Client) DeleteClient(ctx context.Context, identifier string) error {
	const op = "delete client"
	if err := validation.ValidateIdentifier(identifier); err != nil {
		return validationError(op, err)
	}

	return c.gate.do(ctx, func() error {
		client, err := c.requireClientLocked(ctx, op, identifier)
		if err != nil {
			return err
		}

		endpoint := apiPath(strconv.Itoa(client.InboundID), "delClient", client.Identifier.Value)
		if _, err := c.callLocked(ctx, op, http.MethodPost, endpoint, nil); err != nil {
			return err
		}
		c.cache.invalidateAll()

		c.logger.Infof("Client %s deleted from inbound %d", client.Email, client.InboundID)
		return nil
	})
}

// ResetClientStat resets the traffic counters of a client
func (c *Client) ResetClientStat(ctx context.Context, identifier string) error {
	const op = "reset client traffic"
	if err := validation.ValidateIdentifier(identifier); err != nil {
		return validationError(op, err)
	}

	return c.gate.do(ctx, func() error {
		client, err := c.requireClientLocked(ctx, op, identifier)
		if err != nil {
			return err
		}

		endpoint := apiPath(strconv.Itoa(client.InboundID), "resetClientTraffic", client.Email)
		if _, err := c.callLocked(ctx, op, http.MethodPost, endpoint, nil); err != nil {
			return err
		}
		c.cache.invalidateAll()
		return nil
	})
}

// GetClientIPs returns the IP addresses the panel logged for a client. A
// client without records, or an unknown client, yields an empty list.
func (c *Client) GetClientIPs(ctx context.Context, identifier string) ([]string, error) {
	const op = "get client ips"
	if err := validation.ValidateIdentifier(identifier); err != nil {
		return []string{}, validationError(op, err)
	}

	if ips, ok := c.lookupIPs(identifier); ok {
		c.debugf("Client ips of %s loaded from cache", identifier)
		return ips, nil
	}

	ips, err := withGate(ctx, c.gate, func() ([]string, error) {
		if ips, ok := c.lookupIPs(identifier); ok {
			return ips, nil
		}

		client, err := c.resolveClientLocked(ctx, identifier)
		if err != nil || client == nil {
			return nil, err
		}

		endpoint := apiPath("clientIps", client.Email)
		obj, err := c.callLocked(ctx, op, http.MethodPost, endpoint, nil)
		if err != nil {
			return nil, err
		}

		ips, err := decodeIPs(op, endpoint, obj)
		if err != nil {
			return nil, err
		}

		c.cache.set(ipsKey(client.Email), ips)
		c.cache.set(ipsKey(client.Identifier.Value), append([]string(nil), ips...))
		return append([]string(nil), ips...), nil
	})
	if ips == nil {
		ips = []string{}
	}
	return ips, err
}

// decodeIPs accepts the record as a newline or comma separated string, or as
// a list of strings
func decodeIPs(op, endpoint string, obj json.RawMessage) ([]string, error) {
	if isNull(obj) {
		return []string{}, nil
	}

	var record string
	if err := json.Unmarshal(obj, &record); err == nil {
		return helpers.ParseClientIPs(record), nil
	}

	var list []string
	if err := decodeObj(op, endpoint, obj, &list); err != nil {
		return nil, err
	}
	ips := []string{}
	for _, entry := range list {
		ips = append(ips, helpers.ParseClientIPs(entry)...)
	}
	return ips, nil
}

func (c *Client) lookupIPs(identifier string) ([]string, bool) {
	ips, ok := cached[[]string](c.cache, ipsKey(identifier))
	if !ok {
		return nil, false
	}
	return append([]string{}, ips...), true
}

// ResetClientIPs clears the IP log of a client. Only the cached ip lists of
// that client are dropped.
func (c *Client) ResetClientIPs(ctx context.Context, identifier string) error {
	const op = "reset client ips"
	if err := validation.ValidateIdentifier(identifier); err != nil {
		return validationError(op, err)
	}

	return c.gate.do(ctx, func() error {
		client, err := c.requireClientLocked(ctx, op, identifier)
		if err != nil {
			return err
		}

		if _, err := c.callLocked(ctx, op, http.MethodPost, apiPath("clearClientIps", client.Email), nil); err != nil {
			return err
		}
		c.cache.delete(ipsKey(client.Email), ipsKey(client.Identifier.Value), ipsKey(identifier))
		return nil
	})
}
