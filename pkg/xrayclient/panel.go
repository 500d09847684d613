package xrayclient

import (
	"context"
	"net/http"
	"strconv"

	"xui-api/internal/constants"
	"xui-api/internal/validation"
)

// GetOnlineClients returns the emails of clients currently connected
func (c *Client) GetOnlineClients(ctx context.Context) ([]string, error) {
	if online, ok := c.lookupOnline(); ok {
		c.debugf("Online clients loaded from cache")
		return online, nil
	}

	online, err := withGate(ctx, c.gate, func() ([]string, error) {
		if online, ok := c.lookupOnline(); ok {
			return online, nil
		}

		const op = "get online clients"
		endpoint := apiPath("onlines")
		obj, err := c.callLocked(ctx, op, http.MethodPost, endpoint, nil)
		if err != nil {
			return nil, err
		}

		online := []string{}
		if !isNull(obj) {
			if err := decodeObj(op, endpoint, obj, &online); err != nil {
				return nil, err
			}
		}

		c.cache.set(onlineClientsKey, append([]string{}, online...))
		return online, nil
	})
	if online == nil {
		online = []string{}
	}
	return online, err
}

func (c *Client) lookupOnline() ([]string, bool) {
	online, ok := cached[[]string](c.cache, onlineClientsKey)
	if !ok {
		return nil, false
	}
	return append([]string{}, online...), true
}

// CheckHealth reports whether the panel accepts our credentials and answers
// the inbound listing
func (c *Client) CheckHealth(ctx context.Context) bool {
	err := c.gate.do(ctx, func() error {
		_, err := c.callLocked(ctx, "health check", http.MethodGet, apiPath("list"), nil)
		return err
	})
	if err != nil {
		c.logger.Warnf("Panel health check failed: %v", err)
		return false
	}
	return true
}

// CreateBackup asks the panel to send its database backup to the
// administrators configured in the panel
func (c *Client) CreateBackup(ctx context.Context) error {
	return c.gate.do(ctx, func() error {
		_, err := c.callLocked(ctx, "create backup", http.MethodGet, apiPath("createbackup"), nil)
		return err
	})
}

// DeleteDepletedClients removes clients that ran out of traffic or expired, across all inbounds
func (c *Client) DeleteDepletedClients(ctx context.Context) error {
	return c.mutate(ctx, "delete depleted clients", apiPath("delDepletedClients", strconv.Itoa(constants.AllInbounds)), nil)
}

// DeleteInboundDepletedClients removes depleted clients of a single inbound
func (c *Client) DeleteInboundDepletedClients(ctx context.Context, inboundID int) error {
	const op = "delete inbound depleted clients"
	if err := validation.ValidateInboundID(inboundID); err != nil {
		return validationError(op, err)
	}
	return c.mutate(ctx, op, apiPath("delDepletedClients", strconv.Itoa(inboundID)), nil)
}
