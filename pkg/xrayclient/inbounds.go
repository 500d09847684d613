package xrayclient

import (
	"context"
	"net/http"
	"strconv"

	"xui-api/internal/validation"
	"xui-api/pkg/models"
)

// GetInbounds returns every inbound of the panel
func (c *Client) GetInbounds(ctx context.Context) ([]models.Inbound, error) {
	if inbounds, ok := c.lookupInbounds(); ok {
		c.debugf("Inbounds loaded from cache")
		return inbounds, nil
	}

	return withGate(ctx, c.gate, func() ([]models.Inbound, error) {
		if inbounds, ok := c.lookupInbounds(); ok {
			return inbounds, nil
		}
		return c.listInboundsLocked(ctx)
	})
}

// listInboundsLocked fetches every inbound and absorbs them. Must run under the gate.
func (c *Client) listInboundsLocked(ctx context.Context) ([]models.Inbound, error) {
	const op = "get inbounds"
	endpoint := apiPath("list")

	obj, err := c.callLocked(ctx, op, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	inbounds := []models.Inbound{}
	if !isNull(obj) {
		if err := decodeObj(op, endpoint, obj, &inbounds); err != nil {
			c.logger.Errorf("Failed to unmarshal inbounds: %v", err)
			return nil, err
		}
	}

	c.cache.set(inboundsKey, cloneInbounds(inbounds))
	for _, inbound := range inbounds {
		c.absorb(inbound)
	}

	c.debugf("Fetched %d inbounds", len(inbounds))
	return inbounds, nil
}

// GetInbound returns the inbound with the given id, or nil when the panel has none
func (c *Client) GetInbound(ctx context.Context, id int) (*models.Inbound, error) {
	if err := validation.ValidateInboundID(id); err != nil {
		return nil, validationError("get inbound", err)
	}

	if inbound, ok := c.lookupInbound(id); ok {
		c.debugf("Inbound %d loaded from cache", id)
		return inbound, nil
	}

	return withGate(ctx, c.gate, func() (*models.Inbound, error) {
		return c.inboundLocked(ctx, id)
	})
}

// inboundLocked returns the inbound from cache or the panel. Must run under the gate.
func (c *Client) inboundLocked(ctx context.Context, id int) (*models.Inbound, error) {
	if inbound, ok := c.lookupInbound(id); ok {
		return inbound, nil
	}

	const op = "get inbound"
	endpoint := apiPath("get", strconv.Itoa(id))

	obj, err := c.callLocked(ctx, op, http.MethodGet, endpoint, nil)
	if err != nil && !IsKind(err, KindProtocol) {
		return nil, err
	}

	if err == nil && !isNull(obj) {
		var inbound models.Inbound
		if err := decodeObj(op, endpoint, obj, &inbound); err != nil {
			return nil, err
		}
		c.absorb(inbound)
		return &inbound, nil
	}

	// the panel rejects unknown ids; confirm against the full listing
	c.debugf("Inbound %d not returned by panel, checking inbound list", id)
	if _, err := c.listInboundsLocked(ctx); err != nil {
		return nil, err
	}
	if inbound, ok := c.lookupInbound(id); ok {
		return inbound, nil
	}
	return nil, nil
}

// AddInbound creates an inbound and returns it as stored by the panel
func (c *Client) AddInbound(ctx context.Context, opts models.InboundOptions) (*models.Inbound, error) {
	const op = "add inbound"
	if err := validation.ValidateInboundOptions(opts); err != nil {
		return nil, validationError(op, err)
	}

	return withGate(ctx, c.gate, func() (*models.Inbound, error) {
		endpoint := apiPath("add")
		obj, err := c.callLocked(ctx, op, http.MethodPost, endpoint, opts)
		if err != nil {
			return nil, err
		}
		c.cache.invalidateAll()

		var inbound models.Inbound
		if err := decodeObj(op, endpoint, obj, &inbound); err != nil {
			return nil, err
		}
		c.absorb(inbound)

		c.logger.Infof("Inbound %d (%s) added", inbound.ID, inbound.Remark)
		return &inbound, nil
	})
}

// UpdateInbound merges patch into the current inbound and writes the result back
func (c *Client) UpdateInbound(ctx context.Context, id int, patch models.InboundPatch) (*models.Inbound, error) {
	const op = "update inbound"
	if err := validation.ValidateInboundID(id); err != nil {
		return nil, validationError(op, err)
	}

	return withGate(ctx, c.gate, func() (*models.Inbound, error) {
		current, err := c.inboundLocked(ctx, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, notFoundError(op, "inbound %d", id)
		}

		merged := current.Apply(patch)
		merged.ClientStats = nil

		endpoint := apiPath("update", strconv.Itoa(id))
		obj, err := c.callLocked(ctx, op, http.MethodPost, endpoint, merged)
		if err != nil {
			return nil, err
		}
		c.cache.invalidateAll()

		if isNull(obj) {
			return &merged, nil
		}

		var inbound models.Inbound
		if err := decodeObj(op, endpoint, obj, &inbound); err != nil {
			return nil, err
		}
		c.absorb(inbound)

		c.logger.Infof("Inbound %d updated", id)
		return &inbound, nil
	})
}

// DeleteInbound removes an inbound and all of its clients
func (c *Client) DeleteInbound(ctx context.Context, id int) error {
	const op = "delete inbound"
	if err := validation.ValidateInboundID(id); err != nil {
		return validationError(op, err)
	}

	if err := c.mutate(ctx, op, apiPath("del", strconv.Itoa(id)), nil); err != nil {
		return err
	}
	c.logger.Infof("Inbound %d deleted", id)
	return nil
}

// ResetInboundsStat resets the traffic counters of every inbound
func (c *Client) ResetInboundsStat(ctx context.Context) error {
	return c.mutate(ctx, "reset all inbounds traffic", apiPath("resetAllTraffics"), nil)
}

// ResetInboundStat resets the traffic counters of every client of an inbound
func (c *Client) ResetInboundStat(ctx context.Context, id int) error {
	const op = "reset inbound traffic"
	if err := validation.ValidateInboundID(id); err != nil {
		return validationError(op, err)
	}
	return c.mutate(ctx, op, apiPath("resetAllClientTraffics", strconv.Itoa(id)), nil)
}

// mutate posts a write and drops the whole cache once the panel accepts it
func (c *Client) mutate(ctx context.Context, op, endpoint string, body interface{}) error {
	return c.gate.do(ctx, func() error {
		if _, err := c.callLocked(ctx, op, http.MethodPost, endpoint, body); err != nil {
			return err
		}
		c.cache.invalidateAll()
		return nil
	})
}
