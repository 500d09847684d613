package xrayclient

import "xui-api/pkg/models"

// absorb caches an inbound and every alias of its clients: options by email
// and by identifier, the email to identifier mapping, and stats by email and
// by identifier. Clients that fail to decode are skipped.
func (c *Client) absorb(inbound models.Inbound) {
	c.cache.set(inboundKey(inbound.ID), inbound.Clone())

	for _, client := range c.decodeClients(inbound) {
		identifier := client.Identifier.Value
		c.cache.set(optionsByEmailKey(client.Email), client.Clone())
		c.cache.set(optionsByIDKey(identifier), client.Clone())
		c.cache.set(identifierByEmailKey(client.Email), identifier)
	}

	for _, stat := range inbound.ClientStats {
		c.cache.set(statByEmailKey(stat.Email), stat)
		if identifier, ok := cached[string](c.cache, identifierByEmailKey(stat.Email)); ok {
			c.cache.set(statByIDKey(identifier), stat)
		}
	}

	c.debugf("Inbound %d cached with %d client stats", inbound.ID, len(inbound.ClientStats))
}

func (c *Client) decodeClients(inbound models.Inbound) []models.ClientOptions {
	entries, err := inbound.RawClients()
	if err != nil {
		c.logger.Warnf("Inbound %d has malformed clients: %v", inbound.ID, err)
		return nil
	}

	clients := make([]models.ClientOptions, 0, len(entries))
	for _, entry := range entries {
		client, err := inbound.DecodeClient(entry)
		if err != nil {
			c.logger.Warnf("Skipping unreadable client: %v", err)
			continue
		}
		clients = append(clients, client)
	}
	return clients
}

// lookupOptions finds cached client options by email first, then by identifier
func (c *Client) lookupOptions(identifier string) (*models.ClientOptions, bool) {
	for _, key := range []string{optionsByEmailKey(identifier), optionsByIDKey(identifier)} {
		if client, ok := cached[models.ClientOptions](c.cache, key); ok {
			clone := client.Clone()
			return &clone, true
		}
	}
	return nil, false
}

// lookupStat finds a cached client stat by email first, then by identifier
func (c *Client) lookupStat(identifier string) (*models.ClientStat, bool) {
	for _, key := range []string{statByEmailKey(identifier), statByIDKey(identifier)} {
		if stat, ok := cached[models.ClientStat](c.cache, key); ok {
			return &stat, true
		}
	}
	return nil, false
}

func (c *Client) lookupInbound(id int) (*models.Inbound, bool) {
	inbound, ok := cached[models.Inbound](c.cache, inboundKey(id))
	if !ok {
		return nil, false
	}
	clone := inbound.Clone()
	return &clone, true
}

func (c *Client) lookupInbounds() ([]models.Inbound, bool) {
	inbounds, ok := cached[[]models.Inbound](c.cache, inboundsKey)
	if !ok {
		return nil, false
	}
	return cloneInbounds(inbounds), true
}

func cloneInbounds(inbounds []models.Inbound) []models.Inbound {
	out := make([]models.Inbound, len(inbounds))
	for i, inbound := range inbounds {
		out[i] = inbound.Clone()
	}
	return out
}
