package xrayclient

import (
	"context"
	"errors"
	"net/url"

	"github.com/skip2/go-qrcode"

	"xui-api/internal/constants"
)

// ErrNoSubscriptionPrefix is returned by the subscription helpers when the
// client was built without WithSubscriptionPrefix
var ErrNoSubscriptionPrefix = errors.New("subscription URL prefix is not configured")

// SubscriptionURL returns the subscription link of a client
func (c *Client) SubscriptionURL(ctx context.Context, identifier string) (string, error) {
	const op = "subscription url"
	if c.subPrefix == "" {
		return "", validationError(op, ErrNoSubscriptionPrefix)
	}

	client, err := c.GetClientOptions(ctx, identifier)
	if err != nil {
		return "", err
	}
	if client == nil {
		return "", notFoundError(op, "client %s", identifier)
	}
	if client.SubID == "" {
		return "", &Error{Kind: KindValidation, Operation: op, Message: "client " + client.Email + " has no subscription id"}
	}

	return c.subPrefix + "/" + url.PathEscape(client.SubID), nil
}

// SubscriptionQR renders the subscription link of a client as a PNG QR
// code of size pixels. A size of zero or less uses the default size.
func (c *Client) SubscriptionQR(ctx context.Context, identifier string, size int) ([]byte, error) {
	link, err := c.SubscriptionURL(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if size <= 0 {
		size = constants.DefaultQRSize
	}

	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		c.logger.Errorf("Failed to generate QR code for %s: %v", identifier, err)
		return nil, &Error{Kind: KindValidation, Operation: "subscription qr", Message: "failed to generate QR code", Err: err}
	}
	return png, nil
}
