package validation

import (
	"fmt"
	"strings"

	xerrors "xui-api/internal/errors"
	"xui-api/pkg/models"
)

// ValidateIdentifier checks a caller supplied client identifier (email, uuid or password)
func ValidateIdentifier(identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return &xerrors.ValidationError{Field: "identifier", Message: "client identifier is required"}
	}
	return nil
}

// ValidateInboundID checks an inbound id
func ValidateInboundID(id int) error {
	if id <= 0 {
		return &xerrors.ValidationError{Field: "inboundId", Message: fmt.Sprintf("invalid inbound id %d", id)}
	}
	return nil
}

// ValidateClientOptions validates client options against the protocol of
// the inbound they are written to. An empty protocol skips the kind check.
func ValidateClientOptions(protocol models.Protocol, client models.ClientOptions) error {
	if strings.TrimSpace(client.Email) == "" {
		return &xerrors.ValidationError{Field: "email", Message: "client email is required"}
	}

	if client.Identifier.IsZero() {
		return &xerrors.ValidationError{Field: "identifier", Message: fmt.Sprintf("client %s has neither id nor password", client.Email)}
	}

	if want := protocol.IdentifierKind(); want != 0 && client.Identifier.Kind != want {
		return &xerrors.ValidationError{
			Field:   client.Identifier.Kind.String(),
			Message: fmt.Sprintf("%s clients are identified by %s", protocol, want),
		}
	}

	if client.LimitIP < 0 || client.TotalGB < 0 || client.ExpiryTime < 0 {
		return &xerrors.ValidationError{Field: "limits", Message: fmt.Sprintf("client %s has negative limits", client.Email)}
	}

	return nil
}

// ValidateInboundOptions validates the payload of a new inbound
func ValidateInboundOptions(options models.InboundOptions) error {
	if options.Port < 1 || options.Port > 65535 {
		return &xerrors.ValidationError{Field: "port", Message: fmt.Sprintf("port %d is out of range", options.Port)}
	}
	if strings.TrimSpace(string(options.Protocol)) == "" {
		return &xerrors.ValidationError{Field: "protocol", Message: "protocol is required"}
	}
	return nil
}
