package helpers

import (
	"fmt"
	"sort"
	"strings"

	"xui-api/internal/constants"
	"xui-api/pkg/models"
)

// FormatTrafficReport formats a plain-text traffic table of every client, grouped by inbound
func FormatTrafficReport(inbounds []models.Inbound, online []string) string {
	onlineSet := make(map[string]bool, len(online))
	for _, email := range online {
		onlineSet[email] = true
	}

	var sb strings.Builder
	sb.WriteString("Email             | ↓ (GB) | ↑ (GB) | online\n")
	sb.WriteString("------------------|--------|--------|-------\n")

	var totalDown, totalUp int64

	sorted := make([]models.Inbound, len(inbounds))
	copy(sorted, inbounds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, inbound := range sorted {
		if len(inbound.ClientStats) == 0 {
			continue
		}

		sb.WriteString(fmt.Sprintf("\nInbound %d: %s (%s)\n", inbound.ID, inbound.Remark, inbound.Protocol))

		inboundDown, inboundUp := CalculateInboundTraffic(inbound.ClientStats)
		totalDown += inboundDown
		totalUp += inboundUp

		for _, client := range inbound.ClientStats {
			sb.WriteString(FormatTableLine(client.Email, client.Down, client.Up, onlineSet[client.Email]))
		}

		sb.WriteString("-----------\n")
		sb.WriteString(FormatTableLine("Total:", inboundDown, inboundUp, false))
	}

	sb.WriteString("\n")
	sb.WriteString(FormatTableLine("Grand Total:", totalDown, totalUp, false))

	return sb.String()
}

// CalculateInboundTraffic sums the download and upload bytes of an inbound's clients
func CalculateInboundTraffic(clientStats []models.ClientStat) (downBytes int64, upBytes int64) {
	for _, client := range clientStats {
		downBytes += client.Down
		upBytes += client.Up
	}
	return
}

// FormatTableLine formats a single line of the traffic table
func FormatTableLine(email string, downBytes int64, upBytes int64, online bool) string {
	downGB := float64(downBytes) / constants.BytesInGB
	upGB := float64(upBytes) / constants.BytesInGB

	displayEmail := email
	if len(email) > constants.MaxEmailDisplayLength {
		displayEmail = email[:constants.MaxEmailSuffixLength] + "..."
	}

	marker := ""
	if online {
		marker = "●"
	}

	return fmt.Sprintf("%-17s | %6.2f | %6.2f | %s\n", displayEmail, downGB, upGB, marker)
}
