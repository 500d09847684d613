package constants

const (
	// Panel API paths
	LoginPath   = "/login"
	APIRootPath = "/panel/api/inbounds"

	// NoIPRecord is what the panel answers when a client has no logged IPs
	NoIPRecord = "No IP Record"

	// AllInbounds addresses every inbound in the depleted clients endpoint
	AllInbounds = -1

	// Traffic constants
	BytesInGB = 1024 * 1024 * 1024

	// Network constants
	DefaultTimeout          = 30
	DefaultRetryCount       = 3
	DefaultRetryWaitTime    = 1
	DefaultRetryMaxWaitTime = 5

	// Cache constants
	DefaultCacheTTL      = 10 // seconds
	CacheCleanupInterval = 1  // minutes

	// Default ports when the connection URI carries none
	DefaultHTTPPort  = 80
	DefaultHTTPSPort = 443

	// QR constants
	DefaultQRSize = 256

	// Formatting constants
	MaxEmailDisplayLength = 17
	MaxEmailSuffixLength  = 14
	TimestampFormat       = "2006-01-02 15:04:05"
)
