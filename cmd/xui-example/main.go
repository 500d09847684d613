package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"xui-api/internal/config"
	"xui-api/internal/constants"
	"xui-api/internal/helpers"
	"xui-api/pkg/xrayclient"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Failed to load configuration:", err)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel)

	client, err := xrayclient.New(cfg.URI,
		xrayclient.WithLogger(logger),
		xrayclient.WithDebug(cfg.Debug),
		xrayclient.WithCacheTTL(cfg.CacheTTL),
		xrayclient.WithTimeout(cfg.Timeout),
		xrayclient.WithInsecureSkipVerify(cfg.InsecureTLS),
		xrayclient.WithSubscriptionPrefix(cfg.Server.SubURLPrefix),
	)
	if err != nil {
		logger.Fatal("Failed to create panel client:", err)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	if !client.CheckHealth(ctx) {
		logger.Fatalf("Panel at %s is not reachable", client.Host())
	}

	inbounds, err := client.GetInbounds(ctx)
	if err != nil {
		logger.Fatal("Failed to get inbounds:", err)
	}

	online, err := client.GetOnlineClients(ctx)
	if err != nil {
		logger.Warn("Failed to get online clients:", err)
	}

	fmt.Print(helpers.FormatTrafficReport(inbounds, online))

	if len(os.Args) > 1 {
		printClient(ctx, client, logger, os.Args[1])
	}
}

// printClient prints the details of a single client given by email, uuid or password
func printClient(ctx context.Context, client *xrayclient.Client, logger *logrus.Logger, identifier string) {
	options, err := client.GetClientOptions(ctx, identifier)
	if err != nil {
		logger.Fatal("Failed to resolve client:", err)
	}
	if options == nil {
		logger.Fatalf("Client %s not found", identifier)
	}

	fmt.Printf("\nClient %s (inbound %d, %s %s)\n", options.Email, options.InboundID, options.Identifier.Kind, options.Identifier.Value)

	ips, err := client.GetClientIPs(ctx, identifier)
	if err != nil {
		logger.Warn("Failed to get client IPs:", err)
	}
	for _, ip := range ips {
		fmt.Printf("  ip: %s\n", ip)
	}

	if options.SubID != "" {
		link, err := client.SubscriptionURL(ctx, identifier)
		if err == nil {
			fmt.Printf("  subscription: %s\n", link)
		}
	}
}

// setupLogger sets up the logger
func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()

	// Default to info when unset
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Printf("Invalid log level %s, defaulting to info", logLevel)
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	// Set formatter
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: constants.TimestampFormat,
	})

	return logger
}
