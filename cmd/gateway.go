/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/mt5-gateway/internal/bootstrap"
	"github.com/spf13/cobra"
)

// gatewayCmd represents the gateway command
var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "MT5 websocket gateway service",
	Long: `Gateway opens a single authenticated session to the MT5 venue and serves
websocket clients.

This service acts as a bridge that:
- Accepts websocket connections and tracks per-client symbol subscriptions
- Polls the venue every broadcast interval and fans quotes out to subscribers
- Relays trade, close and account-info commands to the venue
- Republishes market data ticks to NATS JetStream when configured`,
	Run: bootstrap.StartGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}
