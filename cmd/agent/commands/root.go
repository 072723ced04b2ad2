package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"realtime-voice-agent/backend/internal/agent"
	"realtime-voice-agent/backend/pkg/config"
	"realtime-voice-agent/backend/pkg/di"
	"realtime-voice-agent/backend/pkg/logger"
)

// Transports accepted by --transport.
const (
	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"
)

var (
	brokerURL string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Realtime voice agent client",
	Long: `Connects to a realtime voice model through the session broker and
shows the live conversation transcript.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cfg := config.Get()
	rootCmd.PersistentFlags().StringVar(&brokerURL, "broker", cfg.Agent.BrokerURL, "session broker base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(sessionCmd)
}

func newLogger(cfg *config.Config) *logger.Logger {
	if verbose {
		cfg.Logging.Level = string(logger.LevelDebug)
	}
	return di.NewLogger(cfg)
}

func newDialer(name string, cfg *config.Config, log *logger.Logger) (agent.Dialer, error) {
	switch name {
	case TransportWebRTC, "":
		return agent.NewWebRTCDialer(cfg.Agent.ICEServers, log), nil
	case TransportWebSocket:
		return agent.NewWebSocketDialer(log), nil
	}
	return nil, fmt.Errorf("unknown transport %q (want %s or %s)", name, TransportWebRTC, TransportWebSocket)
}
