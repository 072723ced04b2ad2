// Command agent is a headless realtime voice agent client.
//
// Usage:
//
//	agent connect [--broker URL] [--transport webrtc|websocket] [--feed ADDR]
//	agent session [--broker URL] [--show-secret]
//
// Settings default to the AGENT_* environment variables.
package main

import (
	"fmt"
	"os"

	"realtime-voice-agent/backend/cmd/agent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
