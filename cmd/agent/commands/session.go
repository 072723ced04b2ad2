package commands

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"realtime-voice-agent/backend/internal/agent"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Request a session descriptor from the broker",
	Long: `Request a fresh session descriptor and print it as JSON. The
ephemeral secret is masked unless --show-secret is set.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		desc, err := agent.NewBrokerClient(brokerURL, nil).FetchSession(cmd.Context())
		if err != nil {
			return err
		}

		show, _ := cmd.Flags().GetBool("show-secret")
		if !show {
			desc.ClientSecret.Value = maskSecret(desc.ClientSecret.Value)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	},
}

func init() {
	sessionCmd.Flags().Bool("show-secret", false, "print the ephemeral secret unmasked")
}

// maskSecret keeps the first four characters.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
