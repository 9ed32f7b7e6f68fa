package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/internal/nats"
)

// CreateKeysCmd creates the keys command, which sends control keys to a
// running session over NATS.
func CreateKeysCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "keys SESSION_ID KEYS",
		Short: "Send focus and test pattern keys to a running session",
		Long: `Publishes each of KEYS to the session with the given ID, one command ` +
			`per key. The session must run with --nats-url or --nats-embed. Keys: ` +
			`a toggles continuous autofocus, f triggers single autofocus, p locks ` +
			`focus, t cycles the test pattern and l returns to the live image.`,
		Example: `  glcapture keys 5f1c9a52-1d3e-4a4b-9d55-0a8f2b7c1e10 f`,
		Args:    cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			publisher, err := nats.NewKeyPublisher(url, logging.GetLogger("nats"))
			if err != nil {
				return fmt.Errorf("connect %s: %w", url, err)
			}
			defer publisher.Close()

			for _, key := range args[1] {
				if err := publisher.Send(args[0], string(key), "cli"); err != nil {
					return fmt.Errorf("send %q: %w", key, err)
				}
			}
			fmt.Fprintf(c.OutOrStdout(), "sent %q to %s\n", args[1], args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "nats-url", nats.DefaultClientURL, "NATS server URL")
	return cmd
}
