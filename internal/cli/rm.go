package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key> [key...]",
		Short: "Delete objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			failed := 0
			for _, key := range args {
				if err := c.Delete(ctx, key); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", key, err)
					failed++
					continue
				}
				logger.Debugf("deleted %s", key)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d deletions failed", failed, len(args))
			}
			return nil
		},
	}
}
