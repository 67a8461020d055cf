package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <key>",
		Short: "Show an object's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			info, err := c.Stat(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Key:           %s\n", info.Key)
			fmt.Printf("Size:          %d\n", info.Size)
			fmt.Printf("ETag:          %s\n", info.ETag)
			fmt.Printf("Last-Modified: %s\n", info.LastModified.Format("2006-01-02 15:04:05 MST"))
			if info.ContentType != "" {
				fmt.Printf("Content-Type:  %s\n", info.ContentType)
			}
			return nil
		},
	}
}
