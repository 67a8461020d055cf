package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/transit/internal/client"
	"github.com/meridian-labs/transit/internal/conditional"
	"github.com/meridian-labs/transit/internal/progress"
)

func newGetCmd() *cobra.Command {
	var (
		output      string
		dir         string
		prefix      string
		ifMatch     string
		ifNoneMatch string
	)

	cmd := &cobra.Command{
		Use:   "get [key...]",
		Short: "Download objects to local files",
		Long: `Download one or more objects, or everything under --prefix. Downloads
are chunked, run with the configured concurrency, and resume automatically if
a previous attempt of the same object version left a partial file behind.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && prefix == "" {
				return fmt.Errorf("give at least one key or --prefix")
			}
			if output != "" && (len(args) > 1 || prefix != "") {
				return fmt.Errorf("--output only applies to a single key")
			}

			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			if prefix != "" {
				items, err := c.List(prefix, 0).All(ctx)
				if err != nil {
					return err
				}
				for _, item := range items {
					args = append(args, item.Key)
				}
				if len(args) == 0 {
					return fmt.Errorf("no objects under prefix %q", prefix)
				}
			}

			pre := conditional.Preconditions{IfMatch: ifMatch, IfNoneMatch: ifNoneMatch}

			dest := func(key string) string {
				if output != "" {
					return output
				}
				return filepath.Join(dir, filepath.Base(key))
			}

			if len(args) == 1 && !quiet {
				key := args[0]
				info, err := c.Stat(ctx, key)
				if err != nil {
					return err
				}
				bar := progress.NewBar()
				bar.Start(info.Size, key)
				_, err = c.DownloadFile(ctx, key, dest(key), client.DownloadOptions{
					Preconditions: pre,
					Progress:      progress.Func(bar),
				})
				if err != nil {
					bar.Error(err)
					return err
				}
				bar.Finish()
				return nil
			}

			ui := progress.NewBatchUI(len(args))
			failed := 0
			for i, key := range args {
				info, err := c.Stat(ctx, key)
				if err != nil {
					fmt.Fprintf(ui.LogWriter(), "✗ %s: %v\n", key, err)
					failed++
					continue
				}
				bar := ui.AddBar(i+1, key, info.Size)
				opts := client.DownloadOptions{Preconditions: pre}
				if !quiet {
					opts.Progress = progress.Func(bar)
				}
				if _, err := c.DownloadFile(ctx, key, dest(key), opts); err != nil {
					bar.Error(err)
					failed++
					continue
				}
				bar.Finish()
			}
			ui.Wait()

			if failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (single key only)")
	cmd.Flags().StringVar(&dir, "dir", ".", "Destination directory")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Download every object under this key prefix")
	cmd.Flags().StringVar(&ifMatch, "if-match", "", "Only download if the object's etag matches")
	cmd.Flags().StringVar(&ifNoneMatch, "if-none-match", "", "Only download if the object's etag differs")

	return cmd
}
