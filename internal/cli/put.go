package cli

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/transit/internal/client"
	"github.com/meridian-labs/transit/internal/conditional"
	"github.com/meridian-labs/transit/internal/progress"
)

func newPutCmd() *cobra.Command {
	var (
		key       string
		prefix    string
		noClobber bool
		ifMatch   string
	)

	cmd := &cobra.Command{
		Use:   "put <file> [file...]",
		Short: "Upload local files",
		Long: `Upload one or more files. Files at or below the single-shot threshold go
as one request; larger files run as a chunked session with the configured
concurrency.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key != "" && len(args) > 1 {
				return fmt.Errorf("--key only applies to a single file")
			}

			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			pre := conditional.Preconditions{IfMatch: ifMatch}
			if noClobber {
				pre.IfNoneMatch = "*"
			}

			destKey := func(file string) string {
				if key != "" {
					return key
				}
				return path.Join(prefix, filepath.Base(file))
			}

			if len(args) == 1 && !quiet {
				file := args[0]
				st, err := os.Stat(file)
				if err != nil {
					return err
				}
				bar := progress.NewBar()
				bar.Start(st.Size(), destKey(file))
				_, err = c.UploadFile(ctx, destKey(file), file, client.UploadOptions{
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
			for i, file := range args {
				st, err := os.Stat(file)
				if err != nil {
					fmt.Fprintf(ui.LogWriter(), "✗ %s: %v\n", file, err)
					failed++
					continue
				}
				bar := ui.AddBar(i+1, destKey(file), st.Size())
				opts := client.UploadOptions{Preconditions: pre}
				if !quiet {
					opts.Progress = progress.Func(bar)
				}
				if _, err := c.UploadFile(ctx, destKey(file), file, opts); err != nil {
					bar.Error(err)
					failed++
					continue
				}
				bar.Finish()
			}
			ui.Wait()

			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "Destination key (single file only; defaults to the file name)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix for uploaded files")
	cmd.Flags().BoolVar(&noClobber, "no-clobber", false, "Fail if the destination already exists")
	cmd.Flags().StringVar(&ifMatch, "if-match", "", "Only overwrite if the object's etag matches")

	return cmd
}
