package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/transit/internal/constants"
)

func newLsCmd() *cobra.Command {
	var (
		pageSize int
		limit    int
		fromTok  string
		longFmt  bool
	)

	cmd := &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List objects",
		Long: `List objects under a prefix. Listing pages through the backend with
continuation tokens; --from resumes a previous listing from its token.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			cursor := c.List(prefix, pageSize)
			if fromTok != "" {
				cursor = c.ListFrom(prefix, fromTok, pageSize)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			printed := 0
			for {
				page, ok, err := cursor.NextPage(ctx)
				if err != nil {
					w.Flush()
					if printed > 0 && cursor.Token() != "" {
						fmt.Fprintf(os.Stderr, "listing interrupted; resume with --from %s\n", cursor.Token())
					}
					return err
				}
				if !ok {
					break
				}
				for _, item := range page.Items {
					if longFmt {
						fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
							item.Size, item.LastModified.Format("2006-01-02 15:04:05"), item.ETag, item.Key)
					} else {
						fmt.Fprintln(w, item.Key)
					}
					printed++
					if limit > 0 && printed >= limit {
						w.Flush()
						if cursor.Token() != "" {
							fmt.Fprintf(os.Stderr, "more results; resume with --from %s\n", cursor.Token())
						}
						return nil
					}
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", constants.DefaultPageSize, "Results per page")
	cmd.Flags().IntVar(&limit, "max", 0, "Stop after this many results (0 = all)")
	cmd.Flags().StringVar(&fromTok, "from", "", "Continuation token from a previous listing")
	cmd.Flags().BoolVarP(&longFmt, "long", "l", false, "Show size, modification time, and etag")

	return cmd
}
