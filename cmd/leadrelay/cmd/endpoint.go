package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bargom/leadrelay/internal/api/types"
)

func newEndpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "endpoint",
		Aliases: []string{"endpoints"},
		Short:   "Inspect the webhook endpoints",
	}
	cmd.AddCommand(newEndpointListCmd())
	cmd.AddCommand(newEndpointTestCmd())
	return cmd
}

func newEndpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List endpoints in delivery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				eps := types.EndpointsFrom(a.relay.Endpoints())
				return render(cmd, eps, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "NAME\tPRIORITY\tCONFIGURED\tCRITICAL")
					for _, ep := range eps {
						fmt.Fprintf(tw, "%s\t%d\t%t\t%t\n", ep.Name, ep.Priority, ep.Configured, ep.Critical)
					}
					tw.Flush()
				})
			})
		},
	}
}

func newEndpointTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <name>",
		Short: "Send a test payload to one endpoint",
		Example: `  leadrelay endpoint test zapier
  leadrelay endpoint test pipedrive --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.relay.TestEndpoint(ctx, args[0])
				out := types.DeliveryFrom(args[0], res, err)
				if rerr := render(cmd, out, func(w io.Writer) {
					if out.Success {
						fmt.Fprintf(w, "%s: HTTP %d after %d attempts (%dms)\n", out.Endpoint, out.StatusCode, out.Attempts, out.DurationMs)
						return
					}
					fmt.Fprintf(w, "%s: failed: %s\n", out.Endpoint, out.Error)
				}); rerr != nil {
					return rerr
				}
				return err
			})
		},
	}
}
