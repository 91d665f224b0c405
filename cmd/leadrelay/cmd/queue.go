package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bargom/leadrelay/internal/api/types"
	"github.com/bargom/leadrelay/internal/webhook/queue"
	"github.com/bargom/leadrelay/internal/webhook/service"
)

var clearConfirmed bool

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the offline delivery queue",
	}
	cmd.AddCommand(newQueueStatusCmd())
	cmd.AddCommand(newQueueDrainCmd())
	cmd.AddCommand(newQueueClearCmd())
	return cmd
}

// queueReport is the status output of the queue command.
type queueReport struct {
	service.QueueStatus
	Items []queueItem `json:"items"`
}

type queueItem struct {
	ID         string    `json:"id"`
	Endpoint   string    `json:"endpoint"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func reportQueue(a *app) queueReport {
	r := queueReport{QueueStatus: a.relay.QueueStatus(), Items: []queueItem{}}
	for _, it := range a.queue.All() {
		r.Items = append(r.Items, itemFrom(it))
	}
	return r
}

func itemFrom(it queue.Item) queueItem {
	return queueItem{ID: it.ID, Endpoint: it.EndpointName, Attempts: it.Attempts, EnqueuedAt: it.EnqueuedAt}
}

func newQueueStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the queued deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				r := reportQueue(a)
				return render(cmd, r, func(w io.Writer) { printQueue(w, r) })
			})
		},
	}
}

func printQueue(w io.Writer, r queueReport) {
	fmt.Fprintf(w, "Queued: %d\n", r.QueueLength)
	if r.OldestItem != nil {
		fmt.Fprintf(w, "Oldest: %s\n", r.OldestItem.Format(time.RFC3339))
	}
	if len(r.Items) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tENDPOINT\tATTEMPTS\tENQUEUED")
	for _, it := range r.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", it.ID, it.Endpoint, it.Attempts, it.EnqueuedAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func newQueueDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Replay the queued deliveries once",
		Long: `Run one replay pass over the offline queue. Items that fail again keep
their place and count one more attempt; items over the attempt limit are
dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.relay.Drain(ctx)
				if err != nil {
					return err
				}
				out := types.DrainFrom(res)
				return render(cmd, out, func(w io.Writer) {
					if out.Skipped != "" {
						fmt.Fprintf(w, "Drain skipped: %s\n", out.Skipped)
						return
					}
					fmt.Fprintf(w, "Processed %d: %d delivered, %d failed, %d dropped (%dms)\n",
						out.Processed, out.Delivered, out.Failed, out.Dropped, out.DurationMs)
				})
			})
		},
	}
}

func newQueueClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued delivery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !clearConfirmed {
				return fmt.Errorf("refusing to clear the queue without --yes")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n := a.queue.Len()
				if err := a.relay.ClearQueue(ctx); err != nil {
					return err
				}
				return render(cmd, map[string]int{"cleared": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Cleared %d queued deliveries\n", n)
				})
			})
		},
	}
	cmd.Flags().BoolVarP(&clearConfirmed, "yes", "y", false, "confirm clearing the queue")
	return cmd
}
