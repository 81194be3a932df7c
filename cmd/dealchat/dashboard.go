package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"medius/internal/api"
	"medius/internal/domain"
	"medius/internal/format"
)

type dashboard struct {
	deals         []domain.Deal
	notifications []domain.Notification
	contacts      []domain.Contact
	stats         *domain.UserStats
}

func fetchDashboard(ctx context.Context, c *api.Client) (*dashboard, error) {
	var d dashboard
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.deals, err = c.ListDeals(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.notifications, err = c.ListNotifications(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.contacts, err = c.ListContacts(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.stats, err = c.UserStats(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

func newDashboardCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show deals, notifications, contacts and stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.build()
			if err != nil {
				return err
			}
			defer closeApp(a)

			d, err := fetchDashboard(cmd.Context(), a.API)
			if err != nil {
				return fmt.Errorf("load dashboard: %w", err)
			}
			printDashboard(cmd.OutOrStdout(), d, time.Now())
			return nil
		},
	}
}

func printDashboard(out io.Writer, d *dashboard, now time.Time) {
	if s := d.stats; s != nil {
		fmt.Fprintf(out, "Active %d  Completed %d  Disputed %d  Volume %s  In escrow %s\n\n",
			s.ActiveDeals, s.CompletedDeals, s.DisputedDeals,
			format.Currency(&s.TotalVolumeUSD, "USD"), format.Currency(&s.InEscrowUSD, "USD"))
	}

	table := newTable(out, "Deal", "Title", "Status", "Amount", "Value", "Updated")
	for _, deal := range d.deals {
		id := deal.DealID
		if id == "" {
			id = deal.ID
		}
		table.Append([]string{id, deal.Title, deal.Status.Label(),
			format.Amount(deal.Amount, deal.CryptoType), format.Currency(deal.USDValue, "USD"),
			format.TimeAgo(deal.UpdatedAt, now)})
	}
	table.Render()

	fmt.Fprintln(out, "\nNotifications")
	if len(d.notifications) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, n := range d.notifications {
		mark := "*"
		if n.Read {
			mark = " "
		}
		fmt.Fprintf(out, " %s %s  %s  (%s)  [%s]\n", mark, n.Title, format.PlainText(n.Body), format.TimeAgo(n.CreatedAt, now), n.ID)
	}

	fmt.Fprintln(out, "\nContacts")
	if len(d.contacts) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, c := range d.contacts {
		fmt.Fprintf(out, "  %-3s %s  %d deals, last %s\n", format.Initials(c.Username), c.Username, c.DealCount, format.TimeAgo(c.LastDeal, now))
	}
}

// newTable returns a borderless table that leaves cell text unwrapped.
func newTable(out io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(true)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetBorder(false)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}

func newNotificationsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Manage notifications",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build()
			if err != nil {
				return err
			}
			defer closeApp(a)

			if err := a.API.MarkNotificationRead(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("mark read: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "notification %s marked as read\n", args[0])
			return nil
		},
	})
	return cmd
}
