package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jrsteele09/readit-web/auth"
	"github.com/jrsteele09/readit-web/marketplace"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
}

// guarded runs fn once the route guard has admitted path
func guarded(cmd *cobra.Command, root *rootOptions, path string, fn func(ctx context.Context, app *App) error) error {
	return withApp(cmd, root, func(ctx context.Context, app *App) error {
		if err := app.RequireSession(ctx, path); err != nil {
			return err
		}
		return friendly(fn(ctx, app), "request rejected")
	})
}

func newDashboardCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show your rentals, sales and wallet at a glance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return guarded(cmd, root, auth.PathDashboard, func(ctx context.Context, app *App) error {
				var summary *marketplace.DashboardSummary
				var wallet *marketplace.Wallet
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() (err error) {
					summary, err = app.Market.DashboardSummary(gctx)
					return err
				})
				g.Go(func() (err error) {
					wallet, err = app.Market.WalletBalance(gctx)
					return err
				})
				if err := g.Wait(); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Welcome back, %s\n\n", app.Context.Store.Get().Username)
				w := newTable(cmd.OutOrStdout())
				fmt.Fprintf(w, "Books borrowed\t%d\n", summary.BooksBorrowed)
				fmt.Fprintf(w, "Currently renting\t%d\n", summary.CurrentlyRenting)
				fmt.Fprintf(w, "Currently lending\t%d\n", summary.CurrentlyLending)
				fmt.Fprintf(w, "Books bought\t%d\n", summary.BooksBought)
				fmt.Fprintf(w, "Books sold\t%d\n", summary.BooksSold)
				fmt.Fprintf(w, "Total earnings\t%.2f\n", summary.TotalEarnings)
				fmt.Fprintf(w, "Available Readits\t%.2f\n", wallet.Available())
				return w.Flush()
			})
		},
	}
}

func newBalanceCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show your wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return guarded(cmd, root, auth.PathDashboard, func(ctx context.Context, app *App) error {
				wallet, err := app.Market.WalletBalance(ctx)
				if err != nil {
					return err
				}
				w := newTable(cmd.OutOrStdout())
				fmt.Fprintf(w, "Current\t%.2f\n", wallet.Current)
				fmt.Fprintf(w, "Reserved\t%.2f\n", wallet.Reserved)
				fmt.Fprintf(w, "Available\t%.2f\n", wallet.Available())
				return w.Flush()
			})
		},
	}
}

func newBooksCommand(root *rootOptions) *cobra.Command {
	var q marketplace.BookQuery
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Browse books for rent and for sale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if q.PageNumber < 1 {
				return errors.New("--page starts at 1")
			}
			return guarded(cmd, root, "/books", func(ctx context.Context, app *App) error {
				books, err := app.Market.ListBooks(ctx, q)
				if err != nil {
					return err
				}
				if len(books) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No books match.")
					return nil
				}
				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tGENRE\tAVAILABILITY\tPRICE\tOWNER")
				for _, b := range books {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						b.BookID, b.Title, b.Author, b.Genre, b.Availability, price(b), b.OwnerUsername)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&q.Search, "search", "s", "", "title or author")
	cmd.Flags().StringVar(&q.Genre, "genre", "", "only this genre")
	cmd.Flags().StringVar(&q.Availability, "availability", "", `"For Rent" or "For Sale"`)
	cmd.Flags().IntVar(&q.PageNumber, "page", 1, "page number")
	cmd.Flags().IntVar(&q.BooksPerPage, "per-page", 12, "books per page")
	return cmd
}

func price(b marketplace.Book) string {
	if b.PurchasePrice > 0 {
		return fmt.Sprintf("%.2f", b.PurchasePrice)
	}
	return fmt.Sprintf("%.2f/day", b.DailyRentPrice)
}

func newNotificationsCommand(root *rootOptions) *cobra.Command {
	var unread bool
	q := marketplace.NotificationQuery{Order: "newest"}
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List your notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if unread {
				q.ReadStatus = "unread"
			}
			return guarded(cmd, root, "/notifications", func(ctx context.Context, app *App) error {
				items, err := app.Market.Notifications(ctx, q)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing new.")
					return nil
				}
				w := newTable(cmd.OutOrStdout())
				for _, n := range items {
					mark := " "
					if !n.IsRead {
						mark = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, n.CreatedAt, n.Header, n.Message)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	cmd.Flags().IntVar(&q.PageNumber, "page", 1, "page number")
	cmd.Flags().IntVar(&q.PerPage, "per-page", 20, "notifications per page")
	return cmd
}
