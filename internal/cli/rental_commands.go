package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/readit-web/auth"
	"github.com/jrsteele09/readit-web/marketplace"
	"github.com/spf13/cobra"
)

const (
	lookupPerPage  = 50
	lookupMaxPages = 20
)

// findBook pages through the book list until bookID turns up
func findBook(ctx context.Context, api *marketplace.API, bookID string) (*marketplace.Book, error) {
	for page := 1; page <= lookupMaxPages; page++ {
		books, err := api.ListBooks(ctx, marketplace.BookQuery{BooksPerPage: lookupPerPage, PageNumber: page})
		if err != nil {
			return nil, err
		}
		for i := range books {
			if books[i].BookID == bookID {
				return &books[i], nil
			}
		}
		if len(books) < lookupPerPage {
			break
		}
	}
	return nil, fmt.Errorf("no book with id %s", bookID)
}

func newRentCommand(root *rootOptions) *cobra.Command {
	var days int
	var meetup marketplace.RentalRequest
	cmd := &cobra.Command{
		Use:   "rent <book-id>",
		Short: "Ask a book's owner to lend it to you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 || days > marketplace.MaxRentalDays {
				return fmt.Errorf("--days must be between 1 and %d", marketplace.MaxRentalDays)
			}
			return guarded(cmd, root, "/books", func(ctx context.Context, app *App) error {
				book, err := findBook(ctx, app.Market, args[0])
				if err != nil {
					return err
				}
				if book.DailyRentPrice <= 0 {
					return fmt.Errorf("%s is not for rent", book.Title)
				}
				exists, err := app.Market.HasRentalRequest(ctx, book.BookID)
				if err != nil {
					return err
				}
				if exists {
					return errors.New("you have already asked to rent this book")
				}

				req := marketplace.NewRentalRequest(*book, days)
				req.MeetupLocation = meetup.MeetupLocation
				req.MeetupDate = meetup.MeetupDate
				req.MeetupTimeWindow = meetup.MeetupTimeWindow
				if err := app.Market.CreateRental(ctx, req); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Asked %s to rent %s for %d days. %.2f Readits reserved.\n",
					book.OwnerUsername, book.Title, days, req.TotalRentCost)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 7, "rental period in days")
	cmd.Flags().StringVar(&meetup.MeetupLocation, "meetup-location", "", "where to pick the book up")
	cmd.Flags().StringVar(&meetup.MeetupDate, "meetup-date", "", "pickup date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&meetup.MeetupTimeWindow, "meetup-time", "", "pickup time window, e.g. 10:00-12:00")
	return cmd
}

func newBuyReaditsCommand(root *rootOptions) *cobra.Command {
	var pack string
	cmd := &cobra.Command{
		Use:   "buy-readits",
		Short: "Top up your wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !marketplace.ValidPack(pack) {
				return fmt.Errorf("--pack must be one of %v", marketplace.ReaditsPacks)
			}
			return guarded(cmd, root, auth.PathDashboard, func(ctx context.Context, app *App) error {
				invoice, err := app.Market.BuyReadits(ctx, pack)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pay for your %s pack at %s\n", pack, invoice)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pack, "pack", marketplace.ReaditsPacks[0], "Readits pack to buy")
	return cmd
}

// newRentalCommand groups the steps of a rental after it was requested
func newRentalCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rental",
		Short: "Move a rental along",
	}
	step := func(use, short, done string, call func(api *marketplace.API, ctx context.Context, id string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <rental-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return guarded(cmd, root, "/rentals", func(ctx context.Context, app *App) error {
					if err := call(app.Market, ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), done)
					return nil
				})
			},
		}
	}
	cmd.AddCommand(
		step("cancel", "Withdraw your rental request", "Rental request cancelled.", (*marketplace.API).CancelRental),
		step("pickup", "Confirm you handed over or received the book", "Pickup confirmed.", (*marketplace.API).ConfirmPickup),
		step("return", "Confirm the book came back", "Return confirmed.", (*marketplace.API).ConfirmReturn),
	)
	return cmd
}
