package cli

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jrsteele09/readit-web/marketplace"
	"github.com/spf13/cobra"
)

var namePattern = regexp.MustCompile(`^[A-Za-z\s.'-]+$`)

func checkListing(l marketplace.BookListing) error {
	if !namePattern.MatchString(l.Title) {
		return errors.New("--title may only use letters, spaces and . ' -")
	}
	if !namePattern.MatchString(l.Author) {
		return errors.New("--author may only use letters, spaces and . ' -")
	}
	if l.DailyRentPrice < 0 || l.SecurityDeposit < 0 || l.PurchasePrice < 0 {
		return errors.New("prices cannot be negative")
	}
	return nil
}

func listingFlags(cmd *cobra.Command, l *marketplace.BookListing) {
	f := cmd.Flags()
	f.StringVar(&l.Title, "title", "", "book title")
	f.StringVar(&l.Author, "author", "", "author")
	f.StringVar(&l.Genre, "genre", "", "genre")
	f.StringVar(&l.Condition, "condition", "Good", "condition of your copy")
	f.StringVar(&l.Description, "description", "", "a few words about the book")
	f.StringVar(&l.Availability, "availability", "For Rent", `"For Rent" or "For Sale"`)
	f.Float64Var(&l.DailyRentPrice, "rent-price", 0, "Readits per day")
	f.Float64Var(&l.SecurityDeposit, "deposit", 0, "refundable deposit in Readits")
	f.Float64Var(&l.PurchasePrice, "price", 0, "sale price in Readits")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("author")
}

// newListingCommand manages the books the user offers
func newListingCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listing",
		Short: "Add, change or remove your books",
	}

	var added marketplace.BookListing
	add := &cobra.Command{
		Use:   "add",
		Short: "List a book for rent or sale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkListing(added); err != nil {
				return err
			}
			return guarded(cmd, root, "/books", func(ctx context.Context, app *App) error {
				id, err := app.Market.CreateBook(ctx, added)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Listed %s as %s.\n", added.Title, id)
				return nil
			})
		},
	}
	listingFlags(add, &added)

	var updated marketplace.BookListing
	update := &cobra.Command{
		Use:   "update <book-id>",
		Short: "Replace the details of a listed book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkListing(updated); err != nil {
				return err
			}
			return guarded(cmd, root, "/books", func(ctx context.Context, app *App) error {
				if err := app.Market.UpdateBook(ctx, args[0], updated); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s.\n", updated.Title)
				return nil
			})
		},
	}
	listingFlags(update, &updated)

	var title string
	remove := &cobra.Command{
		Use:   "remove <book-id>",
		Short: "Take a book off Readit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return guarded(cmd, root, "/books", func(ctx context.Context, app *App) error {
				if err := app.Market.DeleteBook(ctx, args[0], title); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", title)
				return nil
			})
		},
	}
	remove.Flags().StringVar(&title, "title", "", "the book's exact title, to confirm")
	_ = remove.MarkFlagRequired("title")

	cmd.AddCommand(add, update, remove)
	return cmd
}
