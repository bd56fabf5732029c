package cli

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	dir     string
	verbose bool
}

// NewRootCommand builds the readit command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "readit",
		Short: "Readit from the terminal",
		Long: `readit signs in to the Readit book marketplace and shows your dashboard,
wallet, books and notifications. It also rents books, tops up your wallet and
manages the books you list.

Your session is kept in ~/.readit/cookies.json, like a browser keeps its cookies.
Set READIT_API_URL or api_url in ~/.readit/config.yaml to choose the backend.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.dir, "dir", DefaultDir(), "settings and session directory")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log backend calls")

	cmd.AddCommand(
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newVerifyCommand(opts),
		newWhoamiCommand(opts),
		newDashboardCommand(opts),
		newBalanceCommand(opts),
		newBooksCommand(opts),
		newNotificationsCommand(opts),
		newRentCommand(opts),
		newRentalCommand(opts),
		newBuyReaditsCommand(opts),
		newListingCommand(opts),
	)
	return cmd
}

// Execute runs the command tree against the process arguments
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// withApp runs fn with a fresh App and saves the session afterwards, also when fn fails
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, app *App) error) (err error) {
	app, err := NewApp(opts.dir, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = newLogger(cmd.ErrOrStderr(), opts.verbose).WithContext(ctx)
	return fn(ctx, app)
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).Level(level).With().Timestamp().Logger()
}
