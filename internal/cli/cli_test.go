package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/readit-web/internal/cli"
	"github.com/jrsteele09/readit-web/internal/fakeapi"
	"github.com/stretchr/testify/require"
)

const (
	readerEmail = "reader@example.com"
	newbieEmail = "newbie@example.com"
	password    = "Sup3r$ecret"
)

type result struct {
	stdout string
	stderr string
	err    error
}

func newBackend(t *testing.T) *fakeapi.Backend {
	t.Helper()
	backend := fakeapi.New(t)
	backend.AddAccount(fakeapi.Account{UserID: "user-1", Username: "reader", Email: readerEmail, Password: password, EmailVerified: true})
	backend.AddAccount(fakeapi.Account{UserID: "user-2", Username: "newbie", Email: newbieEmail, Password: password})
	t.Setenv(cli.APIURLEnv, backend.URL)
	t.Setenv(cli.PasswordEnv, "")
	return backend
}

// run executes one readit invocation, the way a fresh process would
func run(t *testing.T, dir, stdin string, args ...string) result {
	t.Helper()
	cmd := cli.NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--dir", dir}, args...))
	err := cmd.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func cookieFile(dir string) string {
	return filepath.Join(dir, "cookies.json")
}

func TestLogin(t *testing.T) {
	t.Run("persists the session for later runs", func(t *testing.T) {
		backend := newBackend(t)
		dir := t.TempDir()

		res := run(t, dir, "", "login", "--email", readerEmail, "--password", password)
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "Signed in as reader.")

		info, err := os.Stat(cookieFile(dir))
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		res = run(t, dir, "", "whoami")
		require.NoError(t, res.err)
		require.Equal(t, "reader (user-1, password sign-in)\n", res.stdout)
		require.Equal(t, 0, backend.Calls("POST /api/users/refresh"))
	})

	t.Run("reads the password from stdin", func(t *testing.T) {
		newBackend(t)
		dir := t.TempDir()

		res := run(t, dir, password+"\n", "login", "--email", readerEmail)
		require.NoError(t, res.err)
		require.Contains(t, res.stderr, "Password: ")
		require.Contains(t, res.stdout, "Signed in as reader.")
	})

	t.Run("reads the password from the environment", func(t *testing.T) {
		newBackend(t)
		t.Setenv(cli.PasswordEnv, password)
		dir := t.TempDir()

		res := run(t, dir, "", "login", "--email", readerEmail)
		require.NoError(t, res.err)
		require.NotContains(t, res.stderr, "Password: ")
	})

	t.Run("wrong password keeps the backend message", func(t *testing.T) {
		newBackend(t)
		dir := t.TempDir()

		res := run(t, dir, "", "login", "--email", readerEmail, "--password", "Wr0ng$password")
		require.EqualError(t, res.err, "Invalid email or password.")
		require.NoFileExists(t, cookieFile(dir))
	})

	t.Run("invalid form never reaches the backend", func(t *testing.T) {
		backend := newBackend(t)
		dir := t.TempDir()

		res := run(t, dir, "", "login", "--email", "not-an-email", "--password", password)
		require.Error(t, res.err)
		require.Contains(t, res.stdout, "emailAddress:")
		require.Equal(t, 0, backend.Calls("POST /api/users/login"))
	})
}

func TestUnverifiedAccount(t *testing.T) {
	backend := newBackend(t)
	dir := t.TempDir()

	res := run(t, dir, "", "login", "--email", newbieEmail, "--password", password)
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "not verified")
	require.Equal(t, 1, backend.Calls("POST /api/users/send-verification-email"))

	res = run(t, dir, "", "dashboard")
	require.ErrorIs(t, res.err, cli.ErrUnverified)

	res = run(t, dir, "", "verify", "--resend")
	require.NoError(t, res.err)
	require.Equal(t, 1, backend.Calls("POST /api/users/resend-verification-code"))

	res = run(t, dir, "", "verify", "--code", "000000")
	require.EqualError(t, res.err, "The code is invalid or has expired.")

	res = run(t, dir, "", "verify", "--code", fakeapi.ValidCode)
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "Email address verified.")

	res = run(t, dir, "", "dashboard")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "Welcome back, newbie")
}

func TestLogout(t *testing.T) {
	backend := newBackend(t)
	dir := t.TempDir()

	require.NoError(t, run(t, dir, "", "login", "--email", readerEmail, "--password", password).err)
	require.FileExists(t, cookieFile(dir))

	res := run(t, dir, "", "logout")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "Signed out.")
	require.NoFileExists(t, cookieFile(dir))
	require.Equal(t, 1, backend.Calls("POST /api/users/logout"))

	res = run(t, dir, "", "logout")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "Not logged in.")

	res = run(t, dir, "", "dashboard")
	require.ErrorIs(t, res.err, cli.ErrNotLoggedIn)
}

func TestWhoami_NotLoggedIn(t *testing.T) {
	newBackend(t)
	res := run(t, t.TempDir(), "", "whoami")
	require.NoError(t, res.err)
	require.Equal(t, "Not logged in.\n", res.stdout)
}

func TestSessionRenewal(t *testing.T) {
	t.Run("expired access token is refreshed and saved", func(t *testing.T) {
		backend := newBackend(t)
		dir := t.TempDir()
		require.NoError(t, run(t, dir, "", "login", "--email", readerEmail, "--password", password).err)
		before, err := os.ReadFile(cookieFile(dir))
		require.NoError(t, err)

		backend.ExpireAccessTokens()
		res := run(t, dir, "", "balance")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "210.00")
		require.Equal(t, 1, backend.Calls("POST /api/users/refresh"))

		after, err := os.ReadFile(cookieFile(dir))
		require.NoError(t, err)
		require.NotEqual(t, string(before), string(after))

		require.NoError(t, run(t, dir, "", "balance").err)
		require.Equal(t, 1, backend.Calls("POST /api/users/refresh"))
	})

	t.Run("revoked session asks the user to log in again", func(t *testing.T) {
		backend := newBackend(t)
		dir := t.TempDir()
		require.NoError(t, run(t, dir, "", "login", "--email", readerEmail, "--password", password).err)

		backend.ExpireAccessTokens()
		backend.RevokeRefreshTokens()
		res := run(t, dir, "", "dashboard")
		require.ErrorIs(t, res.err, cli.ErrNotLoggedIn)
		require.Contains(t, res.stderr, "Your session has expired. Run `readit login` to sign in again.")
	})
}

func TestMarketplaceCommands(t *testing.T) {
	backend := newBackend(t)
	dir := t.TempDir()
	require.NoError(t, run(t, dir, "", "login", "--email", readerEmail, "--password", password).err)

	t.Run("dashboard", func(t *testing.T) {
		res := run(t, dir, "", "dashboard")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "Welcome back, reader")
		require.Regexp(t, `Books borrowed\s+3`, res.stdout)
		require.Regexp(t, `Total earnings\s+120\.50`, res.stdout)
		require.Regexp(t, `Available Readits\s+210\.00`, res.stdout)
	})

	t.Run("balance", func(t *testing.T) {
		res := run(t, dir, "", "balance")
		require.NoError(t, res.err)
		require.Regexp(t, `Current\s+250\.00`, res.stdout)
		require.Regexp(t, `Reserved\s+40\.00`, res.stdout)
	})

	t.Run("books passes the filters through", func(t *testing.T) {
		res := run(t, dir, "", "books", "--search", "noli", "--genre", "Classic", "--page", "2")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "Noli Me Tangere")
		require.Contains(t, res.stdout, "300.00")
		require.Contains(t, res.stdout, "5.00/day")

		query := backend.LastQuery("GET /api/books/")
		require.Contains(t, query, "searchValue=noli")
		require.Contains(t, query, "bookGenre=Classic")
		require.Contains(t, query, "pageNumber=2")
	})

	t.Run("books rejects page zero", func(t *testing.T) {
		res := run(t, dir, "", "books", "--page", "0")
		require.Error(t, res.err)
	})

	t.Run("notifications", func(t *testing.T) {
		res := run(t, dir, "", "notifications", "--unread")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "Rental request")
		require.Contains(t, res.stdout, "*")
		require.Contains(t, backend.LastQuery("GET /api/notifications"), "readStatus=unread")
	})
}

func TestConfigFile(t *testing.T) {
	backend := newBackend(t)
	t.Setenv(cli.APIURLEnv, "")
	dir := t.TempDir()

	cfg := cli.DefaultConfig()
	cfg.APIURL = backend.URL + "/"
	require.NoError(t, cli.SaveConfig(dir, cfg))

	res := run(t, dir, "", "login", "--email", readerEmail, "--password", password)
	require.NoError(t, res.err)
	require.Equal(t, 1, backend.Calls("POST /api/users/login"))
}

func TestRentAndTopUp(t *testing.T) {
	backend := newBackend(t)
	dir := t.TempDir()
	require.NoError(t, run(t, dir, "", "login", "--email", readerEmail, "--password", password).err)

	t.Run("rent reserves the cost and files the request once", func(t *testing.T) {
		res := run(t, dir, "", "rent", "book-1", "--days", "3", "--meetup-location", "Library", "--meetup-time", "10:00-12:00")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "The Left Hand of Darkness for 3 days. 65.00 Readits reserved.")
		require.JSONEq(t, `{"amount_to_reserve":65}`, string(backend.LastBody("PATCH /api/wallets/update-reserved-amount")))
		require.Contains(t, string(backend.LastBody("POST /api/rentals/create")), `"meetupLocation":"Library"`)

		res = run(t, dir, "", "rent", "book-1", "--days", "3")
		require.EqualError(t, res.err, "you have already asked to rent this book")
		require.Equal(t, 1, backend.Calls("POST /api/rentals/create"))
	})

	t.Run("books for sale cannot be rented", func(t *testing.T) {
		res := run(t, dir, "", "rent", "book-2")
		require.EqualError(t, res.err, "Noli Me Tangere is not for rent")
	})

	t.Run("unknown book", func(t *testing.T) {
		res := run(t, dir, "", "rent", "book-404")
		require.EqualError(t, res.err, "no book with id book-404")
	})

	t.Run("rental period is checked locally", func(t *testing.T) {
		before := backend.Calls("GET /api/books/")
		res := run(t, dir, "", "rent", "book-1", "--days", "45")
		require.Error(t, res.err)
		require.Equal(t, before, backend.Calls("GET /api/books/"))
	})

	t.Run("buy readits prints the invoice", func(t *testing.T) {
		res := run(t, dir, "", "buy-readits", "--pack", "bookworm")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, fakeapi.InvoiceURL+"bookworm")

		res = run(t, dir, "", "buy-readits", "--pack", "whale")
		require.Error(t, res.err)
		require.Equal(t, 1, backend.Calls("POST /api/wallets/buy-readits"))
	})

	t.Run("rental steps", func(t *testing.T) {
		for _, step := range []struct{ cmd, id, route string }{
			{cmd: "cancel", id: "rental-9", route: "POST /api/rentals/rental-9/cancel"},
			{cmd: "pickup", id: "rental-1", route: "POST /api/rentals/rental-1/confirm-pickup"},
			{cmd: "return", id: "rental-1", route: "POST /api/rentals/rental-1/confirm-return"},
		} {
			res := run(t, dir, "", "rental", step.cmd, step.id)
			require.NoError(t, res.err, step.cmd)
			require.Equal(t, 1, backend.Calls(step.route), step.cmd)
		}
	})
}

func TestListing(t *testing.T) {
	backend := newBackend(t)
	dir := t.TempDir()
	require.NoError(t, run(t, dir, "", "login", "--email", readerEmail, "--password", password).err)

	t.Run("add and update", func(t *testing.T) {
		res := run(t, dir, "", "listing", "add", "--title", "Dune", "--author", "Frank Herbert", "--rent-price", "4", "--deposit", "30")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "Listed Dune as book-")
		require.Contains(t, string(backend.LastBody("POST /api/books/")), `name="securityDeposit"`)

		res = run(t, dir, "", "listing", "update", "book-1", "--title", "Dune Messiah", "--author", "Frank Herbert")
		require.NoError(t, res.err)
		require.Equal(t, 1, backend.Calls("PATCH /api/books/book-1"))
	})

	t.Run("names are checked before the backend", func(t *testing.T) {
		before := backend.Calls("POST /api/books/")
		res := run(t, dir, "", "listing", "add", "--title", "Catch-22!", "--author", "Joseph Heller")
		require.ErrorContains(t, res.err, "--title")
		require.Equal(t, before, backend.Calls("POST /api/books/"))
	})

	t.Run("remove needs the exact title", func(t *testing.T) {
		res := run(t, dir, "", "listing", "remove", "book-1", "--title", "Wrong")
		require.EqualError(t, res.err, "The title does not match.")

		res = run(t, dir, "", "listing", "remove", "book-1", "--title", "The Left Hand of Darkness")
		require.NoError(t, res.err)
		require.Contains(t, res.stdout, "Removed The Left Hand of Darkness.")
	})
}
