package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jrsteele09/readit-web/auth"
	apperrors "github.com/jrsteele09/readit-web/internal/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// PasswordEnv supplies the password to `readit login` without a prompt
const PasswordEnv = "READIT_PASSWORD"

func newLoginCommand(root *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with your email address and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(PasswordEnv)
			}
			if password == "" {
				p, err := promptLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return err
				}
				password = p
			}
			return withApp(cmd, root, func(ctx context.Context, app *App) error {
				return login(ctx, cmd.OutOrStdout(), app, auth.LoginForm{EmailAddress: email, Password: password})
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (or set "+PasswordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func login(ctx context.Context, out io.Writer, app *App, form auth.LoginForm) error {
	svc := app.Context.Service
	resp, fieldErrs, err := svc.Login(ctx, form)
	if len(fieldErrs) > 0 {
		for _, fe := range fieldErrs {
			fmt.Fprintf(out, "%s: %s\n", fe.Name, fe.Message)
		}
		return errors.New("login form is invalid")
	}
	if err != nil {
		return friendly(err, "login failed")
	}

	if !resp.IsEmailVerified {
		if err := svc.SendVerificationEmail(ctx, resp.UserID); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("verification email not sent")
		}
		fmt.Fprintf(out, "Signed in as %s. Your email address is not verified yet.\n", resp.Username)
		fmt.Fprintln(out, "We sent you a code: run `readit verify --code <code>`.")
		return nil
	}
	fmt.Fprintf(out, "Signed in as %s.\n", resp.Username)
	return nil
}

func newLogoutCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, func(ctx context.Context, app *App) error {
				if app.Jar.Len() == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
					return nil
				}
				if err := app.Context.Service.Logout(ctx); err != nil {
					zerolog.Ctx(ctx).Warn().Err(err).Msg("backend logout failed")
				}
				app.Jar.Clear()
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}

func newVerifyCommand(root *rootOptions) *cobra.Command {
	var code string
	var resend bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify your email address with the code we sent you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code == "" && !resend {
				return errors.New("pass --code or --resend")
			}
			return withApp(cmd, root, func(ctx context.Context, app *App) error {
				svc := app.Context.Service
				if err := svc.ConfirmIdentity(ctx); err != nil {
					return ErrNotLoggedIn
				}
				session := app.Context.Store.Get()
				if session.IsEmailVerified {
					fmt.Fprintln(cmd.OutOrStdout(), "Your email address is already verified.")
					return nil
				}
				if resend {
					if err := svc.ResendVerificationCode(ctx, session.UserID); err != nil {
						return friendly(err, "could not resend the code")
					}
					fmt.Fprintln(cmd.OutOrStdout(), "A new code is on its way.")
					return nil
				}
				if err := svc.VerifyEmail(ctx, session.UserID, code); err != nil {
					return friendly(err, "verification failed")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Email address verified.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "verification code")
	cmd.Flags().BoolVar(&resend, "resend", false, "send a new code")
	return cmd
}

func newWhoamiCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show who is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, func(ctx context.Context, app *App) error {
				out := cmd.OutOrStdout()
				if err := app.Context.Service.ConfirmIdentity(ctx); err != nil {
					if errors.Is(err, apperrors.ErrUnauthenticated) {
						fmt.Fprintln(out, "Not logged in.")
						return nil
					}
					return err
				}
				s := app.Context.Store.Get()
				fmt.Fprintf(out, "%s (%s, %s sign-in", s.Username, s.UserID, s.AuthProvider)
				if !s.IsEmailVerified {
					fmt.Fprint(out, ", email not verified")
				}
				fmt.Fprintln(out, ")")
				return nil
			})
		},
	}
}

// friendly keeps the backend's own message for rejected requests
func friendly(err error, fallback string) error {
	switch {
	case errors.Is(err, apperrors.ErrSessionExpired):
		return ErrNotLoggedIn
	case errors.Is(err, apperrors.ErrClient):
		if msg := apperrors.UserMessage(err); msg != "" {
			return errors.New(msg)
		}
		return errors.New(fallback)
	}
	return err
}

func promptLine(in io.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("[cli promptLine] read: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
