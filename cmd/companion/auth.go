package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/companion/internal/chatapi"
)

func newLoginCmd(cfgPath *string) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			if strings.TrimSpace(email) == "" {
				if email, err = prompt(in, out, "email: "); err != nil {
					return err
				}
			}
			password, err := readSecret(in, out, "password: ")
			if err != nil {
				return err
			}
			sess, err := env.client.Login(cmd.Context(), strings.TrimSpace(email), password)
			if err != nil {
				return describeAPIError("login", err)
			}
			if err := env.sessions.Set(sess); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "logged in as %s\n", sess.DisplayName)
			return err
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newRegisterCmd(cfgPath *string) *cobra.Command {
	var username string
	var email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			if strings.TrimSpace(username) == "" {
				if username, err = prompt(in, out, "username: "); err != nil {
					return err
				}
			}
			if strings.TrimSpace(email) == "" {
				if email, err = prompt(in, out, "email: "); err != nil {
					return err
				}
			}
			password, err := readSecret(in, out, "password: ")
			if err != nil {
				return err
			}
			res, err := env.client.Register(cmd.Context(), strings.TrimSpace(username), strings.TrimSpace(email), password)
			if err != nil {
				return describeAPIError("register", err)
			}
			_, err = fmt.Fprintf(out, "%s (user id %d); run \"companion login\" to start chatting\n", res.Message, res.UserID)
			return err
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newLogoutCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			if err := env.sessions.Clear(); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return err
		},
	}
}

func newWhoamiCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			sess, ok := env.sessions.Current()
			if !ok {
				return errors.New("not logged in")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sess.DisplayName)
			return err
		},
	}
}

// describeAPIError turns client errors into messages fit for the terminal.
func describeAPIError(action string, err error) error {
	var apiErr *chatapi.APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Errorf("%s failed: %s", action, apiErr.Detail)
	case errors.Is(err, chatapi.ErrUnreachable):
		return fmt.Errorf("%s failed: cannot connect to server at the configured api.base_url", action)
	default:
		return fmt.Errorf("%s failed: %w", action, err)
	}
}
