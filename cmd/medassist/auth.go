package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpang/medassist/internal/account"
	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/cli"
	"github.com/fpang/medassist/internal/session"
	"github.com/fpang/medassist/internal/transport"
)

var (
	emailFlag    string
	passwordFlag string
	nameFlag     string
	appIDFlag    string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and save the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p := cli.StdPrompter()
		req := account.LoginRequest{
			Email:    promptIfEmpty(p, emailFlag, "Email"),
			Password: promptIfEmpty(p, passwordFlag, "Password"),
			Language: cfg.Language,
		}
		sess, err := call(cmd.Context(), func() transport.Result[*session.Session] {
			return clients.Account.Login(cmd.Context(), req)
		})
		if err != nil {
			return err
		}
		return printSession(cmd, sess, "Signed in")
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p := cli.StdPrompter()
		req := account.RegisterRequest{
			Name:     promptIfEmpty(p, nameFlag, "Name"),
			Email:    promptIfEmpty(p, emailFlag, "Email"),
			Password: promptIfEmpty(p, passwordFlag, "Password"),
			AppID:    appIDFlag,
			Language: cfg.Language,
		}
		sess, err := call(cmd.Context(), func() transport.Result[*session.Session] {
			return clients.Account.Register(cmd.Context(), req)
		})
		if err != nil {
			return err
		}
		return printSession(cmd, sess, "Account created")
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := clients.Account.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !clients.Session.Authenticated() {
			return apierr.New(apierr.CodeAuthRequired, nil)
		}
		return printSession(cmd, clients.Session, "Signed in")
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&emailFlag, "email", "", "Account email")
		c.Flags().StringVar(&passwordFlag, "password", "", "Account password (prompted when omitted)")
	}
	registerCmd.Flags().StringVar(&nameFlag, "name", "", "Display name")
	registerCmd.Flags().StringVar(&appIDFlag, "app-id", "", "Application ID registered with the security service")
}

func promptIfEmpty(p *cli.Prompter, value, label string) string {
	if value != "" {
		return value
	}
	return p.PromptForLine(label, "")
}

func printSession(cmd *cobra.Command, sess *session.Session, verb string) error {
	if jsonFlag {
		return printJSON(sess.User)
	}
	u := sess.User
	fmt.Fprintf(cmd.OutOrStdout(), "%s as %s <%s> (id %s, language %s)\n", verb, u.Name, u.Email, u.ID, sess.Language)
	return nil
}
