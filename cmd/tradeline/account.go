package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/tradeline/internal/pipeline"
)

// passwordEnv is read when --password is not given.
const passwordEnv = "TRADELINE_PASSWORD"

// withPipeline opens a pipeline for a one-shot command. No channel is
// opened because Run is never called.
func (a *app) withPipeline(ctx context.Context, fn func(*pipeline.Pipeline) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := pipeline.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(p)
}

func password(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	return "", errors.New("password required: use --password or " + passwordEnv)
}

func newLoginCmd(a *app) *cobra.Command {
	var username, pw string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the legacy username/password endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := password(pw)
			if err != nil {
				return err
			}
			return a.withPipeline(cmd.Context(), func(p *pipeline.Pipeline) error {
				id, err := p.Login(cmd.Context(), username, secret)
				if err != nil {
					return err
				}
				if !id.Authenticated {
					return errors.New("login accepted but no user could be resolved")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", id.User.DisplayName())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&pw, "password", "p", "", "account password (default $"+passwordEnv+")")
	cmd.MarkFlagRequired("username")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var username, email, pw string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := password(pw)
			if err != nil {
				return err
			}
			return a.withPipeline(cmd.Context(), func(p *pipeline.Pipeline) error {
				msg, err := p.Register(cmd.Context(), username, email, secret)
				if err != nil {
					return err
				}
				if msg == "" {
					msg = "account created"
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&pw, "password", "p", "", "account password (default $"+passwordEnv+")")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the cached identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPipeline(cmd.Context(), func(p *pipeline.Pipeline) error {
				if err := p.Logout(cmd.Context()); err != nil {
					// The local sign-out already happened.
					a.logger.Warn("server logout failed", "error", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Resolve and print the current identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPipeline(cmd.Context(), func(p *pipeline.Pipeline) error {
				id := p.Resolve(cmd.Context())
				if !id.Authenticated {
					fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (source: %s)\n", id.User.DisplayName(), id.Source)
				return nil
			})
		},
	}
}
