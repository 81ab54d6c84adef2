// Command authctl is an operator tool for the auth service: it hashes
// passwords for seeding stores and issues or inspects bearer tokens using
// the same configuration as the API.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/redmonkez12/shelfshare-auth/internal/auth"
	"github.com/redmonkez12/shelfshare-auth/internal/config"
	"github.com/redmonkez12/shelfshare-auth/internal/password"
)

func main() {
	if err := newRootCmd(config.Load).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operate the shelfshare auth service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newHashPasswordCmd(), newTokenCmd(loadConfig))
	return rootCmd
}

func newHashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Hash a password (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			algorithm, _ := cmd.Flags().GetString("algorithm")

			hasher, err := password.New(algorithm)
			if err != nil {
				return err
			}

			plaintext, err := readSecret(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			hash, err := hasher.Hash(plaintext)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().String("algorithm", password.AlgorithmArgon2id, "Hash algorithm (argon2id, bcrypt)")
	return cmd
}

func newTokenCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue or verify bearer tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token for a subject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			svc, err := tokenServiceFromConfig(loadConfig, ttl)
			if err != nil {
				return err
			}

			token, claims, err := svc.Issue(subject, strings.ToLower(strings.TrimSpace(email)))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintln(cmd.ErrOrStderr(), subtleStyle.Render("expires "+claims.ExpiresAt.Format(time.RFC3339)))
			return nil
		},
	}
	issueCmd.Flags().String("subject", "", "User ID to place in the token")
	issueCmd.Flags().String("email", "", "Email to place in the token")
	issueCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to AUTH_TOKEN_TTL_SECONDS)")
	_ = issueCmd.MarkFlagRequired("subject")
	_ = issueCmd.MarkFlagRequired("email")

	verifyCmd := &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := tokenServiceFromConfig(loadConfig, 0)
			if err != nil {
				return err
			}

			claims, err := svc.Verify(args[0])
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("valid token"))
			fmt.Fprintf(out, "subject:    %s\n", claims.Subject)
			fmt.Fprintf(out, "email:      %s\n", claims.Email)
			fmt.Fprintf(out, "issued_at:  %s\n", claims.IssuedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "expires_at: %s\n", claims.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}

	tokenCmd.AddCommand(issueCmd, verifyCmd)
	return tokenCmd
}

func tokenServiceFromConfig(loadConfig func() (*config.Config, error), ttl time.Duration) (auth.TokenService, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	opts := []auth.TokenOption{
		auth.WithTTL(cfg.Auth.TokenTTL),
		auth.WithIssuer(cfg.Auth.Issuer),
	}
	if ttl > 0 {
		opts = append(opts, auth.WithTTL(ttl))
	}

	if cfg.Auth.TokenFormat == "paseto" {
		return auth.NewPasetoService(cfg.Auth.SigningSecret, opts...)
	}
	return auth.NewJWTService(cfg.Auth.SigningSecret, opts...)
}

func readSecret(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password must not be empty")
	}
	return line, nil
}
