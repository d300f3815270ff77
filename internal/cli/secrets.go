package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	pkgauth "github.com/BradenHooton/marketguard/pkg/auth"
)

func newHashPasswordCmd() *cobra.Command {
	var (
		cost       int
		skipPolicy bool
	)

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash an admin password read from stdin for ADMIN_PASSWORD_HASH",
		Example: `  printf '%s' "$PASSWORD" | guardctl hash-password
  guardctl hash-password --cost 12 < password.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := hashPassword(cmd.InOrStdin(), cost, skipPolicy)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", pkgauth.DefaultBcryptCost, "bcrypt cost")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "hash without enforcing the admin password policy")

	return cmd
}

func hashPassword(in io.Reader, cost int, skipPolicy bool) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("no password on stdin")
	}

	if !skipPolicy {
		if err := pkgauth.ValidatePassword(password); err != nil {
			return "", err
		}
	}
	return pkgauth.HashPassword(password, cost)
}

func newGenSecretCmd() *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:   "gen-secret",
		Short: "Generate a random JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := pkgauth.GenerateSecret(length)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}

	cmd.Flags().IntVar(&length, "bytes", pkgauth.SecretLength, "random bytes before base64 encoding")

	return cmd
}
