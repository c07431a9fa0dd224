package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cvchat/cvchat/internal/auth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for PASSWORD_HASH",
		Long: "Reads a password (hidden when stdin is a terminal, otherwise the first line of stdin) " +
			"and prints a bcrypt hash suitable for PASSWORD_HASH in the secrets file or environment.",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readSecret()
			if err != nil {
				return err
			}
			if pw == "" {
				return fmt.Errorf("password must not be empty")
			}
			hash, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
