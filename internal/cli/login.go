package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/skytap/internal/config"
)

var (
	loginIdentity string
	loginForget   bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the Bluesky app password in the OS keyring",
	Long: "login reads an app password from $BLUESKY_APP_PASSWORD or the first line of stdin " +
		"and stores it in the OS keyring under the given identity. Set bluesky.password_keyring: true to use it.",
	Args: cobra.NoArgs,
	RunE: loginAction,
}

func init() {
	loginCmd.Flags().StringVar(&loginIdentity, "identity", "", "Bluesky handle or DID (required)")
	loginCmd.Flags().BoolVar(&loginForget, "forget", false, "remove the stored password instead")
	_ = loginCmd.MarkFlagRequired("identity")
	rootCmd.AddCommand(loginCmd)
}

func loginAction(_ *cobra.Command, _ []string) error {
	if loginForget {
		if err := config.DeletePasswordFromKeyring(loginIdentity); err != nil {
			return err
		}
		fmt.Printf("Removed stored password for %s.\n", loginIdentity)
		return nil
	}

	password, err := readPassword(os.Getenv(config.DefaultPasswordEnv), os.Stdin)
	if err != nil {
		return err
	}
	if err := config.SavePasswordToKeyring(loginIdentity, password); err != nil {
		return err
	}
	fmt.Printf("Stored password for %s in the OS keyring.\n", loginIdentity)
	return nil
}

func readPassword(fromEnv string, stdin io.Reader) (string, error) {
	if fromEnv != "" {
		return fromEnv, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimSpace(line)
	if password == "" {
		return "", errors.New("no password given: pipe it on stdin or set " + config.DefaultPasswordEnv)
	}
	return password, nil
}
