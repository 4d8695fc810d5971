// mfactl manages MFA enrollments for the infrastructure bot. Enrollment is
// deliberately out-of-band: an operator runs it on the host, hands the QR code
// to the user, and the bot only ever verifies codes.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/infraops/infrabot/internal/config"
	"github.com/infraops/infrabot/internal/mfa"
	"github.com/infraops/infrabot/pkg/totp"
)

const issuer = "InfraBot"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌ Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mfactl",
		Short:         "Manage MFA enrollments for the infrastructure bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the bot config file")

	root.AddCommand(
		newEnrollCmd(&configPath),
		newListCmd(&configPath),
		newStatusCmd(&configPath),
		newResetCmd(&configPath),
		newExportQRCmd(&configPath),
		newGenKeyCmd(),
	)
	return root
}

// openStore loads the config and opens the MFA database.
func openStore(configPath string) (*mfa.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if !cfg.MFA.Enabled {
		return nil, fmt.Errorf("MFA is disabled in %s; set mfa.enabled = true", configPath)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mfa.OpenStore(cfg.MFA.DBPath, cfg.MFA.EncryptionKey, log)
}

func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user_id must be a number: %q", arg)
	}
	return id, nil
}

// confirm prompts on stdin and accepts only an explicit "y".
func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Generate a fresh master encryption key",
		Long:  "Generate a base64 master key for the MFA_ENCRYPTION_KEY environment variable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := totp.GenerateMasterKey()
			if err != nil {
				return err
			}
			cmd.Println(key)
			return nil
		},
	}
}
