package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/infraops/infrabot/internal/mfa"
	"github.com/infraops/infrabot/pkg/qrcode"
	"github.com/infraops/infrabot/pkg/totp"
)

const (
	qrDir           = "mfa_qr_codes"
	backupCodeCount = 8
	separator       = "======================================================================"
	thinSeparator   = "----------------------------------------------------------------------"
)

func newEnrollCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <user_id>",
		Short: "Enroll a user and print their QR code and backup codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()

			enrolled, err := store.IsEnrolled(ctx, userID)
			if err != nil {
				return err
			}
			if enrolled {
				cmd.Printf("⚠️  User %d is already enrolled in MFA.\n", userID)
				if !confirm("Do you want to re-enroll (reset their secret)? [y/N]: ") {
					cmd.Println("Cancelled.")
					return nil
				}
				if err := store.Disable(ctx, userID); err != nil {
					return err
				}
				cmd.Printf("✓ Disabled existing MFA for user %d\n", userID)
			}

			secret, err := totp.GenerateSecret()
			if err != nil {
				return err
			}
			uri, err := totp.ProvisioningURI(secret, fmt.Sprintf("%d", userID), issuer)
			if err != nil {
				return err
			}

			codes, err := totp.GenerateBackupCodes(backupCodeCount)
			if err != nil {
				return err
			}
			hashes := make([]string, len(codes))
			for i, code := range codes {
				if hashes[i], err = totp.HashBackupCode(code); err != nil {
					return err
				}
			}

			if err := store.Enroll(ctx, userID, secret, hashes); err != nil {
				return err
			}

			cmd.Println("\n" + separator)
			cmd.Printf("✅ User %d enrolled in MFA successfully!\n", userID)
			cmd.Println(separator)

			ascii, err := qrcode.GenerateASCII(uri)
			if err != nil {
				return err
			}
			cmd.Printf("\n📱 Scan this QR code with your authenticator app:\n\n")
			cmd.Println(ascii)

			cmd.Println("\n" + thinSeparator)
			cmd.Println("🔑 A manual entry secret is available if QR scan doesn't work.")
			if confirm("Do you want to display the manual secret now? [y/N]: ") {
				cmd.Printf("\n    %s\n\n", secret)
			}
			cmd.Println(thinSeparator)

			path, err := saveQRCode(uri, userID)
			if err != nil {
				return err
			}
			cmd.Printf("\n💾 QR code saved to: %s\n", path)

			cmd.Println("\n" + separator)
			cmd.Println("🆘 Backup codes (shown once, store them safely):")
			cmd.Println(separator)
			for _, code := range codes {
				cmd.Printf("    %s\n", code)
			}

			cmd.Println("\n" + separator)
			cmd.Println("📋 Next steps:")
			cmd.Println(separator)
			cmd.Println("1. User scans the QR code with their authenticator app")
			cmd.Println("   (Google Authenticator, Authy, 1Password, Bitwarden, etc.)")
			cmd.Println("2. User can now use MFA-protected commands in Telegram")
			cmd.Println("3. User can check their status with: /mfa_status")
			cmd.Println(separator)
			return nil
		},
	}
}

func newListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all enrolled users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			users, err := store.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				cmd.Println("No users enrolled in MFA.")
				return nil
			}

			cmd.Println("\n" + separator)
			cmd.Println("📋 Enrolled Users")
			cmd.Println(separator)
			cmd.Printf("%-15s %-25s %-20s %s\n", "User ID", "Enrolled", "Last Used", "Active")
			cmd.Println(thinSeparator)
			for _, u := range users {
				lastUsed := "Never"
				if u.LastUsedAt != nil {
					lastUsed = u.LastUsedAt.Format(time.DateTime)
				}
				active := "✗"
				if u.Active {
					active = "✓"
				}
				cmd.Printf("%-15d %-25s %-20s %s\n",
					u.ID, u.CreatedAt.Format(time.DateTime), lastUsed, active)
			}
			cmd.Println(separator)
			cmd.Printf("Total: %d user(s)\n", len(users))
			return nil
		},
	}
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <user_id>",
		Short: "Show a user's enrollment and session status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()

			info, err := store.UserInfo(ctx, userID)
			if errors.Is(err, mfa.ErrNotEnrolled) {
				cmd.Printf("❌ User %d is not enrolled in MFA.\n", userID)
				return nil
			}
			if err != nil {
				return err
			}

			cmd.Println("\n" + separator)
			cmd.Printf("MFA Status for User %d\n", userID)
			cmd.Println(separator)

			lastUsed := "Never"
			if info.LastUsedAt != nil {
				lastUsed = info.LastUsedAt.Format(time.DateTime) + " UTC"
			}
			active := "No"
			if info.Active {
				active = "Yes"
			}
			cmd.Printf("✅ Enrolled:     %s UTC\n", info.CreatedAt.Format(time.DateTime))
			cmd.Printf("🕐 Last used:    %s\n", lastUsed)
			cmd.Printf("🔐 Active:       %s\n", active)

			if id, err := store.UserSession(ctx, userID); err == nil {
				if sess, err := store.Session(ctx, id); err == nil {
					cmd.Printf("🟢 Session:      Active (expires %s UTC)\n",
						sess.ExpiresAt.Format(time.DateTime))
				}
			} else {
				cmd.Println("🔴 Session:      No active session")
			}

			cmd.Println(separator)
			return nil
		},
	}
}

func newResetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <user_id>",
		Short: "Remove a user's MFA enrollment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()

			enrolled, err := store.IsEnrolled(ctx, userID)
			if err != nil {
				return err
			}
			if !enrolled {
				cmd.Printf("❌ User %d is not enrolled in MFA.\n", userID)
				return nil
			}

			cmd.Printf("\n⚠️  WARNING: This will remove MFA for user %d\n", userID)
			cmd.Println("They will need to re-enroll to use MFA-protected commands.")
			if !confirm("\nAre you sure? [y/N]: ") {
				cmd.Println("Cancelled.")
				return nil
			}

			if err := store.Disable(ctx, userID); err != nil {
				return err
			}
			cmd.Printf("\n✅ MFA reset for user %d\n", userID)
			cmd.Println("User will need to re-enroll to use MFA again.")
			return nil
		},
	}
}

func newExportQRCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export-qr <user_id>",
		Short: "Regenerate an enrolled user's QR code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			secret, err := store.Secret(cmd.Context(), userID)
			if err != nil {
				return err
			}
			uri, err := totp.ProvisioningURI(secret, fmt.Sprintf("%d", userID), issuer)
			if err != nil {
				return err
			}

			ascii, err := qrcode.GenerateASCII(uri)
			if err != nil {
				return err
			}
			cmd.Printf("\n📱 QR Code for User %d:\n\n", userID)
			cmd.Println(ascii)

			path, err := saveQRCode(uri, userID)
			if err != nil {
				return err
			}
			cmd.Printf("\n💾 QR code saved to: %s\n", path)
			return nil
		},
	}
}

// saveQRCode writes the provisioning URI as a PNG under mfa_qr_codes/.
func saveQRCode(uri string, userID int64) (string, error) {
	if err := os.MkdirAll(qrDir, 0o755); err != nil {
		return "", err
	}
	png, err := qrcode.GeneratePNG(uri, 0)
	if err != nil {
		return "", err
	}
	path := filepath.Join(qrDir, fmt.Sprintf("%d.png", userID))
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
