// Package main provides the guardctl CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/markattarcolgate64/guardianlock/pkg/config"
	"github.com/markattarcolgate64/guardianlock/pkg/guard"
)

// sessionEnvVar carries the token between guardctl invocations.
const sessionEnvVar = "GUARDCTL_SESSION"

var (
	guardianDir string
	g           *guard.Guardian
)

var rootCmd = &cobra.Command{
	Use:   "guardctl",
	Short: "guardctl protects files behind a password and a human-presence gate",
	Long: `guardctl encrypts files in place and only releases them to a
verified human operator. Run 'guardctl verify' to pass the challenge
gate and obtain a session token, then protect and unlock files while
the session lasts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir := guardianDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get user home directory: %w", err)
			}
			dir = filepath.Join(home, ".guardian")
		}

		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		g, err = guard.New(cfg)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if g != nil {
			return g.Close()
		}
		return nil
	},
}

// Protect flags
var (
	protectLevel string
	protectForce bool
)

// Reprotect flags
var reprotectLevel string

// Rotate flags
var rotateForce bool

// Audit flags
var (
	auditLimit int
	auditSince string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&guardianDir, "dir", "",
		"guardian directory (default ~/.guardian)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(presenceCmd)
	rootCmd.AddCommand(protectCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(reprotectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(auditCmd)

	protectCmd.Flags().StringVar(&protectLevel, "level", "",
		"protection level: low, medium, high, maximum (default high)")
	protectCmd.Flags().BoolVar(&protectForce, "force", false,
		"skip the password strength check")

	reprotectCmd.Flags().StringVar(&reprotectLevel, "level", "",
		"new protection level (default: keep current)")

	rotateCmd.Flags().BoolVar(&rotateForce, "force", false,
		"skip the password strength check on the new password")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "max entries to show (0 = all)")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "only entries after this RFC 3339 time")
}

// sessionToken returns the token exported by a prior 'guardctl verify'.
func sessionToken() (string, error) {
	token := os.Getenv(sessionEnvVar)
	if token == "" {
		return "", fmt.Errorf("no session token: run 'guardctl verify' and export %s", sessionEnvVar)
	}
	return token, nil
}
