package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markattarcolgate64/guardianlock/pkg/backup"
)

// Backup flags
var (
	backupIncludeLog bool
	restoreOverwrite bool
)

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)

	backupCmd.Flags().BoolVar(&backupIncludeLog, "with-log", false,
		"include the access log in the backup")
	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false,
		"overwrite an already-initialized guardian directory")
}

var backupCmd = &cobra.Command{
	Use:   "backup <output-file>",
	Short: "Write an encrypted snapshot of the guardian state",
	Long: `Snapshot the salt, access log key, and protection metadata into
an encrypted backup file. Protected files themselves stay at their
original paths and are not included. Requires a valid session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		if err := g.CheckSession(token); err != nil {
			return err
		}
		password, err := readNewPassword("Backup password: ")
		if err != nil {
			return err
		}

		f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("failed to create backup file: %w", err)
		}
		defer f.Close()

		info, err := backup.Create(g.Vault().Dir(), f, backup.Options{
			Password:   password,
			IncludeLog: backupIncludeLog,
		})
		if err != nil {
			os.Remove(args[0])
			return err
		}
		fmt.Printf("Backed up %d protection record(s) to %s.\n", info.FileCount, args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Restore guardian state from an encrypted backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		if err := g.CheckSession(token); err != nil {
			return err
		}
		password, err := readPassword("Backup password: ")
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open backup file: %w", err)
		}
		defer f.Close()

		result, err := backup.Restore(g.Vault().Dir(), f, password, restoreOverwrite)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d protection record(s).\n", result.FilesRestored)
		if result.LogRestored {
			fmt.Println("Access log restored.")
		}
		return nil
	},
}
