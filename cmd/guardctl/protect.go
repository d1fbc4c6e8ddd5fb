package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markattarcolgate64/guardianlock/pkg/vault"
)

var protectCmd = &cobra.Command{
	Use:   "protect <path>",
	Short: "Encrypt a file in place",
	Long: `Encrypt a file so it cannot be read or modified without the
password. The original content is replaced by ciphertext and the file
is marked read-only. Requires a session from 'guardctl verify'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		level := vault.Level("")
		if protectLevel != "" {
			level, err = vault.ParseLevel(protectLevel)
			if err != nil {
				return err
			}
		}
		password, err := readNewPassword("Protection password: ")
		if err != nil {
			return err
		}

		meta, err := g.Protect(token, args[0], password, level, protectForce)
		if err != nil {
			return err
		}
		fmt.Printf("Protected %s (level %s).\n", meta.OriginalPath, meta.ProtectionLevel)
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <path>",
	Short: "Decrypt a protected file to a side file",
	Long: `Verify the password and write the plaintext to <path>.unlocked.
The protected original is left untouched. Repeated failures trigger an
escalating cooldown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		pt, err := g.Unlock(token, args[0], password)
		if err != nil {
			return err
		}
		fmt.Printf("Unlocked to %s (%d bytes).\n", pt.Path, len(pt.Data))
		return nil
	},
}

var reprotectCmd = &cobra.Command{
	Use:   "reprotect <path>",
	Short: "Re-encrypt a protected file, optionally at a new level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		level := vault.Level("")
		if reprotectLevel != "" {
			level, err = vault.ParseLevel(reprotectLevel)
			if err != nil {
				return err
			}
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		meta, err := g.Reprotect(token, args[0], password, level)
		if err != nil {
			return err
		}
		fmt.Printf("Reprotected %s (level %s).\n", meta.OriginalPath, meta.ProtectionLevel)
		return nil
	},
}
