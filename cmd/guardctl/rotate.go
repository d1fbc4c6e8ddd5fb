package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Change the password for every protected file",
	Long: `Verify the current password against every protected file, then
re-encrypt them all under a new password and a fresh salt. Nothing is
modified unless every file decrypts cleanly first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		oldPassword, err := readPassword("Current password: ")
		if err != nil {
			return err
		}
		newPassword, err := readNewPassword("New password: ")
		if err != nil {
			return err
		}

		n, err := g.Rotate(token, oldPassword, newPassword, rotateForce)
		if err != nil {
			return err
		}
		fmt.Printf("Rotated %d protected file(s).\n", n)
		return nil
	},
}
