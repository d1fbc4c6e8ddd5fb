package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Pass the human verification gate and obtain a session token",
	Long: `Answer a short series of challenges that distinguish a human
operator from an automated caller. Passing a majority issues a session
token, valid for a fixed lifetime, that the other commands require.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Answer the following challenges naturally.")

		s, err := g.Verify(stdinResponder)
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Println("Verification passed. Session valid until", s.ExpiresAt.Format("15:04:05"))
		fmt.Printf("export %s=%s\n", sessionEnvVar, s.Token)
		return nil
	},
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Re-confirm presence within an existing session",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		if err := g.CheckPresence(token, stdinResponder); err != nil {
			return err
		}
		fmt.Println("Presence confirmed.")
		return nil
	},
}
