package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the guardian directory",
	Long: `Create the guardian directory with a fresh key derivation salt
and access log key. Run this once before protecting any files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := g.Vault()
		if err := v.Init(); err != nil {
			return err
		}
		fmt.Println("Guardian initialized.")
		fmt.Println("Protect a file with: guardctl protect <path>")
		return nil
	},
}
