package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markattarcolgate64/guardianlock/internal/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status [pattern]",
	Short: "List protected files",
	Long: `List every protected file with its level and protection time.
An optional glob pattern filters by path or base name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metas, err := g.Status()
		if err != nil {
			return err
		}
		if len(metas) == 0 {
			fmt.Println("No protected files.")
			return nil
		}

		if len(args) == 1 {
			paths := make([]string, len(metas))
			for i, m := range metas {
				paths[i] = m.OriginalPath
			}
			matched, err := cli.MatchPaths(args[0], paths)
			if err != nil {
				return err
			}
			keep := make(map[string]bool, len(matched))
			for _, p := range matched {
				keep[p] = true
			}
			filtered := metas[:0]
			for _, m := range metas {
				if keep[m.OriginalPath] {
					filtered = append(filtered, m)
				}
			}
			metas = filtered
		}

		for _, m := range metas {
			marker := " "
			if m.ConstitutionFile {
				marker = "*"
			}
			hash := m.SHA256
			if len(hash) > 8 {
				hash = hash[:8]
			}
			fmt.Printf("%s %-8s %s  %s  %s\n", marker, m.ProtectionLevel,
				m.ProtectedTimestamp.Local().Format("2006-01-02 15:04"), hash, m.OriginalPath)
		}
		return nil
	},
}
