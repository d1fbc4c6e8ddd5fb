package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Access log operations",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent access log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		var since time.Time
		if auditSince != "" {
			var err error
			since, err = time.Parse(time.RFC3339, auditSince)
			if err != nil {
				return fmt.Errorf("invalid --since value: %w", err)
			}
		}

		if err := g.Vault().Open(); err != nil {
			return err
		}
		entries, err := g.Vault().AccessLog().ListEvents(auditLimit, since)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No access log entries.")
			return nil
		}

		for _, e := range entries {
			line := fmt.Sprintf("%s  %-12s %-7s", e.Timestamp, e.Action, e.Result)
			if e.Subject != "" {
				line += "  " + e.Subject
			}
			if e.Error != nil {
				line += fmt.Sprintf("  (%s)", e.Error.Code)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the access log's tamper-evidence chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := g.Vault().Open(); err != nil {
			return err
		}
		result, err := g.Vault().AccessLog().Verify()
		if err != nil {
			return err
		}

		if result.Valid {
			fmt.Printf("Access log intact: %d/%d records verified.\n",
				result.RecordsVerified, result.RecordsTotal)
			return nil
		}

		fmt.Printf("Access log verification FAILED: %d/%d records verified.\n",
			result.RecordsVerified, result.RecordsTotal)
		for _, msg := range result.Errors {
			fmt.Println("  -", msg)
		}
		return fmt.Errorf("access log integrity check failed")
	},
}
