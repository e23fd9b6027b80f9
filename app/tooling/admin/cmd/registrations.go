package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/civicledger/participation/business/core/proposal"
	"github.com/civicledger/participation/business/core/user"
	"github.com/civicledger/participation/foundation/logger"
	"github.com/spf13/cobra"
)

var regStatus string

// registrationsCmd represents the registrations command
var registrationsCmd = &cobra.Command{
	Use:   "registrations",
	Short: "List the on-chain registration queue.",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDB()
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		lg, err := logger.New("ADMIN", "/dev/null")
		if err != nil {
			log.Fatal(err)
		}

		usrCore := user.NewCore(lg, db)
		prpCore := proposal.NewCore(lg, db, usrCore)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		regs, err := prpCore.QueryRegistrations(ctx, regStatus)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("%-10s %-12s %-9s %-20s %s\n", "PROPOSAL", "STATUS", "ATTEMPTS", "UPDATED", "TX / ERROR")
		for _, reg := range regs {
			detail := reg.TxHash
			if reg.LastError != "" {
				detail = reg.LastError
			}
			fmt.Printf("%-10d %-12s %-9d %-20s %s\n",
				reg.ProposalID, reg.Status, reg.Attempts,
				reg.UpdatedAt.Format("2006-01-02 15:04:05"), detail)
		}
	},
}

func init() {
	rootCmd.AddCommand(registrationsCmd)
	registrationsCmd.Flags().StringVarP(&regStatus, "status", "s", proposal.RegistrationPending, "Registration status to list: pending, registered or failed.")
}
