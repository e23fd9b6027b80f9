package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/civicledger/participation/business/core/proposal"
	"github.com/civicledger/participation/business/core/user"
	"github.com/civicledger/participation/foundation/ledger"
	"github.com/civicledger/participation/foundation/logger"
	"github.com/spf13/cobra"
)

// divergenceCmd represents the divergence command
var divergenceCmd = &cobra.Command{
	Use:   "divergence",
	Short: "Compare local vote counts against the ledger contract.",
	Long: `Compare local vote counts against the ledger contract.

The local database is the authoritative record. The contract mirror can
lag behind it when a vote was recorded store-only or a transaction was
lost, so any difference reported here is expected to be local >= ledger.`,
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

		lgr, err := ledger.New(lg, ledger.Config{
			RPCURL:          rpcURL,
			ContractAddress: contractAddress,
			KeyPath:         keyPath,
			ChainID:         chainID,
		})
		if err != nil {
			log.Fatal(err)
		}
		defer lgr.Close()

		usrCore := user.NewCore(lg, db)
		prpCore := proposal.NewCore(lg, db, usrCore)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		prps, err := prpCore.Query(ctx)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("%-10s %-8s %-8s %s\n", "PROPOSAL", "LOCAL", "LEDGER", "STATE")
		var diverged int
		for _, prp := range prps {
			ledgerCount, err := lgr.ProposalVoteCount(ctx, prp.ID)
			if err != nil {
				fmt.Printf("%-10d %-8d %-8s query failed: %v\n", prp.ID, prp.VoteCount, "-", err)
				continue
			}

			state := "ok"
			if uint64(prp.VoteCount) != ledgerCount {
				state = "DIVERGED"
				diverged++
			}
			fmt.Printf("%-10d %-8d %-8d %s\n", prp.ID, prp.VoteCount, ledgerCount, state)
		}

		fmt.Printf("\n%d proposals checked, %d diverged\n", len(prps), diverged)
	},
}

func init() {
	rootCmd.AddCommand(divergenceCmd)
}
