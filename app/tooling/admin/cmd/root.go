// Package cmd contains the admin commands for the participation service.
package cmd

import (
	"database/sql"
	"os"

	"github.com/civicledger/participation/business/sys/database"
	"github.com/spf13/cobra"
)

var (
	dbPath          string
	rpcURL          string
	contractAddress string
	keyPath         string
	chainID         int64
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative tasks against the participation database and ledger",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "data/participation.db", "Path to the sqlite database file.")
	rootCmd.PersistentFlags().StringVarP(&rpcURL, "rpc", "r", "http://localhost:8545", "Url of the ledger RPC endpoint.")
	rootCmd.PersistentFlags().StringVarP(&contractAddress, "contract", "c", "0x0000000000000000000000000000000000000000", "Address of the voting contract.")
	rootCmd.PersistentFlags().StringVarP(&keyPath, "key", "k", "data/keys/participation.ecdsa", "Path to the signing key.")
	rootCmd.PersistentFlags().Int64Var(&chainID, "chain-id", 11155111, "Chain id of the ledger network.")
}

func openDB() (*sql.DB, error) {
	return database.Open(database.Config{
		Path:         dbPath,
		MaxOpenConns: 1,
	})
}
