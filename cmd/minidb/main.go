// Command minidb is the pysqlite interactive shell entrypoint: it opens
// (creating if necessary) a database directory and drops into a REPL,
// mirroring cli.py's argparse-driven main().
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/config"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/dblog"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/exec"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/shell"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "minidb <db_dir>",
	Short: "A simple SQLite-like embedded database engine.",
	Long: `minidb opens (or creates) a database directory and starts an
interactive SQL shell against it.

Enter '.exit' to quit or '.tables' to list tables once connected.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func run(cmd *cobra.Command, args []string) error {
	dbDir := args[0]

	cfg, err := config.Load(dbDir)
	if err != nil {
		return err
	}
	if logLevel != "" {
		dblog.SetLevel(logLevel)
	} else {
		dblog.SetLevel(cfg.LogLevel)
	}

	store, err := shell.StorageEngineFor(dbDir, cfg.LockTimeout())
	if err != nil {
		return err
	}
	defer store.Close()

	engine := exec.New(store)
	return shell.New(dbDir, engine).Run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
