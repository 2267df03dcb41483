package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"behavioretl/internal/logging"
)

// app holds what the subcommands share.
type app struct {
	jsonLogs bool
	verbose  bool
	envFile  string
	log      *zap.SugaredLogger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "etl",
		Short:         "Load user-behaviour event extracts into a relational store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			l, err := logging.New(logging.Options{JSON: a.jsonLogs, Verbose: a.verbose})
			if err != nil {
				return err
			}
			a.log = l
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	f := root.PersistentFlags()
	f.BoolVar(&a.jsonLogs, "json-logs", false, "emit logs as JSON lines")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs")
	f.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading configs")

	root.AddCommand(newRunCmd(a), newValidateCmd(a), newDDLCmd(a))
	return root
}
