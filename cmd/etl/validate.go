package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"behavioretl/internal/config"
)

func newValidateCmd(a *app) *cobra.Command {
	var paths []string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Lint pipeline configs without running them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			invalid := 0
			for _, path := range paths {
				p, err := loadConfigFn(path)
				if err != nil {
					fmt.Fprintf(out, "%s: error: %v\n", path, err)
					invalid++
					continue
				}
				hasError := false
				for _, iss := range config.ValidatePipeline(p) {
					fmt.Fprintf(out, "%s: %s: %s: %s\n", path, iss.Severity, iss.Path, iss.Message)
					if iss.Severity == config.SeverityError {
						hasError = true
					}
				}
				if hasError {
					invalid++
					continue
				}
				a.log.Debugw("configuration is valid", "path", path)
				fmt.Fprintf(out, "%s: ok\n", path)
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d configs are invalid", invalid, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&paths, "config", "c", nil, "pipeline config file (repeatable)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
