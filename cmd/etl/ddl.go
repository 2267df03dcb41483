package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"behavioretl/internal/schema"
	"behavioretl/internal/storage"
)

func newDDLCmd(_ *app) *cobra.Command {
	var variant, kind, table string
	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print the destination table DDL of a variant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := schema.Lookup(variant)
			if err != nil {
				return err
			}
			d, err := storage.DialectFor(kind)
			if err != nil {
				return err
			}
			if table == "" {
				table = v.Table
			}
			stmt, err := d.CreateTable(storage.DestinationDef(d, table, v))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s;\n", stmt)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&variant, "variant", "extended", "variant ("+strings.Join(schema.Names(), ", ")+")")
	f.StringVar(&kind, "kind", "postgres", "sink kind (postgres, sqlite, mssql)")
	f.StringVar(&table, "table", "", "table name; defaults to the variant's table")
	return cmd
}
