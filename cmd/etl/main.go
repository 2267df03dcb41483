// Command etl loads user-behaviour event extracts into a relational store.
//
//	etl run --config jobs/daily.yaml [--config jobs/regional.json]
//	etl validate --config jobs/daily.yaml
//	etl ddl --variant regional --kind postgres
package main

import (
	"fmt"
	"os"

	// register all backends with the storage factory.
	_ "behavioretl/internal/storage/all"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
