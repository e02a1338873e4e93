// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hitsave",
	Short: "Inspect and manage the local memoization store",
	Long: `hitsave manages the on-disk state used by memoized functions:
the evaluation store, configuration, and logs under the hitsave
directory (~/.hitsave by default, HITSAVE_DIR to override).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
