// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hitsave-io/hitsave/config"
)

var clearYes bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the hitsave directory and local store size",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		storeDir := filepath.Join(cfg.Dir, "store")
		size, files, err := dirSize(storeDir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "directory:   %s\n", cfg.Dir)
		fmt.Fprintf(cmd.OutOrStdout(), "store:       %s\n", storeDir)
		fmt.Fprintf(cmd.OutOrStdout(), "store size:  %s in %d files\n", humanBytes(size), files)
		fmt.Fprintf(cmd.OutOrStdout(), "sensitivity: %s\n", cfg.VersionSensitivity)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging the config file and
environment overrides, in the same YAML format as the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var clearLocalCmd = &cobra.Command{
	Use:   "clear-local",
	Short: "Delete the local evaluation store",
	Long: `Delete every locally cached evaluation. Memoized functions will
recompute on their next call. Remote or in-memory state is untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		storeDir := filepath.Join(cfg.Dir, "store")
		if !clearYes {
			fmt.Fprintf(cmd.OutOrStdout(), "delete %s? [y/N] ", storeDir)
			line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if ans := strings.ToLower(strings.TrimSpace(line)); ans != "y" && ans != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
		}
		if err := os.RemoveAll(storeDir); err != nil {
			return fmt.Errorf("clear store: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "local store cleared")
		return nil
	},
}

func dirSize(dir string) (int64, int, error) {
	var total int64
	var files int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		files++
		return nil
	})
	return total, files, err
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}

func init() {
	clearLocalCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(statusCmd, configCmd, clearLocalCmd)
}
