/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cfgFile string

	// set with -ldflags "-X main.buildVersion=..."
	buildVersion = "dev"
	buildCommit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "fotad",
	Short: "Subdevice firmware update daemon",
	Long: `fotad provisions firmware update resources for subdevices behind an
edge gateway, validates incoming manifests and drives the download and
status reporting flow with the gateway core.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fotad %s (%s)\n", buildVersion, buildCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults are embedded)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
