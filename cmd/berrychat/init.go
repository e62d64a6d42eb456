package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lhdbsbz/berrychat/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with a fresh gateway token",
	RunE: func(cmd *cobra.Command, args []string) error {
		flagPath, _ := cmd.Flags().GetString("config")
		force, _ := cmd.Flags().GetBool("force")
		path := config.ResolveConfigPath(flagPath)

		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.CreateFromExample(path); err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
