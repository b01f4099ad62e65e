package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"busybee/internal/config"
)

func printConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}
