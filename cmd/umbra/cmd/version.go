package cmd

import (
	"github.com/umbra-privacy/umbra/version"
)

func init() {
	rootCmd.AddCommand(version.NewVersionCommand())
}
