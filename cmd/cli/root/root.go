package root

import (
	"github.com/spf13/cobra"
)

// Exported RootCmd
var RootCmd = &cobra.Command{
	Use:           "hci-auth",
	Short:         "HCI Auth CLI",
	Long:          "Command line interface for registering, logging in and managing tokens against the HCI Auth API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// GetRoot returns the RootCmd
func GetRoot() *cobra.Command {
	return RootCmd
}
