package main

import (
	"fmt"
	"os"

	"github.com/crucial707/hci-auth/cmd/cli/auth"
	"github.com/crucial707/hci-auth/cmd/cli/root"
	"github.com/crucial707/hci-auth/cmd/cli/users"
)

func main() {
	rootCmd := root.GetRoot()
	auth.InitAuth(rootCmd)
	users.InitUsers(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
