// Command gatewayd is the gateway's CLI entrypoint: serve runs the HTTP
// server, version prints the build version.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName = "gatewayd"
	version = "0.1.0"
)

func main() {
	root := &cobra.Command{
		Use:   appName,
		Short: "Multi-provider AI API gateway",
		Long:  "gatewayd routes chat/completions requests across OpenAI, Claude, and Gemini credentials with cross-format translation, payload rules, and cloaking.",
	}

	root.AddCommand(serveCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
