// Command voysis is a command line client for the Voysis voice query
// service.
//
// Usage:
//
//	voysis [flags] <command> [args]
//
// Commands:
//
//	config   - Manage service contexts
//	token    - Issue session tokens
//	query    - Send text and audio queries, rate results
//	history  - Inspect the local query history
//	version  - Print the client version
//
// Configuration:
//
//	The CLI stores configuration in ~/.giztoy/voysis/
//	Use 'voysis config' commands to manage contexts.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/voysis/go/cmd/voysis/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
