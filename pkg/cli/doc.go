// Package cli holds the plumbing shared by the voysis command: named
// service contexts, output formatting, request files and status lines.
//
// Contexts are stored in ~/.giztoy/voysis/config.yaml, kubectl style:
//
//	cfg, err := cli.LoadConfig("")
//	ctx, err := cfg.ResolveContext(contextFlag)
//
//	cli.Output(query, cli.OutputOptions{Format: cli.FormatJSON})
package cli
