package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voysis/go/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage voysis CLI configuration.

Configuration is stored in ~/.giztoy/voysis/config.yaml.
Multiple contexts can be defined for different services or accounts.`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a context describing a Voysis service.

An audio profile id is generated when --audio-profile-id is not given.

Examples:
  voysis config add-context demo --host demo.voysis.io --refresh-token RT
  voysis config add-context local --ws-url ws://localhost:8080/websocketapi`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		ctx := &cli.Context{}
		ctx.Host, _ = flags.GetString("host")
		ctx.WebSocketURL, _ = flags.GetString("ws-url")
		ctx.AudioProfileID, _ = flags.GetString("audio-profile-id")
		ctx.RefreshToken, _ = flags.GetString("refresh-token")
		ctx.UserID, _ = flags.GetString("user-id")
		ctx.Email, _ = flags.GetString("email")
		ctx.Locale, _ = flags.GetString("locale")
		ctx.StreamingDeadline, _ = flags.GetString("deadline")
		ctx.IgnoreVAD, _ = flags.GetBool("ignore-vad")

		if err := cfg.AddContext(args[0], ctx); err != nil {
			return err
		}
		status.Success("Context '%s' added (audio profile %s)", args[0], ctx.AudioProfileID)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		status.Success("Context '%s' deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the default context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		status.Success("Switched to context '%s'", args[0])
		return nil
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "get-context",
	Short: "Show the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No current context set")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:   "list-contexts",
	Short: "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No contexts configured")
			return nil
		}
		for _, name := range names {
			marker := "  "
			if name == cfg.CurrentContext {
				marker = "* "
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\t%s\n", marker, name, cfg.Contexts[name].Host)
		}
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View full configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		masked := &cli.Config{
			CurrentContext: cfg.CurrentContext,
			Contexts:       make(map[string]*cli.Context, len(cfg.Contexts)),
		}
		for name, c := range cfg.Contexts {
			masked.Contexts[name] = c.Masked()
		}
		return outputResult(masked)
	},
}

func init() {
	f := configAddContextCmd.Flags()
	f.String("host", "", "service host, e.g. demo.voysis.io")
	f.String("ws-url", "", "WebSocket URL (default: wss://<host>/websocketapi)")
	f.String("audio-profile-id", "", "audio profile id (default: generated)")
	f.StringP("refresh-token", "t", "", "refresh token used to issue session tokens")
	f.String("user-id", "", "user id sent with queries")
	f.String("email", "", "account email, for reference")
	f.String("locale", "en-US", "default query locale")
	f.String("deadline", "", "audio streaming deadline, e.g. 20s")
	f.Bool("ignore-vad", false, "do not stop audio queries on detected end of speech")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
}
