package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/store"
	"github.com/vm799/trust-by-design-sub003/internal/sync"
	"github.com/vm799/trust-by-design-sub003/internal/syncclient"
	"github.com/vm799/trust-by-design-sub003/internal/syncconfig"
)

var (
	versionString string
	baseDir       string
)

// SetVersion sets the version string
func SetVersion(v string) {
	versionString = v
}

var rootCmd = &cobra.Command{
	Use:   "tbd",
	Short: "Offline-first field evidence CLI",
	Long: `tbd - An offline-first CLI for field-operations evidence capture.

Jobs, clients, drafts and media are written to a local durable store first;
a sync engine pushes queued mutations to the remote authority and pulls
canonical records back, surfacing conflicts for explicit resolution.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.OnInitialize(initBaseDir)

	// Add custom template function for showing aliases
	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)

	// Custom usage template that shows aliases inline
	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`

	// Need to add the 'add' function for padding calculation
	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })

	rootCmd.SetUsageTemplate(usageTemplate)

	// Define command groups for organized help output
	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)

	// Assign built-in commands to system group
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")
}

func initBaseDir() {
	var err error
	baseDir, err = os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot determine working directory: %v\n", err)
		os.Exit(1)
	}
}

// getBaseDir returns the base directory for the device store
func getBaseDir() string {
	return baseDir
}

// openStore opens the device database in the current base directory.
func openStore() (*store.Store, error) {
	return store.Open(getBaseDir())
}

// currentWorkspace resolves the active workspace: --workspace flag first,
// then the configured default.
func currentWorkspace(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Lookup("workspace") != nil {
		if ws, _ := cmd.Flags().GetString("workspace"); ws != "" {
			return ws, nil
		}
	}
	if ws := syncconfig.GetWorkspace(); ws != "" {
		return ws, nil
	}
	return "", fmt.Errorf("no workspace selected (run: tbd workspace set <id>)")
}

// buildEngine wires the sync engine against the configured remote.
func buildEngine(st *store.Store) (*sync.Engine, error) {
	deviceID, err := syncconfig.GetDeviceID()
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}
	client := syncclient.New(syncconfig.GetServerURL(), syncconfig.GetAPIKey(), deviceID)
	coord := sync.NewCoordinator(sync.DefaultConfig().MinInterval)
	return sync.NewEngine(st, client, coord, sync.DefaultConfig()), nil
}
