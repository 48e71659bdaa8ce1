package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/syncclient"
	"github.com/vm799/trust-by-design-sub003/internal/syncconfig"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage remote authentication",
	GroupID: "sync",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API key for the remote authority",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		apiKey, _ := cmd.Flags().GetString("key")
		workspace, _ := cmd.Flags().GetString("workspace")

		if apiKey == "" {
			output.Error("an API key is required (--key)")
			return fmt.Errorf("api key required")
		}
		if server == "" {
			server = syncconfig.GetServerURL()
		}
		if workspace == "" {
			workspace = syncconfig.GetWorkspace()
		}
		if workspace == "" {
			output.Error("a workspace is required (--workspace or tbd workspace set)")
			return fmt.Errorf("workspace required")
		}

		deviceID, err := syncconfig.GetDeviceID()
		if err != nil {
			output.Error("device id: %v", err)
			return err
		}

		// Prove the key works before persisting it
		client := syncclient.New(server, apiKey, deviceID)
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if _, err := client.WorkspaceStatus(ctx, workspace); err != nil {
			output.Error("key rejected by %s: %v", server, err)
			return err
		}

		if err := syncconfig.SaveAuth(&syncconfig.AuthCredentials{
			APIKey:    apiKey,
			ServerURL: server,
			DeviceID:  deviceID,
		}); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}

		cfg, err := syncconfig.LoadConfig()
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}
		if cfg.Workspace == "" {
			cfg.Workspace = workspace
			if err := syncconfig.SaveConfig(cfg); err != nil {
				output.Error("save config: %v", err)
				return err
			}
		}

		output.Success("Logged in to %s (workspace %s)", server, workspace)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := syncconfig.ClearAuth(); err != nil {
			output.Error("clear credentials: %v", err)
			return err
		}
		output.Success("Logged out")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !syncconfig.IsAuthenticated() {
			fmt.Println("Not logged in")
			return nil
		}
		fmt.Printf("Server: %s\n", syncconfig.GetServerURL())
		if ws := syncconfig.GetWorkspace(); ws != "" {
			fmt.Printf("Workspace: %s\n", ws)
		}
		if deviceID, err := syncconfig.GetDeviceID(); err == nil {
			fmt.Printf("Device: %s\n", deviceID)
		}
		return nil
	},
}

func init() {
	authLoginCmd.Flags().String("server", "", "Remote server URL")
	authLoginCmd.Flags().String("key", "", "API key")
	authLoginCmd.Flags().String("workspace", "", "Workspace the key grants")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
