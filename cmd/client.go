package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/store"
)

var clientCmd = &cobra.Command{
	Use:     "client",
	Short:   "Manage clients",
	GroupID: "core",
}

var clientAddCmd = &cobra.Command{
	Use:     "add [name]",
	Aliases: []string{"create"},
	Short:   "Add a client",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := currentWorkspace(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		st, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer st.Close()

		engine, err := buildEngine(st)
		if err != nil {
			return err
		}

		id, err := store.NewID("client")
		if err != nil {
			return err
		}
		email, _ := cmd.Flags().GetString("email")
		phone, _ := cmd.Flags().GetString("phone")
		address, _ := cmd.Flags().GetString("address")

		client := models.Client{
			ID:          id,
			WorkspaceID: ws,
			Name:        args[0],
			Email:       email,
			Phone:       phone,
			Address:     address,
			UpdatedAt:   time.Now().UTC(),
		}
		data, err := json.Marshal(client)
		if err != nil {
			return fmt.Errorf("marshal client: %w", err)
		}
		if _, err := engine.CreateLocal(ws, models.KindClient, id, data); err != nil {
			output.Error("add client: %v", err)
			return err
		}
		output.Success("Added %s: %s", id, client.Name)
		autoSyncAfterMutation(st, ws)
		return nil
	},
}

var clientListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List clients in the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := currentWorkspace(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		st, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer st.Close()

		repo, err := st.Repo(models.KindClient)
		if err != nil {
			return err
		}
		records, err := repo.GetByWorkspace(ws)
		if err != nil {
			output.Error("list clients: %v", err)
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(records)
		}
		if len(records) == 0 {
			fmt.Println("No clients")
			return nil
		}
		for _, rec := range records {
			var c models.Client
			if err := json.Unmarshal(rec.Data, &c); err != nil {
				continue
			}
			line := fmt.Sprintf("%s  %s", c.ID, c.Name)
			if c.Email != "" {
				line += "  <" + c.Email + ">"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	clientAddCmd.Flags().String("email", "", "Client email")
	clientAddCmd.Flags().String("phone", "", "Client phone")
	clientAddCmd.Flags().String("address", "", "Client address")

	for _, c := range []*cobra.Command{clientAddCmd, clientListCmd} {
		c.Flags().String("workspace", "", "Workspace override")
		c.Flags().Bool("json", false, "JSON output")
		clientCmd.AddCommand(c)
	}
	rootCmd.AddCommand(clientCmd)
}
