package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vm799/trust-by-design-sub003/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "create-workspace":
		runAdminCreateWorkspace(args[1:])
	case "list-workspaces":
		runAdminListWorkspaces(args[1:])
	case "create-key":
		runAdminCreateKey(args[1:])
	case "revoke-key":
		runAdminRevokeKey(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: tbd-server admin <command> [flags]

Commands:
  create-workspace  Register a workspace
  list-workspaces   List registered workspaces
  create-key        Create an API key scoped to a workspace
  revoke-key        Revoke an API key`)
}

func openDB(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		dbPath = os.Getenv("TBD_SERVER_DB_PATH")
	}
	if dbPath == "" {
		dbPath = "./data/server.db"
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runAdminCreateWorkspace(args []string) {
	fs := flag.NewFlagSet("admin create-workspace", flag.ExitOnError)
	id := fs.String("id", "", "workspace id (generated when empty)")
	name := fs.String("name", "", "workspace display name")
	dbPath := fs.String("db", "", "path to server.db (default: from TBD_SERVER_DB_PATH or ./data/server.db)")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	ws, err := store.CreateWorkspace(*id, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created workspace %s (%s)\n", ws.ID, ws.Name)
}

func runAdminListWorkspaces(args []string) {
	fs := flag.NewFlagSet("admin list-workspaces", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to server.db (default: from TBD_SERVER_DB_PATH or ./data/server.db)")
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	workspaces, err := store.ListWorkspaces()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, ws := range workspaces {
		fmt.Printf("%s\t%s\n", ws.ID, ws.Name)
	}
}

func runAdminCreateKey(args []string) {
	fs := flag.NewFlagSet("admin create-key", flag.ExitOnError)
	workspace := fs.String("workspace", "", "workspace the key grants access to")
	name := fs.String("name", "", "key label (device or operator name)")
	dbPath := fs.String("db", "", "path to server.db (default: from TBD_SERVER_DB_PATH or ./data/server.db)")
	fs.Parse(args)

	if *workspace == "" {
		fmt.Fprintln(os.Stderr, "error: --workspace is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	key, meta, err := store.GenerateAPIKey(*workspace, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	// The plaintext key is only ever shown here; the database stores a hash
	fmt.Printf("created key %s (prefix %s) for workspace %s\n", meta.ID, meta.KeyPrefix, *workspace)
	fmt.Printf("API key (store it now, it is not retrievable): %s\n", key)
}

func runAdminRevokeKey(args []string) {
	fs := flag.NewFlagSet("admin revoke-key", flag.ExitOnError)
	keyID := fs.String("id", "", "key id to revoke")
	dbPath := fs.String("db", "", "path to server.db (default: from TBD_SERVER_DB_PATH or ./data/server.db)")
	fs.Parse(args)

	if *keyID == "" {
		fmt.Fprintln(os.Stderr, "error: --id is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	if err := store.RevokeAPIKey(*keyID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("revoked key %s\n", *keyID)
}
