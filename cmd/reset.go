package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/cache"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/reset"
	"github.com/vm799/trust-by-design-sub003/internal/store"
	"github.com/vm799/trust-by-design-sub003/internal/syncconfig"
)

var resetCmd = &cobra.Command{
	Use:     "reset",
	Short:   "Tear down device state (gated to development environments)",
	GroupID: "system",
	Long: `Clears every persistence layer in order: store connections, credentials,
ephemeral caches, the structured store, flat key-value state, session
storage and the cookie jar. Refused outside development/local environments
unless --operator-override is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		ws, _ := cmd.Flags().GetString("workspace")
		if !all && ws == "" {
			ws = syncconfig.GetWorkspace()
		}
		if !all && ws == "" {
			output.Error("specify --workspace or --all")
			return fmt.Errorf("nothing to reset")
		}

		st, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		// The plane's connection layer also closes; double close is harmless
		defer st.Close()

		plane, closeCache, err := buildResetPlane(cmd, st)
		if err != nil {
			st.Close()
			output.Error("%v", err)
			return err
		}
		defer closeCache()

		var result *reset.Result
		if all {
			result, err = plane.ResetAll(cmd.Context())
		} else {
			result, err = plane.ResetWorkspace(cmd.Context(), ws)
		}
		if errors.Is(err, reset.ErrNotPermitted) {
			output.Error("%v (set %s=development or pass --operator-override)", err, reset.EnvVar)
			return err
		}
		if err != nil {
			output.Error("reset: %v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(result)
		}
		for _, step := range result.Steps {
			if step.Err != nil {
				output.Warning("✗ %s: %s", step.Layer, step.Error)
			} else {
				fmt.Printf("✓ %s (%s)\n", step.Layer, step.Duration)
			}
		}
		if result.OK() {
			output.Success("Reset complete")
		} else {
			output.Warning("Reset finished with %d failed step(s)", len(result.Failures()))
		}
		return nil
	},
}

var resetVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Audit for residue after a reset",
	RunE: func(cmd *cobra.Command, args []string) error {
		// The store is usually gone after a full reset; a missing database
		// is itself a clean result for the connection layer.
		st, _ := openStore()

		plane, closeCache, err := buildResetPlane(cmd, st)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer closeCache()
		if st != nil {
			defer st.Close()
		}

		verification, err := plane.Verify(cmd.Context())
		if errors.Is(err, reset.ErrNotPermitted) {
			output.Error("%v (set %s=development or pass --operator-override)", err, reset.EnvVar)
			return err
		}
		if err != nil {
			output.Error("verify: %v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(verification)
		}
		for _, r := range verification.Residues {
			if r.Err != nil {
				output.Warning("? %s: %s", r.Layer, r.Error)
			} else if r.Remaining > 0 {
				output.Warning("✗ %s: %d item(s) remain", r.Layer, r.Remaining)
			} else {
				fmt.Printf("✓ %s clean\n", r.Layer)
			}
		}
		if verification.Clean() {
			output.Success("No residue")
		}
		return nil
	},
}

// buildResetPlane assembles the ordered teardown layers. The Redis layer is
// included only when a cache is configured; the returned closer releases it.
func buildResetPlane(cmd *cobra.Command, st *store.Store) (*reset.Plane, func(), error) {
	override, _ := cmd.Flags().GetBool("operator-override")
	gate := reset.GateFromEnv(override)

	authPath, err := syncconfig.AuthPath()
	if err != nil {
		return nil, nil, err
	}
	statePath, err := syncconfig.StatePath()
	if err != nil {
		return nil, nil, err
	}
	sessionDir, err := syncconfig.SessionDir()
	if err != nil {
		return nil, nil, err
	}
	cookiePath, err := syncconfig.CookieJarPath()
	if err != nil {
		return nil, nil, err
	}

	layers := []reset.Layer{}
	if st != nil {
		layers = append(layers, reset.StoreConns(st))
	}
	layers = append(layers, reset.AuthCredentials(authPath))

	closeCache := func() {}
	if redisURL := syncconfig.GetRedisURL(); redisURL != "" {
		c, err := cache.New(redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect cache: %w", err)
		}
		if err := c.Ping(context.Background()); err != nil {
			c.Close()
			return nil, nil, fmt.Errorf("cache unreachable: %w", err)
		}
		layers = append(layers, reset.EphemeralCache(c))
		closeCache = func() { c.Close() }
	}

	if st != nil {
		layers = append(layers, reset.StoreFiles(st))
	}
	layers = append(layers,
		reset.FlatKV(statePath),
		reset.SessionStorage(sessionDir),
		reset.CookieJar(cookiePath),
	)

	return reset.NewPlane(gate, layers...), closeCache, nil
}

func init() {
	resetCmd.Flags().Bool("all", false, "Reset every workspace and device state")
	resetCmd.Flags().String("workspace", "", "Reset only this workspace")

	for _, c := range []*cobra.Command{resetCmd, resetVerifyCmd} {
		c.Flags().Bool("operator-override", false, "Bypass the environment gate")
		c.Flags().Bool("json", false, "JSON output")
	}
	resetCmd.AddCommand(resetVerifyCmd)
	rootCmd.AddCommand(resetCmd)
}
