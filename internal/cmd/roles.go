package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/finhub/internal/roles"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Inspect user roles",
}

var rolesGetCmd = &cobra.Command{
	Use:   "get <uid>",
	Short: "Resolve the role of a user",
	Long: `Resolve the role of a user the same way the dashboard and API do.

A missing record, a missing role field or an unknown role name resolve to
"user". If the store cannot be read the command prints a warning and the
fail-safe role "user".

The firestore store is read with the signed-in dashboard session.`,
	Args: cobra.ExactArgs(1),
	RunE: runRolesGet,
}

var rolesJSON bool

func init() {
	rolesGetCmd.Flags().BoolVar(&rolesJSON, "json", false, "output the result as JSON")

	rolesCmd.AddCommand(rolesGetCmd)
	rootCmd.AddCommand(rolesCmd)
}

// roleResult is the outcome of one role lookup.
type roleResult struct {
	UserID string     `json:"uid"`
	Role   roles.Role `json:"role"`
	Record bool       `json:"record"`
	Store  string     `json:"store"`
	Error  string     `json:"error,omitempty"`
}

func runRolesGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	provider, err := openIdentity(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer provider.Close()

	store, err := openRoleStore(ctx, cfg, provider.IDToken, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := lookupContext(ctx, cfg.Roles.LookupTimeout)
	defer cancel()

	role, rec, err := roles.Lookup(ctx, store, args[0])
	res := roleResult{UserID: args[0], Role: role, Record: rec != nil, Store: store.Name()}
	if err != nil {
		res.Role = roles.DefaultRole
		res.Error = err.Error()
	}
	return writeRole(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, rolesJSON)
}

func writeRole(out, errOut io.Writer, res roleResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if res.Error != "" {
		fmt.Fprintf(errOut, "Warning: %s lookup failed, using the default role: %s\n", res.Store, res.Error)
	}
	record := "no record"
	if res.Record {
		record = "record"
	}
	fmt.Fprintf(out, "%s\t%s\t(%s, %s)\n", res.UserID, res.Role, res.Store, record)
	return nil
}
