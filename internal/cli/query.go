package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/query"
	"github.com/roach88/ledger/internal/value"
	"github.com/roach88/ledger/internal/world"
)

// QueryOptions holds the filter flags of the query subcommands.
type QueryOptions struct {
	*RootOptions
	Domain      string
	Account     string
	Definition  string
	Owner       string
	HasMetadata string
}

// NewQueryCommand creates the query command and its subcommands.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the world state",
		Long: `Query the world state at the head of the block store.

The store is replayed first, so queries see every committed block.

Examples:
  ledger query accounts --domain wonderland
  ledger query assets --account alice@wonderland --format json
  ledger query balance rose##alice@wonderland
  ledger query metadata alice@wonderland motto`,
	}

	cmd.AddCommand(
		newListCommand(opts, "domains", "List domains", []string{"owner"},
			func(r world.Reader, o *QueryOptions) (*query.Cursor[model.Domain], error) {
				var ps []query.Predicate[model.Domain]
				if o.Owner != "" {
					id, err := ident.ParseAccountID(o.Owner)
					if err != nil {
						return nil, err
					}
					ps = append(ps, query.DomainOwnedBy(id))
				}
				return query.FindDomains(r, query.And(ps...)), nil
			},
			func(d model.Domain) string { return fmt.Sprintf("%s owned by %s", d.ID, d.OwnedBy) }),

		newListCommand(opts, "accounts", "List accounts", []string{"domain", "has-metadata"},
			func(r world.Reader, o *QueryOptions) (*query.Cursor[model.Account], error) {
				var ps []query.Predicate[model.Account]
				if o.Domain != "" {
					id, err := ident.ParseDomainID(o.Domain)
					if err != nil {
						return nil, err
					}
					ps = append(ps, query.AccountInDomain(id))
				}
				if o.HasMetadata != "" {
					key, err := ident.ParseName(o.HasMetadata)
					if err != nil {
						return nil, err
					}
					ps = append(ps, query.AccountHasMetadata(key))
				}
				return query.FindAccounts(r, query.And(ps...)), nil
			},
			func(a model.Account) string { return a.ID.String() }),

		newListCommand(opts, "asset-definitions", "List asset definitions", []string{"domain", "owner"},
			func(r world.Reader, o *QueryOptions) (*query.Cursor[model.AssetDefinition], error) {
				var ps []query.Predicate[model.AssetDefinition]
				if o.Domain != "" {
					id, err := ident.ParseDomainID(o.Domain)
					if err != nil {
						return nil, err
					}
					ps = append(ps, query.DefinitionInDomain(id))
				}
				if o.Owner != "" {
					id, err := ident.ParseAccountID(o.Owner)
					if err != nil {
						return nil, err
					}
					ps = append(ps, query.DefinitionOwnedBy(id))
				}
				return query.FindAssetDefinitions(r, query.And(ps...)), nil
			},
			func(d model.AssetDefinition) string {
				return fmt.Sprintf("%s %s %s total %s", d.ID, d.Type.Kind, d.Mintable, d.TotalQuantity)
			}),

		newListCommand(opts, "assets", "List assets", []string{"domain", "account", "definition"},
			func(r world.Reader, o *QueryOptions) (*query.Cursor[model.Asset], error) {
				var ps []query.Predicate[model.Asset]
				if o.Domain != "" {
					id, err := ident.ParseDomainID(o.Domain)
					if err != nil {
						return nil, err
					}
					ps = append(ps, query.AssetInDomain(id))
				}
				if o.Account != "" {
					id, err := ident.ParseAccountID(o.Account)
					if err != nil {
						return nil, err
					}
					ps = append(ps, query.AssetOfAccount(id))
				}
				if o.Definition != "" {
					id, err := ident.ParseAssetDefinitionID(o.Definition)
					if err != nil {
						return nil, err
					}
					ps = append(ps, query.AssetOfDefinition(id))
				}
				return query.FindAssets(r, query.And(ps...)), nil
			},
			func(a model.Asset) string { return fmt.Sprintf("%s %s", a.ID, a.Value) }),

		newListCommand(opts, "roles", "List roles", nil,
			func(r world.Reader, o *QueryOptions) (*query.Cursor[model.Role], error) {
				return query.FindRoles(r, query.All[model.Role]()), nil
			},
			func(role model.Role) string {
				return fmt.Sprintf("%s owned by %s, %d permissions", role.ID, role.Owner, role.Permissions.Len())
			}),

		newListCommand(opts, "triggers", "List triggers", []string{"account"},
			func(r world.Reader, o *QueryOptions) (*query.Cursor[model.Trigger], error) {
				var ps []query.Predicate[model.Trigger]
				if o.Account != "" {
					id, err := ident.ParseAccountID(o.Account)
					if err != nil {
						return nil, err
					}
					ps = append(ps, query.TriggerOfAuthority(id))
				}
				return query.FindTriggers(r, query.And(ps...)), nil
			},
			func(t model.Trigger) string { return fmt.Sprintf("%s as %s", t.ID, t.Action.Authority) }),

		newBalanceCommand(opts),
		newMetadataCommand(opts),
		newPermissionsCommand(opts),
		newRolesOfCommand(opts),
	)

	return cmd
}

// filterFlags binds the named filter flags to cmd.
func filterFlags(cmd *cobra.Command, opts *QueryOptions, names []string) {
	for _, name := range names {
		switch name {
		case "domain":
			cmd.Flags().StringVar(&opts.Domain, "domain", "", "only objects in this domain")
		case "account":
			cmd.Flags().StringVar(&opts.Account, "account", "", "only objects of this account")
		case "definition":
			cmd.Flags().StringVar(&opts.Definition, "definition", "", "only assets of this definition")
		case "owner":
			cmd.Flags().StringVar(&opts.Owner, "owner", "", "only objects owned by this account")
		case "has-metadata":
			cmd.Flags().StringVar(&opts.HasMetadata, "has-metadata", "", "only accounts with this metadata key")
		}
	}
}

func newListCommand[T any](
	opts *QueryOptions,
	use, short string,
	filters []string,
	find func(world.Reader, *QueryOptions) (*query.Cursor[T], error),
	line func(T) string,
) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorld(cmd.Context(), opts, func(r world.Reader) error {
				cur, err := find(r, opts)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid filter", err)
				}
				results := cur.Collect()
				f := NewOutputFormatter(opts.RootOptions, cmd)
				return f.Emit(results, func(w io.Writer) {
					for _, v := range results {
						fmt.Fprintln(w, line(v))
					}
				})
			})
		},
	}
	filterFlags(cmd, opts, filters)
	return cmd
}

func newBalanceCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <asset-id>",
		Short: "Show the quantity held in a numeric asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ident.ParseAssetID(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid asset id", err)
			}
			return withWorld(cmd.Context(), opts, func(r world.Reader) error {
				q, err := query.FindAssetQuantity(r, id)
				if err != nil {
					return queryError(err)
				}
				f := NewOutputFormatter(opts.RootOptions, cmd)
				return f.Emit(map[string]string{"asset": id.String(), "quantity": q.String()}, func(w io.Writer) {
					fmt.Fprintln(w, q.String())
				})
			})
		},
	}
}

func newMetadataCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <account-or-domain-id> <key>",
		Short: "Show a metadata value of an account or a domain",
		Long: `Show a metadata value. An id containing "@" names an account,
anything else a domain.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := ident.ParseName(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid metadata key", err)
			}
			return withWorld(cmd.Context(), opts, func(r world.Reader) error {
				v, err := findMetadata(r, args[0], key)
				if err != nil {
					return queryError(err)
				}
				data, err := value.Marshal(v)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to encode value", err)
				}
				f := NewOutputFormatter(opts.RootOptions, cmd)
				return f.Emit(json.RawMessage(data), func(w io.Writer) { fmt.Fprintln(w, string(data)) })
			})
		},
	}
}

func findMetadata(r world.Reader, owner string, key ident.Name) (value.Value, error) {
	if account, err := ident.ParseAccountID(owner); err == nil {
		return query.FindAccountMetadata(r, account, key)
	}
	id, err := ident.ParseDomainID(owner)
	if err != nil {
		return nil, ledgererr.New(ledgererr.CodeParseError, "%q is neither an account nor a domain id", owner)
	}
	return query.FindDomainMetadata(r, id, key)
}

func newPermissionsCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "permissions <account-id>",
		Short: "List the permissions granted directly to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ident.ParseAccountID(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid account id", err)
			}
			return withWorld(cmd.Context(), opts, func(r world.Reader) error {
				perms, err := query.FindPermissions(r, id)
				if err != nil {
					return queryError(err)
				}
				wrapped := make([]model.PermissionJSON, len(perms))
				for i, p := range perms {
					wrapped[i] = model.PermissionJSON{Permission: p}
				}
				f := NewOutputFormatter(opts.RootOptions, cmd)
				return f.Emit(wrapped, func(w io.Writer) {
					for _, p := range perms {
						fmt.Fprintln(w, permissionLine(p))
					}
				})
			})
		},
	}
}

func permissionLine(p model.Permission) string {
	if scope := p.Scope(); scope.Kind != "" {
		return fmt.Sprintf("%s %s", p.Name(), scope)
	}
	return p.Name()
}

func newRolesOfCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roles-of <account-id>",
		Short: "List the roles an account is a member of",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ident.ParseAccountID(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid account id", err)
			}
			return withWorld(cmd.Context(), opts, func(r world.Reader) error {
				roles, err := query.FindRolesByAccount(r, id)
				if err != nil {
					return queryError(err)
				}
				f := NewOutputFormatter(opts.RootOptions, cmd)
				return f.Emit(roles, func(w io.Writer) {
					for _, role := range roles {
						fmt.Fprintln(w, role)
					}
				})
			})
		},
	}
}

// withWorld opens the ledger and calls fn with a snapshot of its head.
func withWorld(ctx context.Context, opts *QueryOptions, fn func(world.Reader) error) error {
	l, err := openLedger(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l.engine.Snapshot())
}

// queryError maps a failed lookup to an exit error. Missing objects are
// ExitFailure; anything else is a command error.
func queryError(err error) error {
	switch ledgererr.CodeOf(err) {
	case ledgererr.CodeNotFound, ledgererr.CodeWrongValueType:
		return WrapExitError(ExitFailure, "query failed", err)
	default:
		return WrapExitError(ExitCommandError, "query failed", err)
	}
}
