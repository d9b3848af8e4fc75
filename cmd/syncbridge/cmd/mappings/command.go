// Package mappings implements the mappings command, which inspects and
// repairs identity links outside of a sync cycle.
package mappings

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/syncbridge/cmd/application"
	"github.com/agentstation/syncbridge/internal/output"
	"github.com/agentstation/syncbridge/pkg/constants"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/mapping"
)

// NewCommand creates the mappings command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mappings",
		GroupID: "management",
		Short:   "Inspect and repair object mappings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newListCommand(app))
	cmd.AddCommand(newDeleteCommand(app))
	cmd.AddCommand(newRemapCommand(app))
	return cmd
}

// Row is one mapping as printed by list.
type Row struct {
	ID                  int64     `json:"id" yaml:"id"`
	Integration         string    `json:"integration" yaml:"integration"`
	InternalObject      string    `json:"internal_object" yaml:"internal_object"`
	InternalObjectID    string    `json:"internal_object_id" yaml:"internal_object_id"`
	IntegrationObject   string    `json:"integration_object" yaml:"integration_object"`
	IntegrationObjectID string    `json:"integration_object_id" yaml:"integration_object_id"`
	LastSyncDate        time.Time `json:"last_sync_date" yaml:"last_sync_date"`
	Deleted             bool      `json:"deleted" yaml:"deleted"`
}

// Rows is the list output.
type Rows []Row

// Table implements output.Tabular.
func (r Rows) Table() output.Data {
	data := output.Data{Headers: []string{"ID", "Integration", "Internal", "Integration Object", "Last Sync", "Deleted"}}
	for _, row := range r {
		data.Rows = append(data.Rows, []string{
			strconv.FormatInt(row.ID, 10),
			row.Integration,
			row.InternalObject + "/" + row.InternalObjectID,
			row.IntegrationObject + "/" + row.IntegrationObjectID,
			row.LastSyncDate.Format(constants.TimeFormatISO8601),
			strconv.FormatBool(row.Deleted),
		})
	}
	return data
}

func newListCommand(app application.Application) *cobra.Command {
	var filter mapping.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List object mappings",
		Example: `  syncbridge mappings list --integration hubspot
  syncbridge mappings list --integration hubspot --internal-object Contact --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			links, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			rows := make(Rows, 0, len(links))
			for _, m := range links {
				rows = append(rows, Row{
					ID:                  m.ID,
					Integration:         m.Integration,
					InternalObject:      m.InternalObjectName,
					InternalObjectID:    m.InternalObjectID,
					IntegrationObject:   m.IntegrationObjectName,
					IntegrationObjectID: m.IntegrationObjectID,
					LastSyncDate:        m.LastSyncDate,
					Deleted:             m.IsDeleted,
				})
			}
			format := output.DetectFormat(app.OutputFormat())
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&filter.Integration, "integration", "", "integration name")
	cmd.Flags().StringVar(&filter.InternalObjectName, "internal-object", "", "internal object type")
	cmd.Flags().StringVar(&filter.IntegrationObjectName, "integration-object", "", "integration object type")
	cmd.Flags().BoolVar(&filter.IncludeDeleted, "all", false, "include deleted mappings")
	return cmd
}

// withLock runs fn while holding the integration lock, then drops the
// store's identity cache.
func withLock(ctx context.Context, store mapping.Store, integration string, fn func() (int, error)) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.LockTimeout)
	defer cancel()
	release, err := store.Lock(ctx, integration)
	if err != nil {
		return 0, errors.WrapResource("lock", "mapping", integration, err)
	}
	defer release()
	defer store.Clear()
	return fn()
}

func newDeleteCommand(app application.Application) *cobra.Command {
	var integration, side string
	cmd := &cobra.Command{
		Use:   "delete <object> <id>",
		Short: "Mark the mappings of an object as deleted",
		Example: `  syncbridge mappings delete --integration hubspot --side integration lead 1001
  syncbridge mappings delete --integration hubspot --side internal Contact 42`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if integration == "" {
				return &errors.ValidationError{Field: "integration", Message: "is required"}
			}
			s := mapping.Side(side)
			if s != mapping.SideInternal && s != mapping.SideIntegration {
				return errors.NewValidationError("side", side, "must be internal or integration")
			}
			store, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			n, err := withLock(cmd.Context(), store, integration, func() (int, error) {
				return store.MarkAsDeleted(cmd.Context(), integration, s, args[0], args[1])
			})
			if err != nil {
				return err
			}
			app.Logger().Info().Str("integration", integration).Str("object", args[0]).Str("object_id", args[1]).Int("count", n).Msg("mappings marked deleted")
			cmd.Printf("%d mapping(s) marked deleted\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&integration, "integration", "", "integration name")
	cmd.Flags().StringVar(&side, "side", string(mapping.SideIntegration), "side the object id belongs to: internal or integration")
	return cmd
}

func newRemapCommand(app application.Application) *cobra.Command {
	var integration string
	cmd := &cobra.Command{
		Use:     "remap <old-object> <old-id> <new-object> <new-id>",
		Short:   "Point mappings at a new integration object identity",
		Example: `  syncbridge mappings remap --integration hubspot lead 1001 contact 2002`,
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if integration == "" {
				return &errors.ValidationError{Field: "integration", Message: "is required"}
			}
			store, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			n, err := withLock(cmd.Context(), store, integration, func() (int, error) {
				return store.UpdateIntegrationObject(cmd.Context(), integration, args[0], args[1], args[2], args[3])
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.NewObjectNotFoundError(args[0], args[1])
			}
			cmd.Printf("%d mapping(s) remapped\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&integration, "integration", "", "integration name")
	return cmd
}
