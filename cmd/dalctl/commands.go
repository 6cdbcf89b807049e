package main

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/spf13/cobra"

	"github.com/qolzam/kinit-dal/internal/database/factory"
	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/postgresql"
	"github.com/qolzam/kinit-dal/internal/scheduler"
	"github.com/qolzam/kinit-dal/internal/tree"
	"github.com/qolzam/kinit-dal/tasks/models"
	"github.com/qolzam/kinit-dal/tasks/services"
)

// --- ping ---

var pingCmd = &cobra.Command{
	Use:   "ping [postgres|mongo|redis]...",
	Short: "Connect to each store and report whether it answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		stores := factory.AllStores
		if len(args) > 0 {
			stores = stores[:0:0]
			for _, a := range args {
				stores = append(stores, factory.Store(a))
			}
		}

		f := factory.NewFactory(cfg)
		var failed int
		for _, s := range stores {
			connected, err := f.Connect(cmd.Context(), s)
			if err != nil {
				printError("%s: %v", s, err)
				failed++
				continue
			}
			if err := connected.Close(context.Background()); err != nil {
				printWarning("%s: close: %v", s, err)
			}
			printSuccess("%s is reachable", s)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d stores unreachable", failed, len(stores))
		}
		return nil
	},
}

// --- task ---

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and schedule stored tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks with their live state as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString("group")
		name, _ := cmd.Flags().GetString("name")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		params := filter.New().Eq("group", group).Like("name", name).Params()
		if cmd.Flags().Changed("active") {
			active, _ := cmd.Flags().GetBool("active")
			params["is_active"] = active
		}

		return withTaskService(cmd, func(ts *taskSession) error {
			result, err := ts.service.List(cmd.Context(), params, page, limit, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var taskEnqueueCmd = &cobra.Command{
	Use:   "enqueue <task-id>",
	Short: "Publish a stored task to the scheduler with its own strategy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTaskService(cmd, func(ts *taskSession) error {
			task, err := ts.service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			n, err := ts.bridge.Enqueue(cmd.Context(), definitionOf(task))
			if err != nil {
				return err
			}
			reportSubscribers(n)
			return nil
		})
	},
}

var taskRunOnceCmd = &cobra.Command{
	Use:   "run-once <task-id>",
	Short: "Ask the scheduler to run a task's job a single time now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTaskService(cmd, func(ts *taskSession) error {
			n, err := ts.service.RunOnce(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			reportSubscribers(n)
			return nil
		})
	},
}

func reportSubscribers(n int64) {
	if n == 0 {
		printWarning("published, but no scheduler is subscribed")
		return
	}
	printSuccess("published to %d subscriber(s)", n)
}

func init() {
	taskListCmd.Flags().String("group", "", "only tasks in this group")
	taskListCmd.Flags().String("name", "", "only tasks whose name contains this text")
	taskListCmd.Flags().Bool("active", false, "only active (or, with =false, inactive) tasks")
	taskListCmd.Flags().Int("page", 1, "page number")
	taskListCmd.Flags().Int("limit", 10, "page size, 0 for everything")
	taskCmd.AddCommand(taskListCmd, taskEnqueueCmd, taskRunOnceCmd)
}

// --- tree ---

// treeRow is the projection read from any parent-referencing table.
type treeRow struct {
	ID       int64  `db:"id"`
	ParentID *int64 `db:"parent_id"`
	Label    string `db:"label"`
	Sort     int    `db:"sort"`
}

var treeAccessor = tree.Accessor[treeRow, int64]{
	ID:     func(r treeRow) int64 { return r.ID },
	Parent: func(r treeRow) *int64 { return r.ParentID },
	Order:  func(r treeRow) int { return r.Sort },
}

type treeSource struct {
	table          string
	parentColumn   string
	labelColumn    string
	orderColumn    string
	includeDeleted bool
}

func (s treeSource) column(name string) string {
	return s.table + "." + name
}

// query projects the table onto treeRow. Soft-deleted rows are skipped unless asked for.
func (s treeSource) query() *postgresql.Query[treeRow] {
	sort := "0"
	if s.orderColumn != "" {
		sort = s.column(s.orderColumn)
	}
	base := sq.Select(
		s.column(postgresql.ColumnID),
		s.column(s.parentColumn)+" AS parent_id",
		s.column(s.labelColumn)+" AS label",
		sort+" AS sort",
	).From(s.table)

	q := &postgresql.Query[treeRow]{Base: &base}
	if !s.includeDeleted {
		q.Where = []sq.Sqlizer{sq.Eq{s.column(postgresql.ColumnIsDelete): false}}
	}
	return q
}

var treeCmd = &cobra.Command{
	Use:   "tree <table>",
	Short: "Print a parent-referencing table as an option tree",
	Long: `Reads every row of the table in one query and prints the nested
value/label/children options as JSON. The table needs an id column and
must carry is_delete unless --include-deleted is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := treeSource{table: args[0]}
		src.parentColumn, _ = cmd.Flags().GetString("parent")
		src.labelColumn, _ = cmd.Flags().GetString("label")
		src.orderColumn, _ = cmd.Flags().GetString("order")
		src.includeDeleted, _ = cmd.Flags().GetBool("include-deleted")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		stores, err := factory.NewFactory(cfg).Connect(cmd.Context(), factory.StorePostgres)
		if err != nil {
			return err
		}
		defer stores.Close(context.Background())

		repo := postgresql.NewRepository[treeRow](stores.Postgres, postgresql.Table{Name: src.table})
		rows, err := repo.List(cmd.Context(), 1, 0, src.query())
		if err != nil {
			return err
		}
		options := tree.BuildOptions(rows.Items, treeAccessor, func(r treeRow) string { return r.Label })
		return printJSON(cmd.OutOrStdout(), options)
	},
}

func init() {
	treeCmd.Flags().String("parent", "parent_id", "column referencing the parent row")
	treeCmd.Flags().String("label", "name", "column shown as the option label")
	treeCmd.Flags().String("order", "", "column sorting siblings, id order when empty")
	treeCmd.Flags().Bool("include-deleted", false, "keep soft-deleted rows")
}

// --- shared ---

type taskSession struct {
	service services.TaskService
	bridge  *scheduler.Bridge
}

// withTaskService connects mongo and redis for the duration of fn.
func withTaskService(cmd *cobra.Command, fn func(*taskSession) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f := factory.NewFactory(cfg)
	stores, err := f.Connect(cmd.Context(), factory.StoreMongo, factory.StoreRedis)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	svc, err := f.TaskService(stores)
	if err != nil {
		return err
	}
	bridge, err := f.Bridge(stores)
	if err != nil {
		return err
	}
	return fn(&taskSession{service: svc, bridge: bridge})
}

func definitionOf(task *models.Task) scheduler.TaskDefinition {
	return scheduler.TaskDefinition{
		ID:           task.ID.Hex(),
		JobClass:     task.JobClass,
		ExecStrategy: task.ExecStrategy,
		Expression:   task.Expression,
		StartDate:    task.StartDate,
		EndDate:      task.EndDate,
	}
}
