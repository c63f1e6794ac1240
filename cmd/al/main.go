package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"actionline/internal/config"
	"actionline/internal/db"
	"actionline/internal/domain"
	"actionline/internal/engine"
	"actionline/internal/migrate"
	"actionline/internal/repo"
	"actionline/internal/schedule"
	"actionline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "al",
	Short: "Actionline CLI",
	Long: `Actionline schedules actions around business days and dependencies.
Core concepts:
- Workspace: your .actionline directory holding the database; actionline.yml configures defaults.
- Session: the container actions are extracted into; deleting a session soft-deletes its actions.
- Action: a work item with statuses todo -> in_progress -> in_review -> done (blocked, cancelled, failed, abandoned and replanned are the exits and detours).
- Dependencies: finish_to_start, start_to_start or finish_to_finish edges with lag in business days; cycles are rejected.
- Estimated dates: derived from today, targets, timelines ("2 weeks" = 10 business days) and dependency chains; completing an action ripples new dates through its dependents.
- Replan: clone a failed or abandoned action into a fresh attempt linked to the original.
- Audit: every mutation appends to a ledger, view with 'al audit tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("ACTIONLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "", "user identifier (overrides config)")
	rootCmd.PersistentFlags().String("session", "", "session id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("session", rootCmd.PersistentFlags().Lookup("session"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(recalcCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is actionline.yml in the workspace: the user id, default duration, graph depth bound, categories and priorities.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default actionline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(userID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "local-user", "user id to seed")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if filePath != "" {
				_, err = config.FromFile(filePath)
			} else {
				_, err = config.Load(viper.GetString("workspace"))
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "validate a specific YAML file instead of the workspace config")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Per-status action counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := currentUser(e)
				counts, err := e.StatusCounts(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"user_id": userID, "action_counts": counts})
				}
				fmt.Printf("User: %s\n", userID)
				fmt.Println("Actions:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func sessionCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions",
		Long:  "Sessions group the actions extracted together. Removing a session soft-deletes its live actions; restore brings the same set back.",
	}
	s.AddCommand(sessionOpenCmd())
	s.AddCommand(sessionStatusCmd())
	s.AddCommand(sessionRemoveCmd())
	s.AddCommand(sessionRestoreCmd())
	return s
}

func sessionStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <active|completed|failed_acknowledged>",
		Short: "Set a session's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetSessionStatus(ctx, args[0], currentUser(e), args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func sessionOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSession(ctx, currentUser(e))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func sessionRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Soft-delete a session and its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := e.DeleteSessionActions(ctx, args[0], currentUser(e))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"deleted_action_ids": ids})
			})
		},
	}
	return cmd
}

func sessionRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a soft-deleted session with its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := e.RestoreSessionActions(ctx, args[0], currentUser(e))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"restored_action_ids": ids})
			})
		},
	}
	return cmd
}

func actionCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "action",
		Short: "Manage actions",
		Long:  "Actions are the scheduled work items. Estimated dates are derived, never set directly; status moves follow the lifecycle and may block or unblock dependents.",
	}
	a.AddCommand(actionCreateCmd())
	a.AddCommand(actionListCmd())
	a.AddCommand(actionShowCmd())
	a.AddCommand(actionUpdateCmd())
	a.AddCommand(actionStatusCmd())
	a.AddCommand(actionDeleteCmd())
	a.AddCommand(actionRestoreCmd())
	a.AddCommand(actionReplanCmd())
	return a
}

func actionCreateCmd() *cobra.Command {
	var opts engine.ActionCreateOptions
	var steps []string
	var targetStart, targetEnd string
	var estimatedDays, confidence int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an action",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Steps = steps
			if cmd.Flags().Changed("estimated-days") {
				opts.EstimatedDays = &estimatedDays
			}
			if cmd.Flags().Changed("confidence") {
				opts.Confidence = &confidence
			}
			if targetStart != "" {
				opts.TargetStart = &targetStart
			}
			if targetEnd != "" {
				opts.TargetEnd = &targetEnd
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.UserID = currentUser(e)
				if opts.SessionID == "" {
					opts.SessionID = viper.GetString("session")
				}
				a, err := e.CreateAction(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session id")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringArrayVar(&steps, "step", []string{}, "step (repeatable)")
	cmd.Flags().StringVar(&opts.SuccessCriteria, "success-criteria", "", "success criteria")
	cmd.Flags().StringVar(&opts.KillCriteria, "kill-criteria", "", "kill criteria")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category")
	cmd.Flags().StringVar(&opts.Timeline, "timeline", "", `timeline text, e.g. "2 weeks"`)
	cmd.Flags().IntVar(&estimatedDays, "estimated-days", 0, "estimated duration in business days")
	cmd.Flags().StringVar(&targetStart, "target-start", "", "target start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&targetEnd, "target-end", "", "target end date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&confidence, "confidence", 0, "confidence 0-100")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func actionListCmd() *cobra.Command {
	var f repo.ActionFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.UserID = currentUser(e)
				if f.SessionID == "" {
					f.SessionID = viper.GetString("session")
				}
				actions, err := e.ListActions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actions)
				}
				ids := make([]string, len(actions))
				for i, a := range actions {
					ids[i] = a.ID
				}
				depsByAction, err := e.DependenciesForActions(ctx, ids)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Deps", "Est. Start", "Est. End"})
				for _, a := range actions {
					tw.AppendRow(table.Row{a.ID, a.Title, a.Status, a.Priority, len(depsByAction[a.ID]), fromPtr(a.EstimatedStart), fromPtr(a.EstimatedEnd)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.SessionID, "session", "", "session filter")
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().BoolVar(&f.IncludeDeleted, "include-deleted", false, "include soft-deleted actions")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "page size")
	return cmd
}

func actionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetAction(ctx, args[0], currentUser(e))
				if err != nil {
					return err
				}
				// Show an explicit estimate as timeline text when the
				// action carries no timeline of its own.
				if a.Timeline == "" && a.EstimatedDays != nil {
					a.Timeline = schedule.FormatTimeline(*a.EstimatedDays)
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func actionUpdateCmd() *cobra.Command {
	var title, description, priority, category, timeline, targetStart, targetEnd string
	var steps []string
	var estimatedDays, confidence int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update action content or schedule inputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ActionUpdateOptions{ID: args[0], Steps: steps}
			set := func(name string, dst **string, v *string) {
				if cmd.Flags().Changed(name) {
					*dst = v
				}
			}
			set("title", &opts.Title, &title)
			set("description", &opts.Description, &description)
			set("priority", &opts.Priority, &priority)
			set("category", &opts.Category, &category)
			set("timeline", &opts.Timeline, &timeline)
			set("target-start", &opts.TargetStart, &targetStart)
			set("target-end", &opts.TargetEnd, &targetEnd)
			if cmd.Flags().Changed("estimated-days") {
				opts.EstimatedDays = &estimatedDays
			}
			if cmd.Flags().Changed("confidence") {
				opts.Confidence = &confidence
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.UserID = currentUser(e)
				a, err := e.UpdateAction(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringArrayVar(&steps, "step", []string{}, "replace steps (repeatable)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&timeline, "timeline", "", "timeline text")
	cmd.Flags().IntVar(&estimatedDays, "estimated-days", 0, "estimated duration in business days")
	cmd.Flags().StringVar(&targetStart, "target-start", "", "target start (empty clears)")
	cmd.Flags().StringVar(&targetEnd, "target-end", "", "target end (empty clears)")
	cmd.Flags().IntVar(&confidence, "confidence", 0, "confidence 0-100")
	return cmd
}

func actionStatusCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move an action through its lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateStatus(ctx, args[0], currentUser(e), domain.Status(args[1]), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "blocked or closure reason")
	return cmd
}

func actionDeleteCmd() *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Soft-delete an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if purge {
					return e.PurgeAction(ctx, args[0], currentUser(e))
				}
				return e.DeleteAction(ctx, args[0], currentUser(e))
			})
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "hard-delete the action, its edges and audit records")
	return cmd
}

func actionRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a soft-deleted action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RestoreAction(ctx, args[0], currentUser(e)); err != nil {
					return err
				}
				a, err := e.GetAction(ctx, args[0], currentUser(e))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func actionReplanCmd() *cobra.Command {
	var steps []string
	var targetEnd string
	cmd := &cobra.Command{
		Use:   "replan <id>",
		Short: "Replan a failed or abandoned action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ReplanOptions{OriginalID: args[0], NewSteps: steps}
			if targetEnd != "" {
				opts.NewTargetEnd = &targetEnd
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.UserID = currentUser(e)
				clone, err := e.Replan(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(clone)
			})
		},
	}
	cmd.Flags().StringArrayVar(&steps, "step", []string{}, "replacement step (repeatable)")
	cmd.Flags().StringVar(&targetEnd, "target-end", "", "new target end date")
	return cmd
}

func depCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "dep",
		Short: "Manage dependencies",
		Long:  "Dependency edges gate scheduling and blocking. Adding an edge that would close a cycle is refused without error; the result says why.",
	}
	d.AddCommand(depAddCmd())
	d.AddCommand(depRemoveCmd())
	d.AddCommand(depListCmd())
	d.AddCommand(depTreeCmd())
	return d
}

func depAddCmd() *cobra.Command {
	var depType string
	var lagDays int
	cmd := &cobra.Command{
		Use:   "add <action-id> <depends-on-id>",
		Short: "Add a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.AddDependency(ctx, engine.AddDependencyOptions{
					ActionID:    args[0],
					DependsOnID: args[1],
					UserID:      currentUser(e),
					Type:        domain.DependencyType(depType),
					LagDays:     lagDays,
				})
				if err != nil {
					return err
				}
				if !res.Created && !viper.GetBool("json") {
					fmt.Println("rejected:", res.Reason)
					return nil
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&depType, "type", "finish_to_start", "dependency type")
	cmd.Flags().IntVar(&lagDays, "lag", 0, "lag in business days")
	return cmd
}

func depRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <action-id> <depends-on-id>",
		Short: "Remove a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveDependency(ctx, args[0], args[1], currentUser(e))
			})
		},
	}
	return cmd
}

func depListCmd() *cobra.Command {
	var reverse bool
	cmd := &cobra.Command{
		Use:   "list <action-id>",
		Short: "List direct dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var edges []domain.Dependency
				var err error
				if reverse {
					edges, err = e.Dependents(ctx, args[0])
				} else {
					edges, err = e.Dependencies(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(edges)
			})
		},
	}
	cmd.Flags().BoolVar(&reverse, "reverse", false, "list actions depending on this one instead")
	return cmd
}

func depTreeCmd() *cobra.Command {
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "tree <action-id>",
		Short: "Show the transitive dependency tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				edges, err := e.TransitiveDependencies(ctx, args[0], maxDepth)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(edges)
				}
				children := map[string][]domain.DepthDependency{}
				for _, edge := range edges {
					children[edge.ActionID] = append(children[edge.ActionID], edge)
				}
				root, err := e.GetAction(ctx, args[0], currentUser(e))
				if err != nil {
					return err
				}
				fmt.Printf("%s [%s]\n", root.Title, root.Status)
				printDepTree(ctx, e, args[0], children, "")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "traversal depth cap (0 uses config)")
	return cmd
}

func printDepTree(ctx context.Context, e engine.Engine, id string, children map[string][]domain.DepthDependency, prefix string) {
	edges := children[id]
	for i, edge := range edges {
		connector := "├── "
		newPrefix := prefix + "│   "
		if i == len(edges)-1 {
			connector = "└── "
			newPrefix = prefix + "    "
		}
		label := edge.DependsOnID
		if dep, err := e.Repo.GetAction(ctx, edge.DependsOnID); err == nil {
			label = fmt.Sprintf("%s [%s]", dep.Title, dep.Status)
		}
		suffix := ""
		if edge.LagDays != 0 {
			suffix = fmt.Sprintf(" (lag %d)", edge.LagDays)
		}
		fmt.Printf("%s%s%s%s\n", prefix, connector, label, suffix)
		printDepTree(ctx, e, edge.DependsOnID, children, newPrefix)
	}
}

func recalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recompute estimated dates for all open actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := e.RecalculateAllUserDates(ctx, currentUser(e))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"recalculated_action_ids": ids})
				}
				fmt.Printf("Recalculated %d actions\n", len(ids))
				return nil
			})
		},
	}
	return cmd
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "audit",
		Short: "Audit ledger",
		Long:  "The append-only record of everything that happened: creations, edits, status moves, blocks and unblocks, deletions and replans.",
	}
	a.AddCommand(auditTailCmd())
	return a
}

func auditTailCmd() *cobra.Command {
	var n int
	var actionID, updateType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f := repo.AuditFilters{ActionID: actionID, UpdateType: updateType, Limit: n}
				if actionID == "" {
					f.ActorID = currentUser(e)
				}
				records, err := e.AuditTrail(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(records)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of records")
	cmd.Flags().StringVar(&actionID, "action", "", "filter by action id")
	cmd.Flags().StringVar(&updateType, "type", "", "filter by update type")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("ACTIONLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("ACTIONLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Actionline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func currentUser(e engine.Engine) string {
	if id := viper.GetString("user-id"); id != "" {
		return id
	}
	if e.Config != nil && e.Config.User.ID != "" {
		return e.Config.User.ID
	}
	return "local-user"
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fromPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
