package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"talentmatch/internal/assignment"
	"talentmatch/internal/common/config"
	"talentmatch/internal/common/database"
	"talentmatch/internal/common/observability"
	"talentmatch/internal/jobs"
	"talentmatch/internal/models"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "talentmatch",
	Short: "Talent matching and milestone staffing service",
	Long: `talentmatch matches candidates to project milestones.
It scores fit with an AI judge (falling back to deterministic rules), ranks
competing business offers, guards assignments against double-booking, runs
CV and scoring work as background jobs, mirrors Jira issues as milestones and
watches milestones for schedule risk.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TALENTMATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default: configs/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(
		workerCmd(),
		migrateCmd(),
		syncJiraCmd(),
		connectJiraCmd(),
		enqueueCmd(),
		jobCmd(),
		rankInterestsCmd(),
		addInterestCmd(),
		rateInterestCmd(),
		topCandidatesCmd(),
		assignmentCmd(),
		evaluateRiskCmd(),
		searchCmd(),
	)
}

func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// withApp loads config, connects dependencies and runs fn with a context
// cancelled on SIGINT or SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ==========================
// Worker
// ==========================

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the job pool, risk monitor and health server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(runWorker)
		},
	}
}

func runWorker(ctx context.Context, a *app) error {
	cfg := a.cfg
	name := cfg.App.Name
	if name == "" {
		name = "talentmatch"
	}

	obs := observability.New(name, a.log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()

	registry := a.registry()
	pool := jobs.NewPool(a.store, registry, a.notifier(ctx), obs, jobs.PoolConfig{
		PollInterval:    config.GetDuration(cfg.Jobs.PollInterval),
		Concurrency:     cfg.Jobs.Concurrency,
		ShutdownTimeout: config.GetDuration(cfg.Jobs.ShutdownTimeout),
	}, a.log)

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newHealthRouter(a.pingers()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.zapLog.Info("health server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.zapLog.Error("health server failed", zap.Error(err))
		}
	}()

	if interval := config.GetDuration(cfg.Risk.SweepInterval); interval > 0 {
		go a.monitor(ctx).Run(ctx, interval)
	}

	types := make([]string, 0)
	for _, t := range registry.Types() {
		types = append(types, string(t))
	}
	a.zapLog.Info("worker started",
		zap.Strings("jobTypes", types),
		zap.Int("concurrency", cfg.Jobs.Concurrency),
		zap.Duration("riskSweepInterval", config.GetDuration(cfg.Risk.SweepInterval)),
	)

	poolErr := pool.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.zapLog.Warn("health server shutdown", zap.Error(err))
	}

	a.zapLog.Info("worker stopped")
	return poolErr
}

// ==========================
// Maintenance
// ==========================

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				applied, err := database.Migrate(ctx, a.pg.DB)
				if err != nil {
					return err
				}
				a.zapLog.Info("migrations applied", zap.Int("count", applied))
				return nil
			})
		},
	}
}

func syncJiraCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "sync-jira",
		Short: "Mirror the project's Jira issues as milestones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.syncer().Sync(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func connectJiraCmd() *cobra.Command {
	var projectID, key, token string
	cmd := &cobra.Command{
		Use:   "connect-jira",
		Short: "Link a project to a Jira project key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("JIRA_PROJECT_TOKEN")
			}
			return withApp(func(ctx context.Context, a *app) error {
				return a.syncer().Connect(ctx, projectID, key, token)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&key, "key", "", "Jira project key")
	cmd.Flags().StringVar(&token, "token", "", "project API token (default $JIRA_PROJECT_TOKEN, empty uses the global token)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

// ==========================
// Jobs
// ==========================

func enqueueCmd() *cobra.Command {
	var payload, email string
	cmd := &cobra.Command{
		Use:   "enqueue <job-type>",
		Short: "Queue a background job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				id, err := a.queue.Enqueue(ctx, models.JobType(args[0]), json.RawMessage(payload), email)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"jobId": id})
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "{}", "job payload as JSON")
	cmd.Flags().StringVar(&email, "email", "", "address notified when the job finishes")
	return cmd
}

func jobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show a background job's status, progress and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				job, err := a.queue.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(job)
			})
		},
	}
}

// ==========================
// Matching
// ==========================

func rankInterestsCmd() *cobra.Command {
	var candidateID string
	cmd := &cobra.Command{
		Use:   "rank-interests",
		Short: "Recompute and rank a candidate's open business offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ranked, err := a.resolver().Recompute(ctx, candidateID)
				if err != nil {
					return err
				}
				return printJSON(ranked)
			})
		},
	}
	cmd.Flags().StringVar(&candidateID, "candidate", "", "candidate id")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}

func addInterestCmd() *cobra.Command {
	var in models.BusinessInterest
	cmd := &cobra.Command{
		Use:   "add-interest",
		Short: "Record a business offer for a candidate and re-rank their open offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ranked, err := a.resolver().AddInterest(ctx, &in)
				if err != nil {
					return err
				}
				return printJSON(map[string]interface{}{"interestId": in.ID, "ranked": ranked})
			})
		},
	}
	cmd.Flags().StringVar(&in.BusinessID, "business", "", "business id")
	cmd.Flags().StringVar(&in.CandidateID, "candidate", "", "candidate id")
	cmd.Flags().StringVar(&in.MilestoneID, "milestone", "", "milestone id")
	cmd.Flags().Float64Var(&in.OfferBudget, "budget", 0, "offered budget")
	for _, f := range []string{"business", "candidate", "milestone", "budget"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func rateInterestCmd() *cobra.Command {
	var rating int
	cmd := &cobra.Command{
		Use:   "rate-interest <interest-id>",
		Short: "Store the candidate's 1..5 rating of an offer and re-rank their open offers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ranked, err := a.resolver().RatePreference(ctx, args[0], rating)
				if err != nil {
					return err
				}
				return printJSON(ranked)
			})
		},
	}
	cmd.Flags().IntVar(&rating, "rating", 0, "candidate preference, 1..5")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func topCandidatesCmd() *cobra.Command {
	var milestoneID string
	var n int
	cmd := &cobra.Command{
		Use:   "top-candidates",
		Short: "List the best scored candidates for a milestone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ranked, err := a.store.TopCandidatesForMilestone(ctx, milestoneID, n)
				if err != nil {
					return err
				}
				return printJSON(ranked)
			})
		},
	}
	cmd.Flags().StringVar(&milestoneID, "milestone", "", "milestone id")
	cmd.Flags().IntVarP(&n, "limit", "n", 10, "maximum candidates")
	_ = cmd.MarkFlagRequired("milestone")
	return cmd
}

func searchCmd() *cobra.Command {
	var skills []string
	var size int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search indexed candidates by skill",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if a.search == nil {
					return errors.New("candidate search is disabled (database.elasticsearch.enabled)")
				}
				hits, err := a.search.SearchBySkills(ctx, skills, size)
				if err != nil {
					return err
				}
				return printJSON(hits)
			})
		},
	}
	cmd.Flags().StringSliceVar(&skills, "skills", nil, "comma separated skills")
	cmd.Flags().IntVar(&size, "size", 10, "maximum hits")
	_ = cmd.MarkFlagRequired("skills")
	return cmd
}

// ==========================
// Assignments & risk
// ==========================

func assignmentCmd() *cobra.Command {
	var milestoneID, candidateID, reason string
	cmd := &cobra.Command{
		Use:   "assignment <op>",
		Short: "Apply an assignment or backup transition to a milestone",
		Long: `Operations: assign, confirm, reject, start, complete, reset,
offer_backup, request_backup, decline_backup, activate_backup, clear_backup.
A rejected transition prints valid=false and exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				res, err := runAssignment(ctx, a.assignments(), args[0], milestoneID, candidateID, reason)
				if err != nil {
					return err
				}
				if err := printJSON(res); err != nil {
					return err
				}
				if !res.Valid {
					return fmt.Errorf("%s rejected: %s", args[0], res.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&milestoneID, "milestone", "", "milestone id")
	cmd.Flags().StringVar(&candidateID, "candidate", "", "candidate id (assign, offer_backup)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the assignment history")
	_ = cmd.MarkFlagRequired("milestone")
	return cmd
}

func runAssignment(ctx context.Context, svc *assignment.Service, op, milestoneID, candidateID, reason string) (*assignment.Result, error) {
	switch op {
	case assignment.OpAssign:
		return svc.Assign(ctx, milestoneID, candidateID)
	case assignment.OpConfirm:
		return svc.Confirm(ctx, milestoneID)
	case assignment.OpReject:
		return svc.Reject(ctx, milestoneID, reason)
	case assignment.OpStart:
		return svc.Start(ctx, milestoneID)
	case assignment.OpComplete:
		return svc.Complete(ctx, milestoneID)
	case assignment.OpReset:
		return svc.Reset(ctx, milestoneID, reason)
	case assignment.OpOfferBackup:
		return svc.OfferBackup(ctx, milestoneID, candidateID)
	case assignment.OpRequestBackup:
		return svc.RequestBackup(ctx, milestoneID)
	case assignment.OpDeclineBackup:
		return svc.DeclineBackup(ctx, milestoneID, reason)
	case assignment.OpActivateBackup:
		return svc.ActivateBackup(ctx, milestoneID, reason)
	case assignment.OpClearBackup:
		return svc.ClearBackup(ctx, milestoneID, reason)
	default:
		return nil, fmt.Errorf("unknown assignment operation %q", op)
	}
}

func evaluateRiskCmd() *cobra.Command {
	var milestoneID string
	cmd := &cobra.Command{
		Use:   "evaluate-risk",
		Short: "Predict schedule risk for one milestone, or sweep every open one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				monitor := a.monitor(ctx)
				if milestoneID != "" {
					eval, err := monitor.Evaluate(ctx, milestoneID)
					if err != nil {
						return err
					}
					return printJSON(eval)
				}
				evaluated, failed, err := monitor.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]int{"evaluated": evaluated, "failed": failed})
			})
		},
	}
	cmd.Flags().StringVar(&milestoneID, "milestone", "", "milestone id (empty sweeps all open milestones)")
	return cmd
}
