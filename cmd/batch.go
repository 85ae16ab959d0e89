package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-scoring/internal/engine"
	"github.com/sells-group/crm-scoring/internal/model"
)

var (
	batchKind  string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score every active lead and/or account",
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := kindsFor(batchKind)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		ids, err := collectIDs(ctx, env.CRM, kinds, batchLimit)
		if err != nil {
			return err
		}

		opts := []engine.BatchOption{engine.WithMetrics(env.Metrics)}
		if cfg.Salesforce.WriteBack {
			opts = append(opts, engine.WithWriteBack(env.CRM))
		}
		runner := engine.NewBatchRunner(env.Engine, engine.BatchConfig{
			Concurrency:    cfg.Batch.Concurrency,
			ThrottleEvery:  cfg.Batch.ThrottleEvery,
			ThrottleDelay:  time.Duration(cfg.Batch.ThrottleDelayMs) * time.Millisecond,
			SubjectTimeout: time.Duration(cfg.Batch.SubjectTimeoutSecs) * time.Second,
		}, opts...)

		zap.L().Info("starting batch", zap.Int("subjects", len(ids)), zap.String("kind", batchKind))
		report := runner.Run(ctx, ids)

		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if report.Processed == 0 && len(report.Errors) > 0 {
			return eris.Errorf("batch: all %d subjects failed", len(report.Errors))
		}
		return nil
	},
}

// idLister lists active subject ids of one kind.
type idLister interface {
	ActiveIDs(ctx context.Context, kind model.SubjectKind, limit int) ([]string, error)
}

func kindsFor(flag string) ([]model.SubjectKind, error) {
	switch flag {
	case "lead":
		return []model.SubjectKind{model.SubjectLead}, nil
	case "account":
		return []model.SubjectKind{model.SubjectAccount}, nil
	case "all", "":
		return []model.SubjectKind{model.SubjectLead, model.SubjectAccount}, nil
	default:
		return nil, eris.Errorf("invalid --kind %q: want lead, account or all", flag)
	}
}

// collectIDs gathers up to limit ids per kind.
func collectIDs(ctx context.Context, l idLister, kinds []model.SubjectKind, limit int) ([]string, error) {
	var ids []string
	for _, k := range kinds {
		got, err := l.ActiveIDs(ctx, k, limit)
		if err != nil {
			return nil, eris.Wrapf(err, "list active %s ids", k)
		}
		ids = append(ids, got...)
	}
	return ids, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchKind, "kind", "all", "subject kind to score: lead, account or all")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 1000, "max subjects per kind")
	rootCmd.AddCommand(batchCmd)
}
