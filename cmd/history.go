package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/internal/store"
)

var (
	historyLimit int
	historyRisk  string
)

var historyCmd = &cobra.Command{
	Use:   "history [subject-id]",
	Short: "Show score history for a subject, or subjects by risk category",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		subjectID := ""
		if len(args) == 1 {
			subjectID = args[0]
		}
		return runHistory(ctx, st, cmd.OutOrStdout(), subjectID, historyRisk, historyLimit)
	},
}

func runHistory(ctx context.Context, st store.HistoryStore, w io.Writer, subjectID, risk string, limit int) error {
	switch {
	case risk != "" && subjectID != "":
		return eris.New("pass either a subject id or --risk, not both")
	case risk != "":
		category, ok := model.ParseRiskCategory(risk)
		if !ok {
			return eris.Errorf("unknown risk category %q", risk)
		}
		snaps, err := st.ListByRiskCategory(ctx, category, limit)
		if err != nil {
			return eris.Wrap(err, "list by risk category")
		}
		return printJSON(w, nonNil(snaps))
	case subjectID != "":
		snaps, err := st.GetHistory(ctx, subjectID, limit)
		if err != nil {
			return eris.Wrap(err, "get history")
		}
		return printJSON(w, nonNil(snaps))
	default:
		return eris.New("a subject id or --risk is required")
	}
}

func nonNil(s []model.ScoreSnapshot) []model.ScoreSnapshot {
	if s == nil {
		return []model.ScoreSnapshot{}
	}
	return s
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max snapshots to show")
	historyCmd.Flags().StringVar(&historyRisk, "risk", "", "list subjects whose latest snapshot is in this risk category")
	rootCmd.AddCommand(historyCmd)
}
