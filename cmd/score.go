package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-scoring/internal/model"
)

var scoreCmd = &cobra.Command{
	Use:   "score <subject-id>",
	Short: "Score a single lead or account and print the snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "score")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Engine.Score(ctx, args[0])
		if err != nil {
			return kindError(args[0], err)
		}

		zap.L().Info("subject scored",
			zap.String("subject_id", snap.SubjectID),
			zap.Int("score", snap.OverallScore),
			zap.String("risk_category", string(snap.RiskCategory)),
		)
		return printJSON(cmd.OutOrStdout(), snap)
	},
}

// kindError prefixes err with its error kind so the exit message names it.
func kindError(subjectID string, err error) error {
	return fmt.Errorf("score %s [%s]: %w", subjectID, model.KindOf(err), err)
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
