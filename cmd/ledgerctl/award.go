package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	awardsrepo "github.com/fastprodman/tokenledger/internal/repos/awards"
	"github.com/fastprodman/tokenledger/internal/services/awards"
)

func init() {
	rootCmd.AddCommand(awardCmd)
	awardCmd.AddCommand(awardCreateCmd, awardGetCmd, awardCloseCmd, awardArchiveCmd, awardSweepCmd, awardTallyCmd)

	awardCreateCmd.Flags().String("title", "", "Award title")
	awardCreateCmd.Flags().Duration("voting-window", 0, "Voting closes this long from now (0 = no end date)")
	awardCreateCmd.Flags().Int("max-votes", 0, "Votes one user may hold on the award (default 10)")
	awardCreateCmd.Flags().Int64("vote-cost", 1, "Tokens per vote before tier discount")
	_ = awardCreateCmd.MarkFlagRequired("title")
}

var awardCmd = &cobra.Command{
	Use:   "award",
	Short: "Award lifecycle: ACTIVE -> CLOSED -> ARCHIVED",
}

var awardCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new ACTIVE award",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		title, _ := cmd.Flags().GetString("title")
		window, _ := cmd.Flags().GetDuration("voting-window")
		maxVotes, _ := cmd.Flags().GetInt("max-votes")
		voteCost, _ := cmd.Flags().GetInt64("vote-cost")

		in := awards.NewAward{Title: title, MaxVotesPerUser: maxVotes, TokenCostPerVote: voteCost}
		if window > 0 {
			ends := time.Now().Add(window)
			in.VotingEnds = &ends
		}

		a, err := deps.awards.Create(cmd.Context(), in)
		if err != nil {
			return fmt.Errorf("create award: %w", err)
		}

		printAward(cmd.OutOrStdout(), a)

		return nil
	},
}

var awardGetCmd = &cobra.Command{
	Use:   "get AWARD_ID",
	Short: "Show one award",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("award id: %w", err)
		}

		a, err := deps.awards.Get(cmd.Context(), id)
		if err != nil {
			return err
		}

		printAward(cmd.OutOrStdout(), a)

		return nil
	},
}

var awardCloseCmd = &cobra.Command{
	Use:   "close AWARD_ID",
	Short: "Stop accepting nominations and votes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], deps.awards.Close)
	},
}

var awardArchiveCmd = &cobra.Command{
	Use:   "archive AWARD_ID",
	Short: "Archive a CLOSED award",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], deps.awards.Archive)
	},
}

type transitionFunc func(ctx context.Context, id uuid.UUID) (awardsrepo.Award, error)

func transition(cmd *cobra.Command, rawID string, fn transitionFunc) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("award id: %w", err)
	}

	a, err := fn(cmd.Context(), id)
	if err != nil {
		return err
	}

	printAward(cmd.OutOrStdout(), a)

	return nil
}

var awardSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close every ACTIVE award whose voting window has passed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, err := deps.awards.SweepExpired(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "closed %d award(s)\n", n)

		return err
	},
}

var awardTallyCmd = &cobra.Command{
	Use:   "tally AWARD_ID",
	Short: "Compare nomination vote counts with per-user vote totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("award id: %w", err)
		}

		t, err := deps.awards.Tally(cmd.Context(), id)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "nomination votes: %d\nuser votes:       %d\nconsistent:       %t\n",
			t.NominationVotes, t.UserVotes, t.Consistent())

		if !t.Consistent() {
			return fmt.Errorf("award %s: vote tallies disagree", id)
		}

		return nil
	},
}

func printAward(w io.Writer, a awardsrepo.Award) {
	ends := "-"
	if a.VotingEnds != nil {
		ends = a.VotingEnds.Format(time.RFC3339)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", a.ID)
	fmt.Fprintf(tw, "title\t%s\n", a.Title)
	fmt.Fprintf(tw, "status\t%s\n", a.Status)
	fmt.Fprintf(tw, "voting ends\t%s\n", ends)
	fmt.Fprintf(tw, "max votes per user\t%d\n", a.MaxVotesPerUser)
	fmt.Fprintf(tw, "tokens per vote\t%d\n", a.TokenCostPerVote)
	_ = tw.Flush()
}
