package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	ledgerrepo "github.com/fastprodman/tokenledger/internal/repos/ledger"
	"github.com/fastprodman/tokenledger/internal/services/ledger"
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountOpenCmd, accountBalanceCmd, accountHistoryCmd, accountReconcileCmd)

	accountOpenCmd.Flags().String("role", "", "User role, decides the signup bonus")
	accountHistoryCmd.Flags().String("type", "", "Entry type: EARNED, SPENT, PURCHASED or REFUNDED")
	accountHistoryCmd.Flags().String("source", "", "Source action, e.g. VOTE")
	accountHistoryCmd.Flags().Int("page", 1, "Page number")
	accountHistoryCmd.Flags().Int("limit", 20, "Entries per page (max 100)")
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Inspect one user's token account",
}

var accountOpenCmd = &cobra.Command{
	Use:   "open USER_ID",
	Short: "Open an account and credit its signup bonus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")

		res, err := deps.ledger.OpenAccount(cmd.Context(), args[0], role)
		if err != nil {
			return err
		}

		if !res.Created {
			fmt.Fprintf(cmd.OutOrStdout(), "account %s already exists, balance %d\n", args[0], res.Balance)
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "opened %s with %d bonus tokens\n", args[0], res.Bonus)

		return nil
	},
}

var accountBalanceCmd = &cobra.Command{
	Use:   "balance USER_ID",
	Short: "Print the current balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bal, err := deps.ledger.GetBalance(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), bal)

		return nil
	},
}

var accountHistoryCmd = &cobra.Command{
	Use:   "history USER_ID",
	Short: "List ledger entries, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("type")
		source, _ := cmd.Flags().GetString("source")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		hist, err := deps.ledger.GetHistory(cmd.Context(), args[0], ledger.HistoryQuery{
			Kind:   ledgerrepo.Kind(strings.ToUpper(kind)),
			Source: strings.ToUpper(source),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CREATED\tTYPE\tSOURCE\tAMOUNT\tBALANCE\tDESCRIPTION")

		for _, e := range hist.Entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%+d\t%d\t%s\n",
				e.CreatedAt.Format(time.DateTime), e.Kind, e.SourceAction, e.Amount, e.BalanceAfter, e.Description)
		}

		_ = tw.Flush()

		fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d entries)\n", hist.Page, hist.Pages, hist.Total)

		return nil
	},
}

var accountReconcileCmd = &cobra.Command{
	Use:   "reconcile USER_ID",
	Short: "Check the balance against the sum of ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := deps.ledger.Reconcile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "balance:    %d\nledger sum: %d\n", rec.Balance, rec.LedgerSum)

		if !rec.Consistent {
			return fmt.Errorf("account %s: balance and ledger disagree", args[0])
		}

		return nil
	},
}
