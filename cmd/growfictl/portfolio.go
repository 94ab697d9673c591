package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/growfi/growfi-server/internal/model"
	"github.com/growfi/growfi-server/internal/portfolio"
	"github.com/growfi/growfi-server/internal/repository"
)

func newPortfolioCmd() *cobra.Command {
	var (
		userID uint64
		holder string
		xlsx   string
	)
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Summarize the plots owned by a user or wallet",
		Long: `Summarize owned plots with their growth stage.  Select the owner with
--user (account id) or --holder (wallet address).  --xlsx additionally writes
the summary to a spreadsheet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == 0) == (holder == "") {
				return errors.New("exactly one of --user or --holder is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, dialect, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := repository.NewOwnershipRepo(db, dialect)
			var records []model.OwnershipRecord
			if userID != 0 {
				records, err = repo.ListByUser(cmd.Context(), userID)
			} else {
				records, err = repo.ListByHolder(cmd.Context(), holder)
			}
			if err != nil {
				return err
			}
			sum := portfolio.Summarize(records, time.Now())

			if xlsx != "" {
				if err := exportXLSX(xlsx, sum); err != nil {
					return fmt.Errorf("export %s: %w", xlsx, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", xlsx)
			}
			if wantJSON() {
				return printJSON(cmd.OutOrStdout(), sum)
			}
			return printSummary(cmd, sum)
		},
	}
	cmd.Flags().Uint64Var(&userID, "user", 0, "account id")
	cmd.Flags().StringVar(&holder, "holder", "", "wallet address")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "also export to this .xlsx file")
	return cmd
}

func printSummary(cmd *cobra.Command, sum portfolio.Summary) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%d plots, %s XRP invested, %s kg estimated yield\n\n",
		sum.TotalPlots, ftoa(sum.TotalInvestedXRP), ftoa(sum.EstimatedYieldKg))
	if sum.TotalPlots == 0 {
		return nil
	}
	rows := make([][]string, 0, len(sum.Holdings))
	for _, h := range sum.Holdings {
		rows = append(rows, []string{
			h.FarmName, h.PlotID, h.Crop, ftoa(h.PricePaidXRP), ftoa(h.EstimatedYieldKg),
			string(h.Stage), ftoa(h.Progress) + "%", h.PurchasedAt.Format("2006-01-02"), simulatedMark(h.Simulated),
		})
	}
	return printTable(w, []string{"FARM", "PLOT", "CROP", "XRP", "KG", "STAGE", "PROGRESS", "PURCHASED", "MODE"}, rows)
}

func simulatedMark(sim bool) string {
	if sim {
		return "simulated"
	}
	return "live"
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }
