package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridmarket/config"
	"github.com/kilianp07/gridmarket/core/clearinglog"
	"github.com/kilianp07/gridmarket/core/model"
)

var (
	histFrom      string
	histTo        string
	histCommodity string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print cleared intervals from the clearing log",
	RunE:  history,
}

func init() {
	historyCmd.Flags().StringVar(&histFrom, "from", "", "RFC 3339 start of the range")
	historyCmd.Flags().StringVar(&histTo, "to", "", "RFC 3339 end of the range")
	historyCmd.Flags().StringVar(&histCommodity, "commodity", "", "only intervals clearing this commodity")
	rootCmd.AddCommand(historyCmd)
}

func history(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	q, err := parseQuery(histFrom, histTo, histCommodity)
	if err != nil {
		return err
	}
	return printHistory(cmd, cfg.ClearingLog, q, cmd.OutOrStdout())
}

func parseQuery(from, to, commodity string) (clearinglog.Query, error) {
	var q clearinglog.Query
	var err error
	if from != "" {
		if q.Start, err = time.Parse(time.RFC3339, from); err != nil {
			return q, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if q.End, err = time.Parse(time.RFC3339, to); err != nil {
			return q, fmt.Errorf("--to: %w", err)
		}
	}
	if commodity != "" {
		if q.Commodity, err = model.ParseCommodity(commodity); err != nil {
			return q, err
		}
	}
	return q, nil
}

func printHistory(cmd *cobra.Command, cfg clearinglog.Config, q clearinglog.Query, out io.Writer) error {
	if cfg.Backend == "none" {
		return fmt.Errorf("clearing_log: no backend configured")
	}
	store, err := clearinglog.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	recs, err := store.Query(contextOf(cmd), q)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "START\tCOMMODITY\tPRICE\tDEMAND_W\tDURATION_MS")
	for _, r := range recs {
		for _, c := range r.Result.Commodities() {
			if q.Commodity != "" && c != q.Commodity {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%.1f\t%.3f\n",
				r.Timestamp.Format(time.RFC3339), c, r.Result.Prices[c], r.Result.Demand[c], r.DurationMS)
		}
	}
	return w.Flush()
}
