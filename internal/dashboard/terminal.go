package dashboard

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
)

// RenderTerminal writes a one-shot table of the freshest books and the
// best recent opportunities, for operators running the dashboard in a
// terminal instead of scraping the API.
func RenderTerminal(ctx context.Context, reader Reader, out io.Writer) error {
	pairs, err := reader.ListActivePairs(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "PAIR\tVENUE\tBID\tASK\tAGE")
	now := time.Now()
	for _, pair := range pairs {
		quotes, err := reader.LatestPerExchange(ctx, pair.Symbol, now.Add(-5*time.Minute))
		if err != nil {
			return err
		}
		for _, q := range quotes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				q.Symbol, q.Exchange, q.Bid.String(), q.Ask.String(),
				now.Sub(q.Timestamp).Round(time.Second))
		}
	}

	opps, err := reader.RecentOpportunities(ctx, now.Add(-time.Hour), 10)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "\nROUTE\tSPREAD%\tPROFIT%\tVOLUME\tSTATUS")
	for _, o := range opps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			o.Route(), o.PriceDiffPct.StringFixed(3), o.ProfitPct.StringFixed(3),
			o.MaxVolume.String(), o.Status)
	}
	return nil
}

// IsTerminal reports whether stdout is a TTY; callers pick the terminal
// view or the HTTP server accordingly.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
