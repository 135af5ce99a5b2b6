package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/verity/internal/audit"
	"github.com/MikeSquared-Agency/verity/internal/config"
	"github.com/MikeSquared-Agency/verity/internal/hermes"
	"github.com/MikeSquared-Agency/verity/internal/ledger"
	"github.com/MikeSquared-Agency/verity/internal/store"
)

var topLimit int

var keyCmd = &cobra.Command{
	Use:   "key <slug>",
	Short: "Print the entity key for a model slug",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), ledger.EntityKeyFromSlug(args[0]))
		return nil
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <slug>",
	Short: "Show the projected trust record of a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		key, err := ledger.ParseEntityKey(args[0])
		if err != nil {
			key = ledger.EntityKeyFromSlug(args[0])
		}
		rec, err := db.GetTrust(cmd.Context(), key)
		if errors.Is(err, store.ErrNoTrustRecord) {
			return fmt.Errorf("no ratings recorded for %s (%s)", args[0], key)
		}
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd, rec)
		}
		printTrust(cmd, []store.TrustRecord{*rec})
		return nil
	},
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "List the most trusted models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		recs, err := db.TopTrust(cmd.Context(), topLimit)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd, recs)
		}
		printTrust(cmd, recs)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Replay the journal and verify the trust projection",
	Long: "Rebuilds the ledger from ledger_journal with the parameters in the " +
		"environment, then compares every entity against model_trust.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.LoadJournal(ctx)
		if err != nil {
			return err
		}
		rep, err := audit.Run(ctx, config.Load().LedgerParams(), entries, db)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		if outputJSON {
			if err := printJSON(cmd, rep); err != nil {
				return err
			}
		} else {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "entries:   %d\n", rep.Entries)
			fmt.Fprintf(out, "entities:  %d\n", rep.Entities)
			fmt.Fprintf(out, "paused:    %t\n", rep.Paused)
			fmt.Fprintf(out, "max stake: %d\n", rep.MaxStake)
			for _, m := range rep.Mismatches {
				fmt.Fprintf(out, "MISMATCH %s %s: ledger=%d projection=%d\n", m.Entity, m.Field, m.Ledger, m.Projection)
			}
			for _, key := range rep.Missing {
				fmt.Fprintf(out, "MISSING  %s\n", key)
			}
		}
		if !rep.OK() {
			return fmt.Errorf("projection diverges from journal: %d mismatches, %d missing", len(rep.Mismatches), len(rep.Missing))
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream ledger events from NATS",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := hermes.NewClient(ctx, natsURL, natsToken, slog.Default())
		if err != nil {
			return err
		}
		defer client.Close()

		out := cmd.OutOrStdout()
		err = client.Subscribe(hermes.SubjectAll, func(subject string, data []byte) {
			kind, ok := hermes.KindFromSubject(subject)
			if !ok {
				return
			}
			if outputJSON {
				fmt.Fprintln(out, string(data))
				return
			}
			var ev ledger.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				slog.Warn("undecodable event", "subject", subject, "error", err)
				return
			}
			line := fmt.Sprintf("%s %-26s caller=%s", ev.Timestamp.Format("15:04:05"), kind, ev.Caller)
			if ev.Entity != nil {
				line += " entity=" + ev.Entity.String()
			}
			if ev.Index != nil {
				line += fmt.Sprintf(" index=%d", *ev.Index)
			}
			if ev.TrustScore != nil {
				line += fmt.Sprintf(" trust=%d", *ev.TrustScore)
			}
			fmt.Fprintln(out, line)
		})
		if err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}

func init() {
	topCmd.Flags().IntVar(&topLimit, "limit", 20, "number of models to list")
}

func openStore(ctx context.Context) (*store.Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return store.New(ctx, databaseURL)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTrust(cmd *cobra.Command, recs []store.TrustRecord) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tSCORE\tACTIVE\tTOTAL\tSTAKED\tLAST OP\tUPDATED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.Entity, r.TrustScore, r.ActiveRatings, r.TotalRatings, r.TotalStaked, r.LastOp, r.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}
