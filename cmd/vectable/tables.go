package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/vectable"
	"github.com/helixml/vectable/domain/search"
	"github.com/helixml/vectable/internal/log"
)

func tablesCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect and manage stored tables",
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	withConn := func(fn func(ctx context.Context, conn *vectable.Connection, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			conn, err := connect(cfg, log.NewLogger(cfg).Slog())
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()
			return fn(cmd.Context(), conn, cmd.OutOrStdout(), args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List table names",
		Args:  cobra.NoArgs,
		RunE:  withConn(listTables),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show a table's schema and embedding definitions",
		Args:  cobra.ExactArgs(1),
		RunE:  withConn(showTable),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "drop <name>",
		Short: "Delete a table and its data",
		Args:  cobra.ExactArgs(1),
		RunE:  withConn(dropTable),
	})

	var (
		column string
		limit  int
		metric string
	)
	searchCmd := &cobra.Command{
		Use:   "search <name> <query>",
		Short: "Run a nearest-neighbour text query and print the rows as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: withConn(func(ctx context.Context, conn *vectable.Connection, out io.Writer, args []string) error {
			m, err := search.ParseMetric(metric)
			if err != nil {
				return err
			}
			return searchTable(ctx, conn, out, args[0], args[1], column, limit, m)
		}),
	}
	searchCmd.Flags().StringVar(&column, "column", "", "Vector column to search (default: first embedding destination)")
	searchCmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of rows (default: SEARCH_LIMIT)")
	searchCmd.Flags().StringVar(&metric, "metric", string(search.MetricCosine), "Distance metric: cosine, l2, dot")
	cmd.AddCommand(searchCmd)

	return cmd
}

func listTables(ctx context.Context, conn *vectable.Connection, out io.Writer, _ []string) error {
	names, err := conn.TableNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func showTable(ctx context.Context, conn *vectable.Connection, out io.Writer, args []string) error {
	t, err := conn.OpenTable(ctx, args[0])
	if err != nil {
		return err
	}
	meta, err := t.Metadata(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "table:   %s\n", meta.Name())
	fmt.Fprintf(out, "version: %d\n", meta.Version())
	fmt.Fprintf(out, "rows:    %d\n", meta.RowCount())
	fmt.Fprintf(out, "updated: %s\n\n", meta.UpdatedAt().UTC().Format(time.RFC3339))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tNULLABLE")
	for _, f := range meta.Schema().Fields() {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", f.Name, f.Type, f.Nullable)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	defs := meta.Definitions()
	if len(defs) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tFUNCTION\tDEST")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.SourceColumn(), d.Name(), d.DestColumn())
	}
	return tw.Flush()
}

func dropTable(ctx context.Context, conn *vectable.Connection, out io.Writer, args []string) error {
	if err := conn.DropTable(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(out, "dropped %s\n", args[0])
	return nil
}

func searchTable(ctx context.Context, conn *vectable.Connection, out io.Writer, name, query, column string, limit int, metric search.Metric) error {
	t, err := conn.OpenTable(ctx, name)
	if err != nil {
		return err
	}
	result, err := t.Search(query).Column(column).Limit(limit).Metric(metric).Execute(ctx)
	if err != nil {
		return err
	}
	defer result.Release()

	rows, err := result.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = fmt.Fprintln(out, string(rows))
	return err
}
