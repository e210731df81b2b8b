package popsuitecli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/phillip-england/popsuite/internal/clientapp"
	"github.com/phillip-england/popsuite/internal/envutil"
	"github.com/phillip-england/popsuite/internal/management"
)

func (a *app) setupCommand() *cobra.Command {
	var (
		addr  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a .env file for the client",
		Args:  usageArgs(0, "popsuite setup [--addr :3000] [--api-base-url URL] [--force]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			values := map[string]string{
				"POPSUITE_ADDR":          addr,
				"POPSUITE_API_BASE_URL":  a.v.GetString("api_base_url"),
				"POPSUITE_FETCH_TIMEOUT": a.v.GetDuration("fetch_timeout").String(),
				"POPSUITE_LOG_LEVEL":     a.v.GetString("log_level"),
			}
			if err := envutil.WriteDotEnv(a.envFile, values, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", a.envFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":3000", "client listen address")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing env file")
	return cmd
}

func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "run client",
		Short:     "Serve the data entry and admin pages",
		ValidArgs: []string{"client"},
		Args:      usageArgs(1, "popsuite run client"),
		RunE: func(_ *cobra.Command, args []string) error {
			if args[0] != "client" {
				return fmt.Errorf("%w: unknown run target %q", ErrUsage, args[0])
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := clientapp.Run(ctx, a.clientConfig()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func (a *app) exportCommand() *cobra.Command {
	var (
		category string
		model    string
		out      string
		session  string
	)
	cmd := &cobra.Command{
		Use:   "export <type>",
		Short: "Export a management table to .xlsx",
		Args:  usageArgs(1, "popsuite export categories|models|display_types|pop_materials [--category C] [--model M] [--out file.xlsx]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := management.ParseDataType(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUsage, err)
			}
			if t.NeedsCategory() && category == "" {
				return fmt.Errorf("%w: --category is required for %s", ErrUsage, t)
			}
			if category != "" && !t.NeedsCategory() {
				return fmt.Errorf("%w: %s has no category filter", ErrUsage, t)
			}
			if model != "" && t != management.PopMaterials {
				return fmt.Errorf("%w: --model only applies to pop_materials", ErrUsage)
			}

			ctx := cmd.Context()
			sync := management.NewSynchronizer(a.backendClient(session), a.log)
			table, err := sync.SetCategoryFilter(ctx, t, category)
			if err != nil {
				return err
			}
			if model != "" {
				if table, err = sync.SetModelFilter(ctx, t, model); err != nil {
					return err
				}
			}

			if out == "" {
				out = fmt.Sprintf("%s_%s.xlsx", t, time.Now().Format("20060102_150405"))
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := management.ExportXLSX(f, table); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d %s rows to %s\n", len(table.Rows), t, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	cmd.Flags().StringVar(&model, "model", "", "model filter (pop_materials only)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.Flags().StringVar(&session, "session", "", "backend session cookie value")
	return cmd
}

func (a *app) importCommand() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "import <type> <file>",
		Short: "Add every row of a spreadsheet to a management table",
		Args:  usageArgs(2, "popsuite import categories|models|display_types|pop_materials <file.xlsx|file.xls>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := management.ParseDataType(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUsage, err)
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			rows, err := management.ReadRows(f, filepath.Base(args[1]))
			f.Close()
			if err != nil {
				return err
			}

			sync := management.NewSynchronizer(a.backendClient(session), a.log)
			report, err := sync.Import(cmd.Context(), t, rows)
			w := cmd.OutOrStdout()
			for _, row := range report.Rows {
				status := "ok"
				if !row.OK {
					status = "failed"
				}
				fmt.Fprintf(w, "line %d\t%s\t%s\t%s\n", row.Line, status, row.Name, strings.TrimSpace(row.Message))
			}
			fmt.Fprintf(w, "added %d, failed %d\n", report.Added, report.Failed)
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d rows failed", report.Failed, len(report.Rows))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "backend session cookie value")
	return cmd
}
