package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/secretlynx/internal/storage"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <scan-id>",
		Short: "Render and manage stored scan results",
		Long: `Render a stored scan as a json, yaml or txt report. The report is
printed to stdout unless --save is given. The list and delete subcommands
manage the stored scans.`,
		Args: cobra.ExactArgs(1),
		RunE: runReportShow,
	}
	cmd.Flags().StringP("format", "f", "", "Report format (json, yaml, txt)")
	cmd.Flags().Bool("save", false, "Write the report file instead of printing it")
	cmd.Flags().StringP("output", "o", "", "Report output directory")
	_ = viper.BindPFlag("report.format", cmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("report.save", cmd.Flags().Lookup("save"))
	_ = viper.BindPFlag("report.output", cmd.Flags().Lookup("output"))

	cmd.AddCommand(newReportListCommand())
	cmd.AddCommand(newReportDeleteCommand())
	return cmd
}

func newReportListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored scans",
		RunE:  runReportList,
	}
	cmd.Flags().String("status", "", "Only list scans with this status (scanning, completed, failed)")
	_ = viper.BindPFlag("report.status", cmd.Flags().Lookup("status"))
	return cmd
}

func newReportDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <scan-id>",
		Short: "Delete a stored scan",
		Args:  cobra.ExactArgs(1),
		RunE:  runReportDelete,
	}
}

func runReportShow(cmd *cobra.Command, args []string) error {
	if out := viper.GetString("report.output"); out != "" {
		viper.Set("reports.output_dir", out)
	}
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.repo.GetScanResult(context.Background(), args[0])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no stored scan with id %s", args[0])
		}
		return fmt.Errorf("failed to load scan: %w", err)
	}

	gen, err := rt.reportGenerator()
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}
	format := viper.GetString("report.format")
	if format == "" {
		format = rt.cfg.Reports.DefaultFormat
	}
	report := gen.GenerateReport(result, ToolVersion)

	if viper.GetBool("report.save") {
		path, err := gen.ExportReport(report, format)
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		logrus.Infof("Generated %s report: %s", format, path)
		return nil
	}

	out, err := gen.Render(report, format)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runReportList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	var results []*models.ScanResult
	if status := strings.TrimSpace(viper.GetString("report.status")); status != "" {
		results, err = rt.repo.FindByStatus(ctx, models.ScanStatus(strings.ToLower(status)))
	} else {
		results, err = rt.repo.List(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list scans: %w", err)
	}
	if len(results) == 0 {
		logrus.Info("No stored scans found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCAN ID\tSTATUS\tFINDINGS\tSCORE\tSTARTED\tTARGET")
	for _, r := range results {
		score := "-"
		if r.SecurityScore != nil {
			score = fmt.Sprintf("%d", *r.SecurityScore)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Summary.Total, score,
			r.StartTime.Local().Format("2006-01-02 15:04"),
			utils.TruncateString(r.URL, 60))
	}
	return w.Flush()
}

func runReportDelete(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.repo.Delete(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to delete scan %s: %w", args[0], err)
	}
	logrus.Infof("Deleted scan %s", args[0])
	return nil
}
