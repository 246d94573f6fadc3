package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/secretlynx/internal/orchestration"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <url>",
		Short: "Scan a website for exposed secrets and misconfigurations",
		Long: `Fetch a page and its scripts and stylesheets, search them for exposed
credentials, run the active security probes and ask the recommendation
model for a remediation plan.`,
		Args: cobra.ExactArgs(1),
		RunE: runScan,
	}

	cmd.Flags().Bool("no-probes", false, "Skip the active security probes")
	cmd.Flags().DurationP("timeout", "t", 10*time.Minute, "Overall scan timeout")
	cmd.Flags().StringSliceP("formats", "f", nil, "Report formats to write (json, yaml, txt)")
	cmd.Flags().StringP("output", "o", "", "Report output directory")
	cmd.Flags().String("user-id", "", "Owner recorded on the scan")
	cmd.Flags().Bool("insecure", false, "Skip TLS certificate verification")

	_ = viper.BindPFlag("scan.timeout", cmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("scan.output", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("scan.insecure", cmd.Flags().Lookup("insecure"))
	_ = viper.BindPFlag("scan.formats", cmd.Flags().Lookup("formats"))
	_ = viper.BindPFlag("scan.no_probes", cmd.Flags().Lookup("no-probes"))
	_ = viper.BindPFlag("scan.user_id", cmd.Flags().Lookup("user-id"))

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	if viper.GetBool("scan.no_probes") {
		viper.Set("scanner.active_probes", false)
	}
	if viper.GetBool("scan.insecure") {
		viper.Set("http.insecure_tls", true)
	}
	if cmd.Flags().Changed("timeout") {
		viper.Set("scanner.scan_timeout", viper.GetDuration("scan.timeout"))
	}
	if out := viper.GetString("scan.output"); out != "" {
		viper.Set("reports.output_dir", out)
	}

	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scan, err := rt.scanner.StartScan(ctx, models.ScanRequest{
		URL:    args[0],
		UserID: viper.GetString("scan.user_id"),
	})
	if err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}
	logrus.Infof("Scan started with ID: %s", scan.ID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logrus.Info("Received interrupt signal, cancelling scan...")
			if err := rt.scanner.CancelScan(scan.ID); err != nil && !errors.Is(err, orchestration.ErrScanNotActive) {
				logrus.WithError(err).Warn("Failed to cancel scan")
			}
		case <-ctx.Done():
		}
	}()

	result, err := monitorScan(ctx, rt.scanner, scan.ID)
	if err != nil {
		return err
	}
	displaySummary(result)

	if result.Status == models.StatusFailed {
		return fmt.Errorf("scan failed: %s", result.Error)
	}
	return writeReports(rt, result, viper.GetStringSlice("scan.formats"))
}

func monitorScan(ctx context.Context, scanner *orchestration.Scanner, scanID string) (*models.ScanResult, error) {
	done := make(chan struct{})
	var (
		result  *models.ScanResult
		waitErr error
	)
	go func() {
		defer close(done)
		result, waitErr = scanner.Wait(ctx, scanID)
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			if p, err := scanner.GetProgress(ctx, scanID); err == nil {
				displayProgress(p)
			}
			if !viper.GetBool("quiet") {
				fmt.Println()
			}
			if waitErr != nil {
				return nil, fmt.Errorf("failed to get scan results: %w", waitErr)
			}
			return result, nil
		case <-ticker.C:
			if p, err := scanner.GetProgress(ctx, scanID); err == nil {
				displayProgress(p)
			}
		}
	}
}

func displayProgress(p *models.ProgressEvent) {
	if viper.GetBool("quiet") {
		return
	}
	const barWidth = 50
	completed := p.Progress * barWidth / 100
	if completed > barWidth {
		completed = barWidth
	}
	fmt.Printf("\r[%s%s] %3d%% %-40s",
		strings.Repeat("=", completed),
		strings.Repeat(" ", barWidth-completed),
		p.Progress,
		p.Message,
	)
}

func displaySummary(r *models.ScanResult) {
	score := "n/a"
	if r.SecurityScore != nil {
		score = fmt.Sprintf("%d/100", *r.SecurityScore)
	}
	failedTests := 0
	for _, t := range r.SecurityTests {
		if t.Failed() {
			failedTests++
		}
	}

	fmt.Printf(`
Scan Summary:
═══════════════════════════════════════════════════════════════
Target:            %s
Scan ID:           %s
Status:            %s
Checks:            %d/%d
Secret Findings:   %d (Critical: %d, High: %d, Medium: %d, Low: %d)
Security Tests:    %d run, %d failed
Security Score:    %s
Scan Duration:     %s
═══════════════════════════════════════════════════════════════
`,
		r.URL,
		r.ID,
		r.Status,
		r.CompletedChecks, r.TotalChecks,
		r.Summary.Total, r.Summary.Critical, r.Summary.High, r.Summary.Medium, r.Summary.Low,
		len(r.SecurityTests), failedTests,
		score,
		utils.HumanizeDuration(r.Duration()),
	)

	if r.Error != "" {
		fmt.Printf("Error: %s\n", r.Error)
	}
	for i, f := range r.Findings {
		if i == 10 {
			fmt.Printf("  ... and %d more (see the report)\n", len(r.Findings)-10)
			break
		}
		fmt.Printf("  [%s] %s in %s (line %d): %s\n",
			strings.ToUpper(string(f.Severity)), f.KeyType, f.Location, f.LineNumber, f.Value)
	}
}

func writeReports(rt *appRuntime, result *models.ScanResult, formats []string) error {
	if len(formats) == 0 {
		return nil
	}
	gen, err := rt.reportGenerator()
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}
	report := gen.GenerateReport(result, ToolVersion)
	for _, format := range formats {
		path, err := gen.ExportReport(report, strings.TrimSpace(format))
		if err != nil {
			return fmt.Errorf("failed to write %s report: %w", format, err)
		}
		logrus.Infof("Generated %s report: %s", format, path)
	}
	return nil
}
