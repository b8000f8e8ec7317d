// Package cmd implements the slab command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/FeiyouG/skill-lab-sub000/config"
	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/report"
)

// Version is set at build time.
var Version = "dev"

// ErrThresholdExceeded is returned when a result reaches the --fail-on level.
var ErrThresholdExceeded = errors.New("risk level threshold exceeded")

var (
	cfgFile      string
	verbose      bool
	outputFormat string
	outputFile   string
	minSeverity  string
	categories   []string
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "slab",
	Short: "Static security analysis for agent skill packages",
	Long: `slab inspects a skill package (a SKILL.md manifest plus the scripts and
documents it references) and reports the permissions it would exercise,
the risks those permissions carry, and an overall risk level.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging on stderr")
	pf.StringVarP(&outputFormat, "format", "f", "text", "output format: text, json or sarif")
	pf.StringVarP(&outputFile, "output", "o", "", "write output to a file instead of stdout")
	pf.StringVar(&minSeverity, "min-severity", "", "only report risks at or above: info, warning or critical")
	pf.StringSliceVar(&categories, "category", nil, "only report risks in these categories (e.g. NETWORK,SECRETS)")
	pf.BoolVar(&noColor, "no-color", false, "disable styled text output")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command until it completes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrThresholdExceeded):
		return 2
	default:
		return 1
	}
}

func newLogger() (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return log, nil
}

func loadConfig(log *zap.Logger) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	for _, w := range config.Validate(cfg).Warnings {
		log.Warn("config", zap.String("warning", w))
	}
	return cfg, nil
}

func parseLevel(s string) (contract.RiskLevel, error) {
	if s == "" {
		return "", nil
	}
	l := contract.RiskLevel(strings.ToLower(s))
	if l.Rank() < 0 {
		return "", fmt.Errorf("unknown risk level %q (want one of %v)", s, contract.RiskLevels)
	}
	return l, nil
}

func riskFilter() (contract.RiskFilter, error) {
	f := contract.RiskFilter{Categories: categories}
	if minSeverity == "" {
		return f, nil
	}
	sev := contract.Severity(strings.ToLower(minSeverity))
	valid := []contract.Severity{contract.SeverityInfo, contract.SeverityWarning, contract.SeverityCritical}
	if !slices.Contains(valid, sev) {
		return f, fmt.Errorf("unknown severity %q (want info, warning or critical)", minSeverity)
	}
	f.MinSeverity = sev
	return f, nil
}

// openWriter resolves the output stream and renderer. The returned close
// function must be called once rendering is done.
func openWriter(cmd *cobra.Command) (*report.Writer, func() error, error) {
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return nil, nil, err
	}
	filter, err := riskFilter()
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = cmd.OutOrStdout()
	closeFn := func() error { return nil }
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return nil, nil, fmt.Errorf("creating output file: %w", err)
		}
		out = f
		closeFn = f.Close
	}

	opts := report.Options{
		Color:       format == report.FormatText && !noColor && isTerminal(out),
		Filter:      filter,
		ToolVersion: Version,
	}
	return report.New(out, format, opts), closeFn, nil
}

func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
