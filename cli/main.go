package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/plan"
	"github.com/aledsdavies/pdftl/runtime/argfile"
	"github.com/aledsdavies/pdftl/runtime/compat"
	"github.com/aledsdavies/pdftl/runtime/executor"
	"github.com/aledsdavies/pdftl/runtime/parser"
	"github.com/aledsdavies/pdftl/runtime/pdfengine"
	"github.com/aledsdavies/pdftl/runtime/resolver"
	"github.com/aledsdavies/pdftl/runtime/streamscrub"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "v0.1.0"

// flags are the pdftl options that come before the pdftk arguments.
type flags struct {
	verbose    bool
	debug      bool
	quiet      bool
	noColor    bool
	strict     bool
	dryRun     bool
	compass    string
	planFormat string
}

// app holds everything run reads from the process, so tests can replace it.
type app struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	workDir string

	newEngine func(logger *slog.Logger) engine.Engine
	prompt    func(label string) (string, error) // nil when there is no terminal
	readFile  func(path string) ([]byte, error)
	useColor  func(noColor bool) bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	wd, _ := os.Getwd()
	a := &app{
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		workDir: wd,
		newEngine: func(logger *slog.Logger) engine.Engine {
			return pdfengine.New(pdfengine.Options{Logger: logger})
		},
		prompt:   terminalPrompt(os.Stdin, os.Stderr),
		readFile: os.ReadFile,
		useColor: ShouldUseColor,
	}
	code := a.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	var f flags
	code := errors.ExitSuccess

	rootCmd := &cobra.Command{
		Use:   "pdftl [flags] <inputs> [input_pw <passwords>] [<operation> <operands>] output <target> [<options>]",
		Short: "Transform PDF documents with the pdftk command language",
		Long: `pdftl reads the pdftk command language: handles bound to input files,
one operation with its page ranges or data file, an output target and
output options. Arguments of the form @file.json or @file.yaml are
expanded from an argument file first.`,
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code = a.invoke(cmd.Context(), args, f)
			return nil
		},
	}
	// pdftk arguments follow the flags untouched.
	rootCmd.Flags().SetInterspersed(false)
	rootCmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log progress to stderr")
	rootCmd.Flags().BoolVar(&f.debug, "debug", false, "Log debug detail and timings to stderr")
	rootCmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not print compatibility warnings")
	rootCmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	rootCmd.Flags().BoolVar(&f.strict, "strict", false, "Fail instead of degrading when pdftk behavior cannot be reproduced")
	rootCmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print the parsed plan and its digest without opening documents")
	rootCmd.Flags().StringVar(&f.compass, "compass", "relative", "How north/east/south/west combine with page rotation: relative or pdftk")
	rootCmd.Flags().StringVar(&f.planFormat, "plan-format", "text", "Format of --dry-run output: text or cbor")

	if args == nil {
		// cobra falls back to os.Args on a nil slice.
		args = []string{}
	}
	rootCmd.SetArgs(args)
	rootCmd.SetIn(a.stdin)
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		FormatError(a.stderr, errors.Grammar("%v", err).WithHint("Run pdftl --help for usage"), a.useColor(f.noColor))
		return errors.ExitGrammar
	}
	return code
}

// invoke runs the pdftk arguments after flag parsing. Everything it
// writes to stderr passes through a scrubber holding the plan's passwords.
func (a *app) invoke(ctx context.Context, args []string, f flags) int {
	useColor := a.useColor(f.noColor)
	scrub := streamscrub.New(a.stderr)
	defer func() { _ = scrub.Close() }()
	fail := func(err error) int {
		FormatError(scrub, err, useColor)
		return errors.ExitCode(err)
	}

	compass, err := resolver.ParseCompassMode(f.compass)
	if err != nil {
		return fail(errors.Grammar("%v", err))
	}
	if f.planFormat != "text" && f.planFormat != "cbor" {
		return fail(errors.Grammar("unknown plan format %q (want text or cbor)", f.planFormat))
	}

	args, err = argfile.Expand(args, a.readArgFile, argfile.Options{Version: version})
	if err != nil {
		return fail(err)
	}

	// Parser logs are held until the passwords are known.
	var parseLog bytes.Buffer
	parseOpts := []parser.ParserOpt{parser.WithLogger(newLogger(&parseLog, f))}
	if f.debug {
		parseOpts = append(parseOpts, parser.WithDebugDetailed(), parser.WithTelemetryTiming())
	}
	// The raw arguments are scanned first: a failed parse has no plan but
	// its debug log still holds every token.
	registerArgPasswords(scrub, args)
	parsed, err := parser.Parse(args, parseOpts...)
	if parsed != nil {
		registerPasswords(scrub, parsed.Plan)
	}
	_, _ = parseLog.WriteTo(scrub)
	if err != nil {
		return fail(err)
	}

	logger := newLogger(scrub, f)
	if parsed.Telemetry != nil {
		logger.Debug("parsed", "tokens", parsed.Telemetry.TokenCount, "inputs", parsed.Telemetry.InputCount,
			"ranges", parsed.Telemetry.RangeCount, "duration", parsed.Telemetry.TotalTime)
	}

	if f.dryRun {
		if err := DisplayDryRun(a.stdout, parsed.Plan, f.planFormat, useColor); err != nil {
			return fail(errors.Internal(err, "rendering plan"))
		}
		return errors.ExitSuccess
	}

	config := executor.Config{
		Engine:  a.newEngine(logger),
		WorkDir: a.workDir,
		Stdin:   a.stdin,
		Stdout:  a.stdout,
		Stderr:  scrub,
		Prompt:  scrubbedPrompt(a.prompt, scrub),
		Compass: compass,
		Logger:  logger,
	}
	if f.strict {
		config.Compat = compat.Strict
	}
	if f.debug {
		config.Debug = executor.DebugDetailed
		config.Telemetry = executor.TelemetryTiming
	}

	result, err := executor.Execute(ctx, parsed.Plan, config)
	if !f.quiet {
		for _, w := range result.Warnings {
			_, _ = fmt.Fprintln(scrub, Colorize(w, ColorYellow, useColor))
		}
	}
	if t := result.Telemetry; t != nil {
		logger.Debug("executed", "documents", t.DocumentsOpened, "pages", t.PagesResolved,
			"outputs", t.OutputsWritten, "duration", result.Duration)
		for _, p := range t.PhaseTimings {
			logger.Debug("phase", "name", p.Phase, "duration", p.Duration)
		}
	}
	for _, ev := range result.DebugEvents {
		logger.Debug(ev.Event, "context", ev.Context)
	}
	if err != nil {
		return fail(err)
	}
	return result.ExitCode
}

// registerPasswords hands every literal password in p to the scrubber.
func registerPasswords(scrub *streamscrub.Scrubber, p *plan.Plan) {
	if p == nil {
		return
	}
	pws := []string{p.Options.OwnerPassword, p.Options.UserPassword}
	for _, b := range p.Inputs {
		pws = append(pws, b.Password)
	}
	for _, pw := range pws {
		if pw != plan.PromptPassword {
			scrub.RegisterPassword(pw)
		}
	}
}

// registerArgPasswords registers the arguments that follow owner_pw and
// user_pw, and those after input_pw up to the operator or output keyword.
// A LABEL=password pair registers the password alone as well.
func registerArgPasswords(scrub *streamscrub.Scrubber, args []string) {
	register := func(pw string) {
		if pw != plan.PromptPassword {
			scrub.RegisterPassword(pw)
		}
	}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "owner_pw", "user_pw":
			if i+1 < len(args) {
				i++
				register(args[i])
			}
		case "input_pw":
			for i+1 < len(args) {
				next := args[i+1]
				if _, ok := plan.LookupOperator(next); ok || next == "output" {
					break
				}
				i++
				register(next)
				if _, pw, ok := strings.Cut(next, "="); ok {
					register(pw)
				}
			}
		}
	}
}

// scrubbedPrompt flushes pending stderr before asking and registers every
// password answer. Yes/no questions are not secrets.
func scrubbedPrompt(prompt func(string) (string, error), scrub *streamscrub.Scrubber) func(string) (string, error) {
	if prompt == nil {
		return nil
	}
	return func(label string) (string, error) {
		_ = scrub.Flush()
		answer, err := prompt(label)
		if err == nil && !strings.HasSuffix(label, "(y/n)") {
			scrub.RegisterPassword(answer)
		}
		return answer, err
	}
}

// readArgFile reads an argument file relative to the working directory.
func (a *app) readArgFile(path string) ([]byte, error) {
	if !filepath.IsAbs(path) && a.workDir != "" {
		path = filepath.Join(a.workDir, path)
	}
	return a.readFile(path)
}

// newLogger logs to w without time or level keys. Warnings and errors are
// reported separately, so the default level only lets errors through.
func newLogger(w io.Writer, f flags) *slog.Logger {
	level := slog.LevelError
	switch {
	case f.debug:
		level = slog.LevelDebug
	case f.verbose:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey) {
				return slog.Attr{}
			}
			return a
		},
	}))
}
