package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/sloppy/infrared/internal/config"
	"github.com/sloppy/infrared/internal/db"
	"github.com/sloppy/infrared/internal/drives"
	"github.com/sloppy/infrared/internal/engine"
	"github.com/sloppy/infrared/internal/enumerate"
	"github.com/sloppy/infrared/internal/export"
	"github.com/sloppy/infrared/internal/handles"
	"github.com/sloppy/infrared/internal/history"
	"github.com/sloppy/infrared/internal/pathrule"
	"github.com/sloppy/infrared/internal/quarantine"
	"github.com/sloppy/infrared/internal/scan"
	"github.com/sloppy/infrared/internal/watch"
	"github.com/sloppy/infrared/internal/web"
)

func usage() string {
	return "Usage: infrared <serve|scan|watch|quarantine|history|engine|config>"
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(out, usage())
		return 1
	}

	command := strings.ToLower(args[1])
	switch command {
	case "serve":
		return runServe(args[2:], out, errOut)
	case "scan":
		return runScan(args[2:], out, errOut)
	case "watch":
		return runWatch(args[2:], out, errOut)
	case "quarantine":
		return runQuarantine(args[2:], out, errOut)
	case "history":
		return runHistory(args[2:], out, errOut)
	case "engine":
		return runEngine(args[2:], out, errOut)
	case "config":
		return runConfig(args[2:], out, errOut)
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage())
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n", command)
		fmt.Fprintln(out, usage())
		return 1
	}
}

func settingsPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(config.DefaultDir(), "settings.json")
}

// app bundles the shared runtime pieces the long commands need.
type app struct {
	settings config.Settings
	database *db.DB
	backend  *engine.DB
	store    *quarantine.Manager
	exclude  *pathrule.Matcher
	log      *slog.Logger
}

func openApp(configPath string, errOut io.Writer) (*app, error) {
	settings := config.Load(settingsPath(configPath))
	log := slog.New(slog.NewTextHandler(errOut, nil))

	if err := os.MkdirAll(filepath.Dir(settings.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	database, err := db.Open(settings.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	backend, err := engine.OpenDB(settings.SignatureDBPath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("open signature db: %w", err)
	}

	store := quarantine.NewManager(settings.QuarantineDir, handles.NewProcessReleaser(), log)

	// never scan our own quarantine store
	exclude := pathrule.NewMatcher([]string{settings.QuarantineDir})

	return &app{
		settings: settings,
		database: database,
		backend:  backend,
		store:    store,
		exclude:  exclude,
		log:      log,
	}, nil
}

func (a *app) Close() {
	a.database.Close()
}

func (a *app) orchestrator() *scan.Orchestrator {
	return scan.New(a.backend, a.store, history.NewRecorder(a.database, a.log), a.log)
}

func runServe(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "path to settings file")
	port := fs.Int("port", 8080, "port to listen on")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	application, err := openApp(*configPath, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer application.Close()

	server := web.NewServer(application.database, application.orchestrator(),
		application.store, application.backend, application.exclude, application.log)

	addr := fmt.Sprintf(":%d", *port)
	fmt.Fprintf(out, "listening on http://localhost:%d\n", *port)
	if err := http.ListenAndServe(addr, server.Handler()); err != nil {
		fmt.Fprintf(errOut, "serve: %v\n", err)
		return 1
	}
	return 0
}

func runScan(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "path to settings file")
	recursive := fs.Bool("recursive", true, "descend into subdirectories (folder scans)")
	detailed := fs.Bool("detailed", false, "request hashes and entropy per file")
	autoQuarantine := fs.Bool("auto-quarantine", false, "quarantine flagged files as they are found")
	format := fs.String("format", "text", "report format: text, json, or csv")
	output := fs.String("output", "", "write the report to a file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(errOut, "scan requires a mode: quick|folder|drive|all-drives|usb|full")
		return 1
	}

	category, err := enumerate.ParseCategory(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	paths := fs.Args()[1:]

	application, err := openApp(*configPath, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer application.Close()

	targets, skipped, err := enumerate.Plan(category, paths, *recursive, application.exclude)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if len(targets) == 0 {
		fmt.Fprintln(out, "nothing to scan")
		return 0
	}
	fmt.Fprintf(errOut, "scanning %s files (%s scan)\n",
		humanize.Comma(int64(len(targets))), category)
	if skipped > 0 {
		fmt.Fprintf(errOut, "skipped %d unreadable roots\n", skipped)
	}

	job := scan.NewJob(string(category), targets, skipped)
	orchestrator := application.orchestrator()
	events, err := orchestrator.Start(job, scan.Options{
		Detailed:       *detailed,
		AutoQuarantine: *autoQuarantine,
	})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	// Ctrl+C asks the job to stop; the stream still drains to its terminal
	// event so the partial summary is recorded.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(errOut, "cancelling...")
		job.Cancel()
	}()

	report := export.Report{}
	for ev := range events {
		switch ev.Kind {
		case scan.EventResult:
			report.Results = append(report.Results, *ev.Result)
			printLiveResult(errOut, *ev.Result)
		case scan.EventDone:
			if ev.Summary != nil {
				report.Summary = *ev.Summary
			}
		}
	}

	dest := out
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(errOut, "create output: %v\n", err)
			return 1
		}
		defer file.Close()
		dest = file
	}
	if err := export.Write(*format, report, dest); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if *output != "" {
		fmt.Fprintf(out, "report written to %s (%s)\n", *output, *format)
	}

	if report.Summary.Reason != scan.ReasonCompleted {
		return 1
	}
	return 0
}

// printLiveResult reports threats and failures as they happen, on stderr so
// a redirected report stays clean.
func printLiveResult(errOut io.Writer, result scan.Result) {
	status := result.Detail.Status
	if status == engine.Clean {
		return
	}
	line := fmt.Sprintf("%s: %s", status, result.Target.Path)
	if result.Detail.ThreatName != "" && status != engine.VerdictError {
		line += fmt.Sprintf(" (%s)", result.Detail.ThreatName)
	}
	if result.Quarantine != nil {
		line += " [quarantined]"
	}
	if result.QuarantineError != "" {
		line += " [" + result.QuarantineError + "]"
	}
	fmt.Fprintln(errOut, line)
}

func runWatch(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "path to settings file")
	autoQuarantine := fs.Bool("auto-quarantine", false, "quarantine flagged files as they appear")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	dirs := fs.Args()
	if len(dirs) == 0 {
		dirs = enumerate.QuickRoots()
	}
	if len(dirs) == 0 {
		fmt.Fprintln(errOut, "watch requires at least one directory")
		return 1
	}

	application, err := openApp(*configPath, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer application.Close()

	watcher := &watch.Watcher{
		Dirs:           dirs,
		Scanner:        application.backend,
		Quarantiner:    application.store,
		Exclude:        application.exclude,
		AutoQuarantine: *autoQuarantine,
		Log:            application.log,
		OnResult: func(result scan.Result) {
			printLiveResult(out, result)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func runQuarantine(args []string, out, errOut io.Writer) int {
	configPath, remaining, err := extractFlag(args, "config", "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if len(remaining) < 1 {
		fmt.Fprintln(errOut, "quarantine requires subcommand: list|restore <file>|delete <file>|clear")
		return 1
	}

	application, err := openApp(configPath, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer application.Close()

	switch remaining[0] {
	case "list":
		records, err := application.store.List()
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "quarantine is empty")
			return 0
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "File\tThreat\tOriginal\tQuarantined")
		for _, record := range records {
			when := ""
			if !record.QuarantinedAt.IsZero() {
				when = record.QuarantinedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				record.File, record.ThreatName, record.OriginalPath, when)
		}
		tw.Flush()
		return 0
	case "restore":
		if len(remaining) < 2 {
			fmt.Fprintln(errOut, "quarantine restore requires a file name")
			return 1
		}
		record, ok := application.store.Find(remaining[1])
		if !ok {
			fmt.Fprintf(errOut, "no quarantine entry %q\n", remaining[1])
			return 1
		}
		if err := application.store.Restore(record); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "restored %s to %s\n", record.File, record.OriginalPath)
		return 0
	case "delete":
		if len(remaining) < 2 {
			fmt.Fprintln(errOut, "quarantine delete requires a file name")
			return 1
		}
		record, ok := application.store.Find(remaining[1])
		if !ok {
			fmt.Fprintf(errOut, "no quarantine entry %q\n", remaining[1])
			return 1
		}
		if err := application.store.Delete(record); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "deleted %s\n", record.File)
		return 0
	case "clear":
		failed, err := application.store.ClearAll()
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if failed > 0 {
			fmt.Fprintf(errOut, "%d entries could not be removed\n", failed)
			return 1
		}
		fmt.Fprintln(out, "quarantine cleared")
		return 0
	default:
		fmt.Fprintf(errOut, "unknown quarantine subcommand: %s\n", remaining[0])
		return 1
	}
}

func runHistory(args []string, out, errOut io.Writer) int {
	configPath, remaining, err := extractFlag(args, "config", "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	limitStr, remaining, err := extractFlag(remaining, "limit", "0")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		fmt.Fprintf(errOut, "invalid limit %q\n", limitStr)
		return 1
	}

	sub := "list"
	if len(remaining) > 0 {
		sub = remaining[0]
	}

	application, err := openApp(configPath, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer application.Close()

	switch sub {
	case "list":
		entries, err := application.database.RecentHistory(limit)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "no scan history")
			return 0
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Started\tType\tFiles\tThreats\tStatus")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				e.StartedAt.Local().Format("2006-01-02 15:04:05"),
				e.ScanType, humanize.Comma(int64(e.TotalFiles)), e.Threats, e.Status)
		}
		tw.Flush()
		return 0
	case "clear":
		if err := application.database.ClearHistory(); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintln(out, "history cleared")
		return 0
	default:
		fmt.Fprintf(errOut, "unknown history subcommand: %s\n", sub)
		return 1
	}
}

func runEngine(args []string, out, errOut io.Writer) int {
	configPath, remaining, err := extractFlag(args, "config", "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if len(remaining) < 1 {
		fmt.Fprintln(errOut, "engine requires subcommand: add-signature|add-hash|drives")
		return 1
	}
	sub := remaining[0]
	remaining = remaining[1:]

	switch sub {
	case "drives":
		// discovery only, no app state needed
		mounted, err := drives.List()
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Device\tMount\tRemovable")
		for _, d := range mounted {
			fmt.Fprintf(tw, "%s\t%s\t%t\n", d.Device, d.Mount, d.Removable)
		}
		tw.Flush()
		return 0
	case "add-signature":
		name, remaining, err := extractFlag(remaining, "name", "")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		pattern, remaining, err := extractFlag(remaining, "pattern", "")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		severityStr, _, err := extractFlag(remaining, "severity", "2")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		severity, err := strconv.Atoi(severityStr)
		if err != nil {
			fmt.Fprintf(errOut, "invalid severity %q\n", severityStr)
			return 1
		}
		if name == "" || pattern == "" {
			fmt.Fprintln(errOut, "add-signature requires --name and --pattern")
			return 1
		}

		application, err := openApp(configPath, errOut)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer application.Close()

		id, err := engine.RegisterSignature(application.backend, name, pattern, severity)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "added signature %d (%s)\n", id, name)
		return 0
	case "add-hash":
		hash, remaining, err := extractFlag(remaining, "hash", "")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		threat, remaining, err := extractFlag(remaining, "threat", "")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		severityStr, remaining, err := extractFlag(remaining, "severity", "3")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		severity, err := strconv.Atoi(severityStr)
		if err != nil {
			fmt.Fprintf(errOut, "invalid severity %q\n", severityStr)
			return 1
		}
		if hash == "" || threat == "" {
			fmt.Fprintln(errOut, "add-hash requires --hash and --threat")
			return 1
		}
		sha256 := false
		for _, arg := range remaining {
			if arg == "--sha256" || arg == "-sha256" {
				sha256 = true
			}
		}

		application, err := openApp(configPath, errOut)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer application.Close()

		id, err := engine.RegisterHash(application.backend, hash, threat, severity, sha256)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "added hash %d (%s)\n", id, threat)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown engine subcommand: %s\n", sub)
		return 1
	}
}

func runConfig(args []string, out, errOut io.Writer) int {
	configPath, remaining, err := extractFlag(args, "config", "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	sub := "show"
	if len(remaining) > 0 {
		sub = remaining[0]
	}
	path := settingsPath(configPath)

	switch sub {
	case "show":
		settings := config.Load(path)
		fmt.Fprintf(out, "settings: %s\n", path)
		fmt.Fprintf(out, "quarantine_dir: %s\n", settings.QuarantineDir)
		fmt.Fprintf(out, "database_path: %s\n", settings.DatabasePath)
		fmt.Fprintf(out, "signature_db_path: %s\n", settings.SignatureDBPath)
		return 0
	case "init":
		if err := config.Save(path, config.Load(path)); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "wrote %s\n", path)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown config subcommand: %s\n", sub)
		return 1
	}
}

// extractFlag finds a string flag (e.g., --config value) anywhere in args and returns its value and remaining args.
func extractFlag(args []string, name string, defaultVal string) (string, []string, error) {
	val := defaultVal
	var remaining []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--"+name || arg == "-"+name {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("%s flag requires a value", arg)
			}
			val = args[i+1]
			i++
			continue
		}
		remaining = append(remaining, arg)
	}
	return val, remaining, nil
}
