// Command reldb is the CLI entry point: a single cobra command that opens
// a database directory and drops into a liner-backed SQL REPL, per
// spec.md §6's external interface and SPEC_FULL.md §6's expansion of it.
//
// Grounded on leftmike-maho.v1/cmd/maho.go's cobra root command plus
// PersistentPreRunE/PersistentPostRun lifecycle hooks, and
// leftmike-maho.v1/repl/{repl.go,interact.go} for the liner prompt loop
// and tablewriter result rendering, adapted from maho's StmtPlan/CmdPlan/
// RowsPlan three-way split onto reldb/internal/engine's own ResultKind.
// The REPL loop itself (read a line, parse-execute-print, "exit" quits)
// keeps ShubhamNegi4-DaemonDB's original main.go "db> " prompt shape.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"reldb/internal/config"
	"reldb/internal/engine"
	"reldb/internal/errs"
)

const historyFile = ".reldb_history"
const outputFile = "output.txt"

var (
	dataDir    string
	configFile string
	logLevel   string
	logFile    string
	logStderr  bool

	logWriter io.WriteCloser
	db        *engine.Database

	usedFlags = map[string]struct{}{}
)

var rootCmd = &cobra.Command{
	Use:               "reldb",
	Short:             "A disk-resident relational database",
	PersistentPreRunE: preRun,
	PersistentPostRun: postRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL(db)
	},
}

func init() {
	fs := rootCmd.PersistentFlags()
	fs.StringVar(&dataDir, "data-dir", "", "`dir` to store the database in (overrides config)")
	fs.StringVar(&configFile, "config-file", "reldb.hcl.conf", "`file` to load process config from")
	fs.StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error, fatal, or panic")
	fs.StringVar(&logFile, "log-file", "reldb.log", "`file` to use for logging")
	fs.BoolVarP(&logStderr, "log-stderr", "s", false, "log to standard error instead of --log-file")
}

func preRun(cmd *cobra.Command, args []string) error {
	cmd.Flags().Visit(func(flg *pflag.Flag) {
		usedFlags[flg.Name] = struct{}{}
	})

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("reldb: %w", err)
	}
	// A flag the user actually passed wins over the config file; an
	// untouched flag defers to whatever config.Load already resolved.
	if _, used := usedFlags["data-dir"]; used || dataDir != "" {
		cfg.DataDir = dataDir
	}
	if _, used := usedFlags["log-level"]; used {
		cfg.LogLevel = logLevel
	}
	if _, used := usedFlags["log-file"]; used {
		cfg.LogFile = logFile
	}

	log.SetFormatter(&log.TextFormatter{DisableLevelTruncation: true})
	if !logStderr && cfg.LogFile != "" {
		logWriter, err = os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			return fmt.Errorf("reldb: %w", err)
		}
		log.SetOutput(logWriter)
	}
	ll, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("reldb: %w", err)
	}
	log.SetLevel(ll)
	log.WithField("pid", os.Getpid()).Info("reldb starting")

	db, err = engine.Open(cfg.DataDir, cfg)
	if err != nil {
		log.WithError(err).Fatal("recovery failed, refusing to start")
	}
	return nil
}

func postRun(cmd *cobra.Command, args []string) {
	if db != nil {
		if err := db.Close(); err != nil {
			log.WithError(err).Error("error closing database")
		}
	}
	log.WithField("pid", os.Getpid()).Info("reldb done")
	if logWriter != nil {
		logWriter.Close()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runREPL drives one interactive session against db until the user types
// EXIT or sends EOF (Ctrl-D), rendering SELECT results as tablewriter
// boxes and echoing row counts/messages for everything else.
func runREPL(db *engine.Database) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	sess := db.NewSession()
	w := os.Stdout

	for {
		input, err := line.Prompt("reldb> ")
		if err != nil { // io.EOF on Ctrl-D, liner.ErrPromptAborted on Ctrl-C
			break
		}
		sql := strings.TrimSpace(input)
		if sql == "" {
			continue
		}
		line.AppendHistory(input)

		res, err := sess.Execute(sql)
		if err != nil {
			printError(w, err)
			continue
		}
		if renderResult(w, sql, res) {
			break
		}
	}

	if f, err := os.Create(historyFile); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
	return nil
}

// renderResult prints one Result and reports whether the REPL loop
// should stop (EXIT was the statement).
func renderResult(w io.Writer, sql string, res *engine.Result) bool {
	switch res.Kind {
	case engine.ResultExit:
		return true
	case engine.ResultHelp:
		fmt.Fprintln(w, res.Message)
	case engine.ResultMessage:
		fmt.Fprintln(w, res.Message)
	case engine.ResultRows:
		rendered := renderTable(w, res)
		if isShowStatement(sql) {
			appendOutput(rendered)
		}
	}
	return false
}

// renderTable draws res as a tablewriter box, the way
// leftmike-maho.v1/repl/repl.go renders a RowsPlan, and returns the
// rendered text so SHOW TABLES/SHOW INDEX can also append it to
// output.txt per spec.md §6.
func renderTable(w io.Writer, res *engine.Result) string {
	var buf strings.Builder
	tw := tablewriter.NewWriter(&buf)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeader(res.Columns)
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		tw.Append(cells)
	}
	tw.Render()
	text := buf.String()
	fmt.Fprint(w, text)
	fmt.Fprintf(w, "(%d rows)\n", tw.NumLines())
	return text
}

func formatValue(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func printError(w io.Writer, err error) {
	if e, ok := errs.Of(err); ok {
		fmt.Fprintf(w, "error: %s\n", e.Error())
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

func isShowStatement(sql string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	return strings.HasPrefix(upper, "SHOW TABLES") || strings.HasPrefix(upper, "SHOW INDEX")
}

func appendOutput(text string) {
	f, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.WithError(err).Error("could not append to output.txt")
		return
	}
	defer f.Close()
	f.WriteString(text)
}
