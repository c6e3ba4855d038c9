// Package shell implements the interactive REPL: a line-edited prompt with
// persistent history, `.exit`/`.tables` meta-commands, and tabular result
// printing. It is grounded directly on cli.py's main() loop.
package shell

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/olekukonko/tablewriter"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/dblog"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/exec"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/sqlparse"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/storage"
	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/value"
)

const historyFile = ".pysqlite_history"

const (
	cmdExit   = ".exit"
	cmdTables = ".tables"
)

// Shell drives one interactive session against a storage.Engine.
type Shell struct {
	dbDir  string
	engine *exec.Engine
}

// New returns a Shell rooted at dbDir, driving engine.
func New(dbDir string, engine *exec.Engine) *Shell {
	return &Shell{dbDir: dbDir, engine: engine}
}

// Run reads queries from stdin until `.exit` or EOF, printing results or
// errors, and persists command history to dbDir/.pysqlite_history.
func (s *Shell) Run() error {
	historyPath := filepath.Join(s.dbDir, historyFile)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pysqlite> ",
		HistoryFile:     historyPath,
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("pysqlite version 1.2.0")
	absDir, err := filepath.Abs(s.dbDir)
	if err != nil {
		absDir = s.dbDir
	}
	fmt.Printf("Connected to database at '%s'.\n", absDir)
	fmt.Println("Enter '.exit' to quit or '.tables' to list tables.")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			break
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			dblog.L().WithError(err).Error("reading input")
			break
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}

		switch strings.ToLower(query) {
		case cmdExit:
			fmt.Println("\nExiting pysqlite. Goodbye!")
			return nil
		case cmdTables:
			s.printTables()
			continue
		}

		s.runQuery(query)
	}

	fmt.Println("\nExiting pysqlite. Goodbye!")
	return nil
}

func (s *Shell) printTables() {
	entries, err := os.ReadDir(s.dbDir)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}
	var tables []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
			tables = append(tables, strings.TrimSuffix(entry.Name(), ".db"))
		}
	}
	if len(tables) == 0 {
		fmt.Println("(no tables found)")
		return
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Println(t)
	}
}

func (s *Shell) runQuery(query string) {
	cmd, err := sqlparse.Parse(query)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}
	result, err := s.engine.Execute(cmd)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}
	if result == nil {
		return
	}
	switch r := result.(type) {
	case []value.Row:
		printRows(r)
	default:
		fmt.Println(r)
	}
}

// printRows renders a result set as a bordered table, or "(no rows)" for an
// empty set, matching print_table's contract from cli.py.
func printRows(rows []value.Row) {
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return
	}

	// cli.py's print_table uses data[0].keys(), i.e. the first row's
	// insertion order. value.Row is a Go map and has no stable iteration
	// order, so headers are sorted alphabetically instead; this is a
	// deliberate, visible divergence from the original's column ordering.
	headers := make([]string, 0, len(rows[0]))
	for h := range rows[0] {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	for _, row := range rows {
		line := make([]string, len(headers))
		for i, h := range headers {
			if v, ok := row[h]; ok && !v.IsNull() {
				line[i] = v.String()
			}
		}
		table.Append(line)
	}
	table.Render()
}

// StorageEngineFor opens a storage.Engine rooted at dbDir, creating the
// directory if it does not yet exist.
func StorageEngineFor(dbDir string, lockTimeout time.Duration) (*storage.Engine, error) {
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, err
		}
		fmt.Printf("Database directory '%s' created.\n", dbDir)
	}
	return storage.Open(dbDir, lockTimeout)
}
