package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/linaldb/linal/internal/client"
	"github.com/linaldb/linal/pkg/parser"
)

// REPL is the interactive read-eval-print loop over a LINAL client.
type REPL struct {
	client *client.Client
	rl     *readline.Instance
	ctx    context.Context
	prompt string
	buf    strings.Builder
}

// Config holds REPL configuration.
type Config struct {
	HistoryFile string
	Prompt      string
}

// NewREPL creates a new REPL instance.
func NewREPL(ctx context.Context, cli *client.Client, cfg *Config) (*REPL, error) {
	if cfg == nil {
		cfg = &Config{Prompt: "linal> "}
	}
	if cfg.Prompt == "" {
		cfg.Prompt = "linal> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cfg.Prompt,
		HistoryFile:       cfg.HistoryFile,
		AutoComplete:      &completer{},
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &REPL{client: cli, rl: rl, ctx: ctx, prompt: cfg.Prompt}, nil
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	fmt.Println("LINAL - interactive mode")
	fmt.Printf("Connected to %s\n", r.client.Config().ServerURL)
	fmt.Println("Type '\\h' for help, '\\q' to quit.")
	fmt.Println()

	for {
		if r.buf.Len() > 0 {
			r.rl.SetPrompt("... ")
		} else {
			r.rl.SetPrompt(r.prompt)
		}

		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			if r.buf.Len() > 0 {
				r.buf.Reset()
				fmt.Println("^C")
			}
			continue
		}
		if err == io.EOF {
			fmt.Println("\nGoodbye!")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if r.buf.Len() == 0 && strings.HasPrefix(line, "\\") {
			if err := r.handleMetaCommand(line); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			continue
		}

		r.buf.WriteString(line)
		r.buf.WriteString("\n")
		if parser.NeedsContinuation(r.buf.String()) {
			continue
		}

		script := r.buf.String()
		r.buf.Reset()
		if err := r.executeScript(script); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// Close closes the REPL.
func (r *REPL) Close() error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}

// executeScript sends a script to the server and renders the outputs.
func (r *REPL) executeScript(script string) error {
	outputs, err := r.client.Execute(r.ctx, script)
	if err != nil {
		return err
	}
	for _, out := range outputs {
		fmt.Print(RenderOutput(out))
	}
	return nil
}

// handleMetaCommand handles REPL meta commands.
func (r *REPL) handleMetaCommand(command string) error {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil
	}
	switch parts[0] {
	case "\\h", "\\help":
		r.printHelp()
	case "\\q", "\\quit":
		fmt.Println("Goodbye!")
		os.Exit(0)
	case "\\l", "\\list":
		names, err := r.client.Databases(r.ctx)
		if err != nil {
			return err
		}
		fmt.Println("Databases:")
		for _, n := range names {
			fmt.Printf("  %s\n", n)
		}
	case "\\dt", "\\datasets":
		return r.executeScript("LIST DATASETS;")
	case "\\dT", "\\tensors":
		return r.executeScript("LIST TENSORS;")
	case "\\d", "\\describe":
		if len(parts) < 2 {
			return fmt.Errorf("usage: \\d <dataset>")
		}
		return r.executeScript(fmt.Sprintf("SHOW SCHEMA %s;", parts[1]))
	case "\\c", "\\connect":
		if len(parts) < 2 {
			return fmt.Errorf("usage: \\c <database>")
		}
		return r.executeScript(fmt.Sprintf("USE %s;", parts[1]))
	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
	return nil
}

func (r *REPL) printHelp() {
	fmt.Print(`LINAL - interactive analytical shell

Meta commands:
  \h, \help           Show this help message
  \q, \quit           Quit
  \l, \list           List databases
  \dt, \datasets      List datasets
  \dT, \tensors       List tensors
  \d <name>           Describe a dataset's schema
  \c <database>       Switch database

Statements end with ';'. Examples:
  DATASET users COLUMNS (id: Int, emb: Vector(3));
  INSERT INTO users VALUES (1, [1, 0, 0]);
  CREATE VECTOR INDEX vx ON users(emb) USING cosine;
  SEARCH users WHERE emb ~= [1, 0, 0] LIMIT 2;
  SELECT id FROM users WHERE id = 1;

`)
}

// completer implements readline.AutoCompleter over the command keywords.
type completer struct{}

var keywords = []string{
	"SELECT", "FROM", "WHERE", "GROUP", "BY", "HAVING", "ORDER", "LIMIT",
	"INSERT", "INTO", "VALUES", "DATASET", "COLUMNS", "ADD", "COLUMN",
	"LAZY", "MATERIALIZE", "DEFINE", "VECTOR", "MATRIX", "TENSOR", "LET",
	"CREATE", "DROP", "USE", "DATABASE", "INDEX", "USING", "SEARCH",
	"EXPLAIN", "PLAN", "SHOW", "SCHEMA", "SHAPE", "ALL", "DATABASES",
	"INDEXES", "LIST", "DATASETS", "TENSORS", "SAVE", "LOAD", "SET",
	"METADATA", "AND", "OR", "NOT", "NULL", "TRUE", "FALSE", "AS",
	"COUNT", "SUM", "AVG", "MIN", "MAX", "DOT", "COSINE", "L2",
	"NORMALIZE", "MATMUL", "TRANSPOSE", "RESHAPE", "FLATTEN", "STACK",
}

// Do implements tab completion.
func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	lineStr := string(line)
	if strings.HasPrefix(lineStr, "\\") {
		metas := []string{
			"\\help", "\\h", "\\quit", "\\q", "\\list", "\\l",
			"\\datasets", "\\dt", "\\tensors", "\\dT", "\\describe", "\\d", "\\connect", "\\c",
		}
		var matches [][]rune
		for _, m := range metas {
			if strings.HasPrefix(m, lineStr) {
				matches = append(matches, []rune(m[len(lineStr):]))
			}
		}
		return matches, len(line)
	}
	fields := strings.Fields(lineStr)
	last := ""
	if len(fields) > 0 && !strings.HasSuffix(lineStr, " ") {
		last = strings.ToUpper(fields[len(fields)-1])
	}
	var matches [][]rune
	for _, kw := range keywords {
		if last != "" && strings.HasPrefix(kw, last) {
			matches = append(matches, []rune(kw[len(last):]))
		}
	}
	return matches, len([]rune(last))
}
