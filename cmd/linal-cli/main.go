package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linaldb/linal/internal/cli"
	"github.com/linaldb/linal/internal/client"
)

var (
	version = "dev"

	serverURL string
	database  string
	command   string
	file      string
)

func main() {
	root := &cobra.Command{
		Use:     "linal-cli",
		Short:   "Interactive client for a LINAL server",
		Version: version,
		RunE:    run,
	}
	root.Flags().StringVar(&serverURL, "url", "linal://localhost:8080", "Server URL")
	root.Flags().StringVar(&database, "db", "", "Database name")
	root.Flags().StringVarP(&command, "command", "c", "", "Execute a command and exit")
	root.Flags().StringVarP(&file, "file", "f", "", "Execute commands from a file")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	conn, err := client.New(&client.Config{ServerURL: serverURL, Database: database})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer conn.Close()

	ctx := context.Background()

	if command != "" {
		return executeScript(ctx, conn, command)
	}
	if file != "" {
		return executeFile(ctx, conn, file)
	}

	repl, err := cli.NewREPL(ctx, conn, &cli.Config{
		HistoryFile: historyPath(),
	})
	if err != nil {
		return err
	}
	defer repl.Close()
	return repl.Run()
}

func executeScript(ctx context.Context, c *client.Client, script string) error {
	outputs, err := c.Execute(ctx, script)
	if err != nil {
		return err
	}
	for _, out := range outputs {
		fmt.Print(cli.RenderOutput(out))
	}
	return nil
}

// executeFile reads a script file whole and sends it to the server as one
// script.
func executeFile(ctx context.Context, c *client.Client, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer f.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return executeScript(ctx, c, sb.String())
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.linal_history"
}
