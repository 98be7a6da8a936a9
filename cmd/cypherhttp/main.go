// Package main provides the cypherhttp CLI, a small shell for running
// Cypher statements against a Neo4j-compatible HTTP endpoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/cypherhttp/pkg/config"
	"github.com/orneryd/cypherhttp/pkg/cypher"
	"github.com/orneryd/cypherhttp/pkg/graph"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cypherhttp",
		Short: "Cypher-over-HTTP client for Neo4j-compatible graph databases",
		Long: `cypherhttp runs Cypher statements against the HTTP transactional
endpoint of a Neo4j-compatible graph database (Neo4j, NornicDB).

Statements execute with implicit commit; multiple statements given in one
invocation are sent as a single atomic batch.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cypherhttp v%s (%s)\n", version, commit)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run [statement...]",
		Short: "Execute Cypher statements and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runStatements,
	}
	runCmd.Flags().String("config", "", "Path to YAML config file")
	runCmd.Flags().String("url", "", "Server base URL (default: http://localhost:7474)")
	runCmd.Flags().String("username", "", "Basic auth username")
	runCmd.Flags().String("password", "", "Basic auth password")
	runCmd.Flags().String("database", "", "Database name (default: neo4j)")
	runCmd.Flags().StringArray("param", nil, "Statement parameter as name=value; value is parsed as JSON, falling back to a plain string")
	runCmd.Flags().Bool("verbose", false, "Enable debug logging")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStatements(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cmd)}))

	params, err := parseParams(cmd)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.Timeout()}
	opts := []graph.Option{
		graph.WithHTTPClient(httpClient),
		graph.WithLogger(logger),
		graph.WithDatabase(cfg.Database),
	}
	if cfg.Username != "" {
		opts = append(opts, graph.WithBasicAuth(cfg.Username, cfg.Password))
	}

	ctx := context.Background()
	client, err := graph.Connect(ctx, cfg.URL, opts...)
	if err != nil {
		return err
	}

	batch := client.Cypher().Query()
	for _, text := range args {
		batch.WithStatement(cypher.NewStatement(text, params))
	}

	results, err := batch.Send(ctx)
	if err != nil {
		return err
	}

	for i, rs := range results {
		if i > 0 {
			fmt.Println()
		}
		printResult(rs)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if v, _ := cmd.Flags().GetString("url"); v != "" {
		cfg.URL = v
	}
	if v, _ := cmd.Flags().GetString("username"); v != "" {
		cfg.Username = v
	}
	if v, _ := cmd.Flags().GetString("password"); v != "" {
		cfg.Password = v
	}
	if v, _ := cmd.Flags().GetString("database"); v != "" {
		cfg.Database = v
	}
	return cfg, cfg.Validate()
}

func logLevel(cmd *cobra.Command) slog.Level {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// parseParams turns --param name=value flags into a parameter map. The
// value is decoded as JSON when possible so numbers, booleans, lists and
// maps come through typed; anything else is a plain string.
func parseParams(cmd *cobra.Command) (cypher.Params, error) {
	raw, _ := cmd.Flags().GetStringArray("param")
	params := cypher.Params{}
	for _, entry := range raw {
		name, value, found := strings.Cut(entry, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid --param %q, expected name=value", entry)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			params[name] = decoded
		} else {
			params[name] = value
		}
	}
	return params, nil
}

func printResult(rs *cypher.ResultSet) {
	fmt.Println(strings.Join(rs.Columns(), " | "))
	for _, row := range rs.Rows() {
		cells := make([]string, row.Len())
		for i := range cells {
			v, _ := row.Cell(i)
			cells[i] = v.String()
		}
		fmt.Println(strings.Join(cells, " | "))
	}
	fmt.Printf("(%d rows)\n", rs.Len())
}
