package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/supabase/supabase-sub056/cli/output"
	"github.com/supabase/supabase-sub056/internal/api"
	"github.com/supabase/supabase-sub056/internal/filter"
)

var tablesCmd = &cobra.Command{
	Use:     "tables",
	Aliases: []string{"table"},
	Short:   "Inspect the schema cache of a studiokit server",
	Long:    `List cached tables and the filter property schemas derived from their columns.`,
}

var tableSchema string

var tablesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached tables",
	Long: `List the tables and views the server has cached.

Examples:
  studiokit tables list --server http://localhost:8080
  studiokit tables list --schema public -o json`,
	Args: cobra.NoArgs,
	RunE: runTablesList,
}

var tablesPropertiesCmd = &cobra.Command{
	Use:   "properties SCHEMA.TABLE",
	Short: "Show the filter properties of a table",
	Long: `Show the filter property schema derived from a table's columns. The
schema defaults to public.

Examples:
  studiokit tables properties public.orders
  studiokit tables properties orders -o yaml > props.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runTablesProperties,
}

var tablesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload the server's schema cache",
	Args:  cobra.NoArgs,
	RunE:  runTablesRefresh,
}

func init() {
	tablesListCmd.Flags().StringVar(&tableSchema, "schema", "", "only list tables in this schema")

	tablesCmd.AddCommand(tablesListCmd)
	tablesCmd.AddCommand(tablesPropertiesCmd)
	tablesCmd.AddCommand(tablesRefreshCmd)
}

func runTablesList(cmd *cobra.Command, args []string) error {
	apiClient, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	query := url.Values{}
	if tableSchema != "" {
		query.Set("schema", tableSchema)
	}

	var tables []api.TableSummary
	if err := apiClient.DoGet(ctx, "/api/v1/schemas/tables", query, &tables); err != nil {
		return err
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(tables)
	}

	data := output.TableData{
		Headers: []string{"SCHEMA", "NAME", "QUALIFIED", "TYPE", "COLUMNS"},
		Rows:    make([][]string, 0, len(tables)),
	}
	for _, t := range tables {
		data.Rows = append(data.Rows, []string{t.Schema, t.Name, t.Qualified, t.Type, strconv.Itoa(t.Columns)})
	}
	formatter.PrintTable(data)
	return nil
}

func runTablesProperties(cmd *cobra.Command, args []string) error {
	resp, err := fetchTableProperties(cmd, args[0])
	if err != nil {
		return err
	}

	// Structured output is a property schema file usable with --properties
	if formatter.Format != output.FormatTable {
		return formatter.Print(resp.Properties)
	}

	data := output.TableData{
		Headers: []string{"NAME", "LABEL", "TYPE", "OPERATORS", "OPTIONS"},
		Rows:    make([][]string, 0, len(resp.Properties)),
	}
	for _, p := range resp.Properties {
		data.Rows = append(data.Rows, []string{
			p.Name,
			p.Label,
			string(p.Type),
			strings.Join(filter.SerializeOperators(p.Operators), " "),
			strings.Join(filter.SerializeOptions(p.Options), ", "),
		})
	}
	formatter.PrintTable(data)
	return nil
}

func runTablesRefresh(cmd *cobra.Command, args []string) error {
	apiClient, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	var resp struct {
		Tables int `json:"tables"`
	}
	if err := apiClient.DoPost(ctx, "/api/v1/schemas/refresh", nil, &resp); err != nil {
		return err
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(resp)
	}
	formatter.PrintInfo(fmt.Sprintf("Schema cache refreshed: %d tables", resp.Tables))
	return nil
}
