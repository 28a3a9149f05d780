package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/supabase/supabase-sub056/cli/output"
	"github.com/supabase/supabase-sub056/internal/api"
	"github.com/supabase/supabase-sub056/internal/sqlident"
)

// errQuotingIssues makes check exit non-zero when an identifier lacks quotes
var errQuotingIssues = errors.New("statement references identifiers without the quotes they need")

var sqlCmd = &cobra.Command{
	Use:   "sql",
	Short: "Inspect identifiers in SQL statements",
	Long:  `Extract identifiers from SQL statements and check how they are quoted.`,
}

var (
	sqlFile       string
	sqlKnown      []string
	sqlIntrospect bool
)

var sqlIdentifiersCmd = &cobra.Command{
	Use:   "identifiers [SQL]",
	Short: "List the identifiers a statement references",
	Long: `Parse a statement with the PostgreSQL parser and list the relation,
column, function and alias names it references, in parse-tree order.

Examples:
  studiokit sql identifiers "SELECT id, name FROM users u"
  studiokit sql identifiers --file query.sql`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSQLIdentifiers,
}

var sqlNeedsQuotingCmd = &cobra.Command{
	Use:   "needs-quoting IDENTIFIER...",
	Short: "Check whether identifiers must be double quoted",
	Long: `Report, for each identifier, whether it must be double quoted to be used
as is, and its quoted form.

Examples:
  studiokit sql needs-quoting users MyTable order`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSQLNeedsQuoting,
}

var sqlCheckCmd = &cobra.Command{
	Use:   "check [SQL]",
	Short: "Find schema identifiers referenced without quotes",
	Long: `Report the known identifiers that need quoting, are referenced by the
statement and do not appear double quoted in it. Exits non-zero when any
are found.

Known identifiers are given with --known, or taken from every table and
column name a studiokit server has cached (--introspect).

Examples:
  studiokit sql check --known MyTable,userId "SELECT userId FROM MyTable"
  studiokit sql check --introspect --server http://localhost:8080 --file query.sql`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSQLCheck,
}

func init() {
	sqlIdentifiersCmd.Flags().StringVarP(&sqlFile, "file", "f", "", "read the statement from a file (- for stdin)")

	sqlCheckCmd.Flags().StringVarP(&sqlFile, "file", "f", "", "read the statement from a file (- for stdin)")
	sqlCheckCmd.Flags().StringSliceVar(&sqlKnown, "known", nil, "known schema identifiers")
	sqlCheckCmd.Flags().BoolVar(&sqlIntrospect, "introspect", false, "add the table and column names cached by the server")

	sqlCmd.AddCommand(sqlIdentifiersCmd)
	sqlCmd.AddCommand(sqlNeedsQuotingCmd)
	sqlCmd.AddCommand(sqlCheckCmd)
}

// parseError rewrites parser failures with their position
func parseError(err error) error {
	if msg, pos, ok := sqlident.SyntaxError(err); ok {
		return fmt.Errorf("syntax error at position %d: %s", pos, msg)
	}
	return fmt.Errorf("failed to parse SQL: %w", err)
}

func runSQLIdentifiers(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args, sqlFile)
	if err != nil {
		return err
	}

	ids, err := sqlident.ParseIdentifiers(string(data))
	if err != nil {
		return parseError(err)
	}
	if ids == nil {
		ids = []string{}
	}

	formatter.PrintList(ids)
	return nil
}

func runSQLNeedsQuoting(cmd *cobra.Command, args []string) error {
	data := output.TableData{
		Headers: []string{"IDENTIFIER", "NEEDS_QUOTING", "QUOTED"},
		Rows:    make([][]string, 0, len(args)),
	}
	for _, id := range args {
		data.Rows = append(data.Rows, []string{
			id,
			strconv.FormatBool(sqlident.NeedsQuoting(id)),
			sqlident.QuoteIfNeeded(id),
		})
	}
	formatter.PrintTable(data)
	return nil
}

// remoteQuotingReport runs the check on the server so that its cached
// identifiers are included
func remoteQuotingReport(cmd *cobra.Command, sql string) (*sqlident.QuotingReport, error) {
	apiClient, err := newClient(cmd)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	var resp api.QuotingResponse
	req := api.QuotingRequest{SQL: sql, Identifiers: sqlKnown, Introspect: true}
	if err := apiClient.DoPost(ctx, "/api/v1/sql/quoting", req, &resp); err != nil {
		return nil, err
	}
	if resp.Report == nil {
		return nil, errors.New("server returned no quoting report")
	}
	return resp.Report, nil
}

func runSQLCheck(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args, sqlFile)
	if err != nil {
		return err
	}

	var report *sqlident.QuotingReport
	if sqlIntrospect {
		report, err = remoteQuotingReport(cmd, string(data))
	} else {
		report, err = sqlident.CheckQuoting(string(data), sqlKnown)
		if err != nil {
			err = parseError(err)
		}
	}
	if err != nil {
		return err
	}

	switch {
	case formatter.Format != output.FormatTable:
		if err := formatter.Print(report); err != nil {
			return err
		}
	case report.Valid:
		formatter.PrintInfo(fmt.Sprintf("ok: %d identifiers referenced, no quoting issues", len(report.Identifiers)))
	default:
		table := output.TableData{
			Headers: []string{"IDENTIFIER", "SUGGESTION", "REASON"},
			Rows:    make([][]string, 0, len(report.Issues)),
		}
		for _, issue := range report.Issues {
			table.Rows = append(table.Rows, []string{issue.Identifier, issue.Suggestion, issue.Reason})
		}
		formatter.PrintTable(table)
	}

	if !report.Valid {
		return errQuotingIssues
	}
	return nil
}
