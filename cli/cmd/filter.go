package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/supabase/supabase-sub056/cli/output"
	"github.com/supabase/supabase-sub056/cli/util"
	"github.com/supabase/supabase-sub056/internal/api"
	"github.com/supabase/supabase-sub056/internal/filter"
	"github.com/supabase/supabase-sub056/internal/query"
)

// errFilterInvalid makes validate exit non-zero for scripts
var errFilterInvalid = errors.New("filter does not match the property schema")

var filterCmd = &cobra.Command{
	Use:     "filter",
	Aliases: []string{"filters"},
	Short:   "Validate, normalize and serialize filter trees",
	Long: `Work with AND/OR filter trees as used by the table editor.

A filter is read from the argument, from --file, or from stdin. The
property schema comes from a YAML or JSON file (--properties) or from a
table's columns on a studiokit server (--table).`,
}

var (
	filterFile       string
	filterProperties string
	filterTable      string
	filterOffset     int

	editOp              string
	editPath            []int
	editProperty        string
	editOperator        string
	editValue           string
	editLogicalOperator string
	editReplacement     string
)

var filterValidateCmd = &cobra.Command{
	Use:   "validate [FILTER_JSON]",
	Short: "Check a filter against a property schema",
	Long: `Check that every condition names a known property and uses one of its
operators. Exits non-zero when the filter is invalid.

Examples:
  studiokit filter validate --properties props.yaml --file filter.json
  cat filter.json | studiokit filter validate --table public.orders --server http://localhost:8080`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilterValidate,
}

var filterNormalizeCmd = &cobra.Command{
	Use:   "normalize [FILTER_JSON]",
	Short: "Force AND at every level of a filter",
	Long: `Rewrite a filter so that every group, nested ones included, uses AND.

Examples:
  studiokit filter normalize '{"logicalOperator":"OR","conditions":[]}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilterNormalize,
}

var filterGeneratedCmd = &cobra.Command{
	Use:   "generated [FILTER_JSON]",
	Short: "Normalize a machine-generated filter",
	Long: `Fill in missing logical operators and conditions of a generated filter
and reject conditions on properties the schema does not know.

Examples:
  studiokit filter generated --properties props.yaml --file generated.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilterGenerated,
}

var filterSerializeCmd = &cobra.Command{
	Use:   "serialize",
	Short: "Flatten the operators and options of a property schema",
	Long: `Print each property with its operators and options flattened to strings.

Examples:
  studiokit filter serialize --properties props.yaml
  studiokit filter serialize --table public.orders -o json`,
	Args:    cobra.NoArgs,
	PreRunE: requirePropertySource,
	RunE:    runFilterSerialize,
}

var filterWhereCmd = &cobra.Command{
	Use:   "where [FILTER_JSON]",
	Short: "Render a filter as a SQL predicate",
	Long: `Render a filter as a parameterized WHERE predicate. When a property
schema is given the filter must validate against it first.

Examples:
  studiokit filter where --file filter.json
  studiokit filter where --offset 2 --properties props.yaml --file filter.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilterWhere,
}

var filterEditCmd = &cobra.Command{
	Use:   "edit [FILTER_JSON]",
	Short: "Apply one path edit to a filter",
	Long: `Change the node addressed by --path, a list of condition indexes from
the root group. Operations: add_condition, add_group, set_logical_operator,
update_value, update_operator, remove, replace_group.

--value is parsed as JSON and taken as a plain string when it is not.

Examples:
  studiokit filter edit --op add_condition --path 1 --property status --file filter.json
  studiokit filter edit --op update_value --path 0 --value 42 --file filter.json
  studiokit filter edit --op replace_group --path 1 --replacement '{"logicalOperator":"OR","conditions":[]}' --file filter.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilterEdit,
}

func init() {
	filterCmd.PersistentFlags().StringVarP(&filterFile, "file", "f", "", "read the filter from a file (- for stdin)")
	filterCmd.PersistentFlags().StringVar(&filterProperties, "properties", "", "property schema file (YAML or JSON)")
	filterCmd.PersistentFlags().StringVar(&filterTable, "table", "", "take the property schema from a table (schema.table)")

	filterWhereCmd.Flags().IntVar(&filterOffset, "offset", 0, "number placeholders after this many existing ones")

	filterCmd.AddCommand(filterValidateCmd)
	filterCmd.AddCommand(filterNormalizeCmd)
	filterCmd.AddCommand(filterGeneratedCmd)
	filterCmd.AddCommand(filterSerializeCmd)
	filterEditCmd.Flags().StringVar(&editOp, "op", "", "edit operation")
	filterEditCmd.Flags().IntSliceVar(&editPath, "path", nil, "condition indexes from the root group, e.g. 1,0")
	filterEditCmd.Flags().StringVar(&editProperty, "property", "", "property of a new condition")
	filterEditCmd.Flags().StringVar(&editOperator, "operator", "", "operator for update_operator")
	filterEditCmd.Flags().StringVar(&editValue, "value", "", "value for update_value")
	filterEditCmd.Flags().StringVar(&editLogicalOperator, "logical-operator", "", "AND or OR for set_logical_operator")
	filterEditCmd.Flags().StringVar(&editReplacement, "replacement", "", "group JSON for replace_group")
	_ = filterEditCmd.MarkFlagRequired("op")

	filterCmd.AddCommand(filterWhereCmd)
	filterCmd.AddCommand(filterEditCmd)
}

func requirePropertySource(cmd *cobra.Command, args []string) error {
	if filterProperties == "" && filterTable == "" {
		return errors.New("a property schema is required (use --properties or --table)")
	}
	return nil
}

// readGroup reads and decodes the command's filter
func readGroup(cmd *cobra.Command, args []string) (*filter.Group, error) {
	data, err := readInput(cmd, args, filterFile)
	if err != nil {
		return nil, err
	}
	group, err := filter.ParseGroup(data)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return group, nil
}

// parseTableRef splits "schema.table", defaulting the schema to public
func parseTableRef(ref string) (string, string, error) {
	parts := strings.SplitN(ref, ".", 2)
	if len(parts) == 1 {
		parts = []string{"public", parts[0]}
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid table %q (expected schema.table)", ref)
	}
	return parts[0], parts[1], nil
}

// fetchTableProperties asks the server for the filter schema of a table
func fetchTableProperties(cmd *cobra.Command, ref string) (*api.TablePropertiesResponse, error) {
	schema, table, err := parseTableRef(ref)
	if err != nil {
		return nil, err
	}

	apiClient, err := newClient(cmd)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	path := fmt.Sprintf("/api/v1/schemas/%s/tables/%s/properties", schema, table)
	var resp api.TablePropertiesResponse
	if err := apiClient.DoGet(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to load properties of %s.%s: %w", schema, table, err)
	}
	return &resp, nil
}

// loadFilterProperties returns the property schema named by --properties or
// --table. No source means an empty schema.
func loadFilterProperties(cmd *cobra.Command) ([]filter.Property, error) {
	switch {
	case filterProperties != "":
		return filter.LoadProperties(filterProperties)
	case filterTable != "":
		resp, err := fetchTableProperties(cmd, filterTable)
		if err != nil {
			return nil, err
		}
		return resp.Properties, nil
	default:
		return nil, nil
	}
}

func runFilterValidate(cmd *cobra.Command, args []string) error {
	group, err := readGroup(cmd, args)
	if err != nil {
		return err
	}
	props, err := loadFilterProperties(cmd)
	if err != nil {
		return err
	}

	valid := filter.ValidateFilterGroup(group, props)
	if formatter.Format == output.FormatTable {
		if valid {
			formatter.PrintInfo("valid")
		} else {
			formatter.PrintInfo("invalid")
		}
	} else if err := formatter.Print(api.ValidateFilterResponse{Valid: valid}); err != nil {
		return err
	}

	if !valid {
		return errFilterInvalid
	}
	return nil
}

func runFilterNormalize(cmd *cobra.Command, args []string) error {
	group, err := readGroup(cmd, args)
	if err != nil {
		return err
	}
	return formatter.Print(filter.EnforceAndLogicalOperator(group))
}

func runFilterGenerated(cmd *cobra.Command, args []string) error {
	group, err := readGroup(cmd, args)
	if err != nil {
		return err
	}
	props, err := loadFilterProperties(cmd)
	if err != nil {
		return err
	}

	normalized, err := filter.NormalizeGenerated(group, props)
	if err != nil {
		return err
	}
	return formatter.Print(normalized)
}

func runFilterSerialize(cmd *cobra.Command, args []string) error {
	props, err := loadFilterProperties(cmd)
	if err != nil {
		return err
	}

	serialized := make([]api.SerializedProperty, 0, len(props))
	for _, p := range props {
		serialized = append(serialized, api.SerializedProperty{
			Name:      p.Name,
			Label:     p.Label,
			Type:      p.Type,
			Operators: filter.SerializeOperators(p.Operators),
			Options:   filter.SerializeOptions(p.Options),
		})
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(serialized)
	}

	data := output.TableData{
		Headers: []string{"NAME", "LABEL", "TYPE", "OPERATORS", "OPTIONS"},
		Rows:    make([][]string, 0, len(serialized)),
	}
	for _, p := range serialized {
		data.Rows = append(data.Rows, []string{
			p.Name,
			p.Label,
			string(p.Type),
			strings.Join(p.Operators, " "),
			util.TruncateString(strings.Join(p.Options, ", "), 50),
		})
	}
	formatter.PrintTable(data)
	return nil
}

func runFilterWhere(cmd *cobra.Command, args []string) error {
	group, err := readGroup(cmd, args)
	if err != nil {
		return err
	}
	props, err := loadFilterProperties(cmd)
	if err != nil {
		return err
	}
	if len(props) > 0 && !filter.ValidateFilterGroup(group, props) {
		return errFilterInvalid
	}

	clause, err := query.BuildWhereFrom(group, filterOffset)
	if err != nil {
		return err
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(clause)
	}

	formatter.PrintInfo(clause.SQL)
	if len(clause.Args) == 0 {
		return nil
	}
	data := output.TableData{
		Headers: []string{"PARAM", "VALUE"},
		Rows:    make([][]string, 0, len(clause.Args)),
	}
	for i, arg := range clause.Args {
		value, err := json.Marshal(arg)
		if err != nil {
			return err
		}
		data.Rows = append(data.Rows, []string{"$" + strconv.Itoa(filterOffset+i+1), string(value)})
	}
	formatter.PrintTable(data)
	return nil
}

// parseEditValue reads --value as JSON, falling back to the raw string
func parseEditValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}

func runFilterEdit(cmd *cobra.Command, args []string) error {
	group, err := readGroup(cmd, args)
	if err != nil {
		return err
	}
	props, err := loadFilterProperties(cmd)
	if err != nil {
		return err
	}

	edit := filter.Edit{
		Op:              filter.EditOp(editOp),
		Path:            filter.Path(editPath),
		Property:        editProperty,
		Operator:        editOperator,
		LogicalOperator: filter.LogicalOperator(strings.ToUpper(editLogicalOperator)),
	}
	if cmd.Flags().Changed("value") {
		edit.Value = parseEditValue(editValue)
	}
	if editReplacement != "" {
		replacement, err := filter.ParseGroup([]byte(editReplacement))
		if err != nil {
			return fmt.Errorf("invalid replacement: %w", err)
		}
		edit.Replacement = replacement
	}

	edited, err := filter.ApplyEdit(group, edit, props)
	if err != nil {
		return err
	}
	return formatter.Print(edited)
}
