package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/supabase/supabase-sub056/internal/database"
	"github.com/supabase/supabase-sub056/internal/filter"
	"github.com/supabase/supabase-sub056/internal/observability"
	"github.com/supabase/supabase-sub056/internal/query"
)

// FilterRequest carries a filter tree and the property schema to check it
// against. When Properties is empty and Schema and Table are set, the
// schema is taken from the table's columns.
type FilterRequest struct {
	Group      json.RawMessage   `json:"group"`
	Properties []filter.Property `json:"properties"`
	Schema     string            `json:"schema"`
	Table      string            `json:"table"`
}

// hasTable reports whether the request names a table to introspect
func (r *FilterRequest) hasTable() bool {
	return r.Table != ""
}

// ValidateFilterResponse is the result of a validation
type ValidateFilterResponse struct {
	Valid      bool              `json:"valid"`
	Properties []filter.Property `json:"properties,omitempty"`
}

// FilterGroupResponse wraps a rewritten filter tree
type FilterGroupResponse struct {
	Group *filter.Group `json:"group"`
	Valid *bool         `json:"valid,omitempty"`
}

// SerializeRequest holds a property list, or bare operator and option
// lists, to flatten into strings
type SerializeRequest struct {
	Properties []filter.Property `json:"properties"`
	Operators  []filter.Choice   `json:"operators"`
	Options    []filter.Choice   `json:"options"`
}

// SerializedProperty is a property with its choices flattened. Options is
// omitted when the property offers none.
type SerializedProperty struct {
	Name      string              `json:"name"`
	Label     string              `json:"label"`
	Type      filter.PropertyType `json:"type"`
	Operators []string            `json:"operators"`
	Options   []string            `json:"options,omitempty"`
}

// SerializeResponse is the result of a serialize call
type SerializeResponse struct {
	Properties []SerializedProperty `json:"properties,omitempty"`
	Operators  []string             `json:"operators,omitempty"`
	Options    []string             `json:"options,omitempty"`
}

// WhereRequest is a filter tree to render as SQL
type WhereRequest struct {
	FilterRequest
	Offset int `json:"offset"`
}

// EditRequest applies one path edit to a filter tree. The property schema,
// when given, limits which properties a new condition may name.
type EditRequest struct {
	FilterRequest
	Edit filter.Edit `json:"edit"`
}

// decodeGroup decodes the top-level filter node, which must be a group.
// A missing node is an empty AND group.
func decodeGroup(raw json.RawMessage) (*filter.Group, error) {
	return filter.ParseGroup(raw)
}

// tableProperties builds the filter schema of a cached table
func (s *Server) tableProperties(ctx context.Context, schema, table string) ([]filter.Property, error) {
	if s.schema == nil {
		return nil, database.ErrDisabled
	}
	if schema == "" {
		schema = "public"
	}

	info, ok, err := s.schema.GetTable(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, database.ErrTableNotFound
	}
	return filter.PropertiesFromColumns(info.Columns), nil
}

// resolveProperties returns the request's property schema. It writes the
// error response itself and returns ok=false when it cannot.
func (s *Server) resolveProperties(c *fiber.Ctx, req *FilterRequest) ([]filter.Property, bool, error) {
	if len(req.Properties) > 0 || !req.hasTable() {
		return req.Properties, true, nil
	}

	props, err := s.tableProperties(c.UserContext(), req.Schema, req.Table)
	if err != nil {
		return nil, false, handleDatabaseError(c, err, "load table properties")
	}
	return props, true, nil
}

// handleValidateFilter checks a filter tree against a property schema
func (s *Server) handleValidateFilter(c *fiber.Ctx) error {
	var req FilterRequest
	if err := c.BodyParser(&req); err != nil {
		return sendBadBody(c, err)
	}

	group, err := decodeGroup(req.Group)
	if err != nil {
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid filter", "INVALID_FILTER", err.Error(), "", nil)
	}

	props, ok, err := s.resolveProperties(c, &req)
	if !ok {
		return err
	}

	_, span := observability.StartOperationSpan(c.UserContext(), "filter", "validate")
	valid := filter.ValidateFilterGroup(group, props)
	span.SetAttributes(attribute.Bool("filter.valid", valid), attribute.Int("filter.properties", len(props)))
	observability.EndSpan(span, nil)

	s.metrics.RecordFilterValidation(valid)

	resp := ValidateFilterResponse{Valid: valid}
	if req.hasTable() && len(req.Properties) == 0 {
		resp.Properties = props
	}
	return c.JSON(resp)
}

// handleNormalizeFilter forces AND at every level of a filter tree
func (s *Server) handleNormalizeFilter(c *fiber.Ctx) error {
	var req FilterRequest
	if err := c.BodyParser(&req); err != nil {
		return sendBadBody(c, err)
	}

	group, err := decodeGroup(req.Group)
	if err != nil {
		s.metrics.RecordFilterNormalize("enforce_and", err)
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid filter", "INVALID_FILTER", err.Error(), "", nil)
	}

	_, span := observability.StartOperationSpan(c.UserContext(), "filter", "enforce_and")
	normalized := filter.EnforceAndLogicalOperator(group)
	observability.EndSpan(span, nil)

	s.metrics.RecordFilterNormalize("enforce_and", nil)
	return c.JSON(FilterGroupResponse{Group: normalized})
}

// handleNormalizeGenerated fills defaults into a machine-generated filter
// tree and rejects references to unknown properties
func (s *Server) handleNormalizeGenerated(c *fiber.Ctx) error {
	var req FilterRequest
	if err := c.BodyParser(&req); err != nil {
		return sendBadBody(c, err)
	}

	group, err := decodeGroup(req.Group)
	if err != nil {
		s.metrics.RecordFilterNormalize("generated", err)
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid filter", "INVALID_FILTER", err.Error(), "", nil)
	}

	props, ok, err := s.resolveProperties(c, &req)
	if !ok {
		return err
	}

	_, span := observability.StartOperationSpan(c.UserContext(), "filter", "generated")
	normalized, err := filter.NormalizeGenerated(group, props)
	observability.EndSpan(span, err)
	s.metrics.RecordFilterNormalize("generated", err)
	if err != nil {
		return SendErrorWithDetails(c, fiber.StatusUnprocessableEntity, "Generated filter does not match the schema",
			"INVALID_GENERATED_FILTER", err.Error(), "Only reference properties present in the schema", nil)
	}

	valid := filter.ValidateFilterGroup(normalized, props)
	return c.JSON(FilterGroupResponse{Group: normalized, Valid: &valid})
}

// handleSerialize flattens operator and option lists into strings
func (s *Server) handleSerialize(c *fiber.Ctx) error {
	var req SerializeRequest
	if err := c.BodyParser(&req); err != nil {
		return sendBadBody(c, err)
	}

	if len(req.Properties) == 0 {
		return c.JSON(SerializeResponse{
			Operators: filter.SerializeOperators(req.Operators),
			Options:   filter.SerializeOptions(req.Options),
		})
	}

	out := make([]SerializedProperty, 0, len(req.Properties))
	for _, p := range req.Properties {
		out = append(out, SerializedProperty{
			Name:      p.Name,
			Label:     p.Label,
			Type:      p.Type,
			Operators: filter.SerializeOperators(p.Operators),
			Options:   filter.SerializeOptions(p.Options),
		})
	}
	return c.JSON(SerializeResponse{Properties: out})
}

// handleBuildWhere renders a filter tree as a parameterized predicate. When
// a property schema is available the tree must validate against it first.
func (s *Server) handleBuildWhere(c *fiber.Ctx) error {
	var req WhereRequest
	if err := c.BodyParser(&req); err != nil {
		return sendBadBody(c, err)
	}

	group, err := decodeGroup(req.Group)
	if err != nil {
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid filter", "INVALID_FILTER", err.Error(), "", nil)
	}

	props, ok, err := s.resolveProperties(c, &req.FilterRequest)
	if !ok {
		return err
	}
	if len(props) > 0 {
		valid := filter.ValidateFilterGroup(group, props)
		s.metrics.RecordFilterValidation(valid)
		if !valid {
			return SendErrorWithCode(c, fiber.StatusUnprocessableEntity, "Filter does not match the schema", "INVALID_FILTER")
		}
	}

	_, span := observability.StartOperationSpan(c.UserContext(), "filter", "where")
	clause, err := query.BuildWhereFrom(group, req.Offset)
	observability.EndSpan(span, err)
	if err != nil {
		return SendErrorWithDetails(c, fiber.StatusUnprocessableEntity, "Filter cannot be rendered as SQL", "UNSUPPORTED_FILTER",
			err.Error(), "", nil)
	}
	return c.JSON(clause)
}

// handleEditFilter applies one path edit to a filter tree
func (s *Server) handleEditFilter(c *fiber.Ctx) error {
	var req EditRequest
	if err := decodeKeepingNumbers(c.Body(), &req); err != nil {
		return sendBadBody(c, err)
	}

	group, err := decodeGroup(req.Group)
	if err != nil {
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid filter", "INVALID_FILTER", err.Error(), "", nil)
	}

	props, ok, err := s.resolveProperties(c, &req.FilterRequest)
	if !ok {
		return err
	}

	_, span := observability.StartOperationSpan(c.UserContext(), "filter", "edit")
	span.SetAttributes(attribute.String("filter.edit", string(req.Edit.Op)))
	edited, err := filter.ApplyEdit(group, req.Edit, props)
	observability.EndSpan(span, err)
	s.metrics.RecordFilterNormalize("edit", err)
	if err != nil {
		status := fiber.StatusUnprocessableEntity
		if errors.Is(err, filter.ErrUnknownEdit) {
			status = fiber.StatusBadRequest
		}
		return SendErrorWithDetails(c, status, "Filter edit cannot be applied", "INVALID_EDIT", err.Error(), "", nil)
	}

	resp := FilterGroupResponse{Group: edited}
	if len(props) > 0 {
		valid := filter.ValidateFilterGroup(edited, props)
		resp.Valid = &valid
	}
	return c.JSON(resp)
}
