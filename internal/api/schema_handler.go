package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/supabase/supabase-sub056/internal/database"
	"github.com/supabase/supabase-sub056/internal/filter"
	"github.com/supabase/supabase-sub056/internal/sqlident"
)

// TableSummary lists a cached table without its columns. Qualified is the
// name as it must be written in SQL.
type TableSummary struct {
	Schema    string `json:"schema"`
	Name      string `json:"name"`
	Qualified string `json:"qualified"`
	Type      string `json:"type"`
	Columns   int    `json:"columns"`
}

// TablePropertiesResponse is the filter schema derived from a table
type TablePropertiesResponse struct {
	Schema     string            `json:"schema"`
	Table      string            `json:"table"`
	Qualified  string            `json:"qualified"`
	Properties []filter.Property `json:"properties"`
}

func (s *Server) handleListTables(c *fiber.Ctx) error {
	if s.schema == nil {
		return handleDatabaseError(c, database.ErrDisabled, "list tables")
	}

	tables, err := s.schema.GetAllTables(c.UserContext())
	if err != nil {
		return handleDatabaseError(c, err, "list tables")
	}

	only := c.Query("schema")
	out := make([]TableSummary, 0, len(tables))
	for _, t := range tables {
		if only != "" && t.Schema != only {
			continue
		}
		out = append(out, TableSummary{
			Schema:    t.Schema,
			Name:      t.Name,
			Qualified: sqlident.QuoteQualified(t.Schema, t.Name),
			Type:      t.Type,
			Columns:   len(t.Columns),
		})
	}
	return c.JSON(out)
}

func (s *Server) handleTableProperties(c *fiber.Ctx) error {
	schema := c.Params("schema")
	table := c.Params("table")

	props, err := s.tableProperties(c.UserContext(), schema, table)
	if err != nil {
		return handleDatabaseError(c, err, "load table properties")
	}

	return c.JSON(TablePropertiesResponse{
		Schema:     schema,
		Table:      table,
		Qualified:  sqlident.QuoteQualified(schema, table),
		Properties: props,
	})
}

// handleRefreshSchema reloads the table metadata cache
func (s *Server) handleRefreshSchema(c *fiber.Ctx) error {
	if s.schema == nil {
		return handleDatabaseError(c, database.ErrDisabled, "refresh schema cache")
	}

	if err := s.schema.Refresh(c.UserContext()); err != nil {
		return handleDatabaseError(c, err, "refresh schema cache")
	}

	tables := s.schema.TableCount()
	log.Info().Int("tables", tables).Str("request_id", getRequestID(c)).Msg("Schema cache refreshed on request")

	if s.notifier != nil {
		if err := s.notifier.NotifyRefresh(c.UserContext(), tables); err != nil {
			log.Warn().Err(err).Msg("Failed to announce schema refresh")
		}
	}
	return c.JSON(fiber.Map{"tables": tables})
}
