package api

import (
	"context"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/supabase/supabase-sub056/internal/database"
	"github.com/supabase/supabase-sub056/internal/observability"
	"github.com/supabase/supabase-sub056/internal/sqlident"
)

// IdentifiersRequest is a statement to extract identifiers from
type IdentifiersRequest struct {
	SQL string `json:"sql"`
}

// IdentifiersResponse lists identifiers in parse-tree order, duplicates included
type IdentifiersResponse struct {
	Identifiers []string `json:"identifiers"`
}

// QuotingRequest asks which identifiers a statement references without the
// quotes they need. Known identifiers come from the request and, when
// Introspect is set, from every cached table and column name.
type QuotingRequest struct {
	SQL         string   `json:"sql"`
	Identifiers []string `json:"identifiers"`
	Introspect  bool     `json:"introspect"`
}

// IdentifierStatus describes one known identifier
type IdentifierStatus struct {
	Identifier   string `json:"identifier"`
	NeedsQuoting bool   `json:"needs_quoting"`
	QuotedInSQL  bool   `json:"quoted_in_sql"`
	Suggested    string `json:"suggested"`
}

// QuotingResponse combines per-identifier status and the statement check
type QuotingResponse struct {
	Known  []IdentifierStatus      `json:"known"`
	Report *sqlident.QuotingReport `json:"report"`
}

func (s *Server) handleIdentifiers(c *fiber.Ctx) error {
	var req IdentifiersRequest
	if err := c.BodyParser(&req); err != nil {
		return sendBadBody(c, err)
	}
	if strings.TrimSpace(req.SQL) == "" {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "sql is required", "MISSING_SQL")
	}

	_, span := observability.StartOperationSpan(c.UserContext(), "sql", "identifiers")
	ids, err := sqlident.ParseIdentifiers(req.SQL)
	span.SetAttributes(attribute.Int("sql.identifiers", len(ids)))
	observability.EndSpan(span, err)

	s.metrics.RecordSQLParse(len(ids), err)
	if err != nil {
		return handleSQLParseError(c, err)
	}

	if ids == nil {
		ids = []string{}
	}
	return c.JSON(IdentifiersResponse{Identifiers: ids})
}

func (s *Server) handleQuoting(c *fiber.Ctx) error {
	var req QuotingRequest
	if err := c.BodyParser(&req); err != nil {
		return sendBadBody(c, err)
	}
	if strings.TrimSpace(req.SQL) == "" {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "sql is required", "MISSING_SQL")
	}

	known := req.Identifiers
	if req.Introspect {
		names, err := s.knownIdentifiers(c.UserContext())
		if err != nil {
			return handleDatabaseError(c, err, "load identifiers")
		}
		known = append(append([]string{}, known...), names...)
	}

	_, span := observability.StartOperationSpan(c.UserContext(), "sql", "quoting")
	report, err := sqlident.CheckQuoting(req.SQL, known)
	observability.EndSpan(span, err)

	if err != nil {
		s.metrics.RecordSQLParse(0, err)
		return handleSQLParseError(c, err)
	}
	s.metrics.RecordSQLParse(len(report.Identifiers), nil)
	s.metrics.RecordQuotingIssues(len(report.Issues))

	statuses := make([]IdentifierStatus, 0, len(req.Identifiers))
	for _, id := range req.Identifiers {
		statuses = append(statuses, IdentifierStatus{
			Identifier:   id,
			NeedsQuoting: sqlident.NeedsQuoting(id),
			QuotedInSQL:  sqlident.IsQuotedInSQL(req.SQL, id),
			Suggested:    sqlident.QuoteIfNeeded(id),
		})
	}

	return c.JSON(QuotingResponse{Known: statuses, Report: report})
}

// knownIdentifiers returns the distinct table and column names in the cache
func (s *Server) knownIdentifiers(ctx context.Context) ([]string, error) {
	if s.schema == nil {
		return nil, database.ErrDisabled
	}

	tables, err := s.schema.GetAllTables(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, t := range tables {
		seen[t.Name] = true
		for _, col := range t.Columns {
			seen[col.Name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
