package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/identity"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Statement is one parameterized Cypher statement.
type Statement struct {
	Cypher string
	Params map[string]any
}

// Writer executes statements atomically.
type Writer interface {
	ExecuteWrite(ctx context.Context, statements []Statement) error
}

const (
	upsertContactCypher = `
		MERGE (c:Contact {id: $id})
		SET c.email = $email,
			c.phone_number = $phone_number,
			c.link_precedence = $link_precedence,
			c.created_at = $created_at,
			c.updated_at = $updated_at`

	// A contact links to at most one primary, so any previous edge is replaced.
	relinkContactCypher = `
		MATCH (c:Contact {id: $id})
		OPTIONAL MATCH (c)-[old:LINKED_TO]->()
		DELETE old
		WITH DISTINCT c
		MATCH (p:Contact {id: $primary_id})
		MERGE (c)-[:LINKED_TO]->(p)`

	unlinkContactCypher = `
		MATCH (c:Contact {id: $id})-[old:LINKED_TO]->()
		DELETE old`

	contactIndexCypher = `CREATE INDEX ON :Contact(id)`
)

// Projector mirrors committed clusters as Contact nodes with LINKED_TO edges from each
// secondary to its primary.
type Projector struct {
	writer Writer
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(writer Writer, logger ectologger.Logger) *Projector {
	return &Projector{
		writer: writer,
		logger: logger,
	}
}

func (p *Projector) Name() string { return "graph" }

// EnsureSchema creates the Contact id index.
func (p *Projector) EnsureSchema(ctx context.Context, client *Client) error {
	if err := client.Run(ctx, Statement{Cypher: contactIndexCypher}); err != nil {
		return fmt.Errorf("failed to create contact index: %w", err)
	}
	return nil
}

// OnIdentified projects every contact the call touched.
func (p *Projector) OnIdentified(ctx context.Context, outcome *identity.Outcome) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.OnIdentified")
	defer span.End()

	statements := Statements(outcome)
	if len(statements) == 0 {
		return nil
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_contact_id": outcome.Primary.ID,
		"statements":         len(statements),
	})

	if err := p.writer.ExecuteWrite(ctx, statements); err != nil {
		tracing.RecordError(span, err)
		log.WithError(err).Error("Failed to project contacts into graph")
		return fmt.Errorf("failed to project contacts into graph: %w", err)
	}

	log.Debug("Projected contacts into graph")
	return nil
}

// Statements returns the writes for outcome: the primary first, then every other touched
// contact relinked to it. Unchanged outcomes produce none.
func Statements(outcome *identity.Outcome) []Statement {
	if outcome.Kind() == identity.OutcomeUnchanged {
		return nil
	}

	primary := outcome.Primary
	statements := []Statement{upsertStatement(primary)}
	if outcome.Promoted {
		statements = append(statements, Statement{
			Cypher: unlinkContactCypher,
			Params: map[string]any{"id": primary.ID},
		})
	}

	seen := map[int64]bool{primary.ID: true}
	link := func(c models.Contact) {
		if seen[c.ID] {
			return
		}
		seen[c.ID] = true
		statements = append(statements,
			upsertStatement(c),
			Statement{
				Cypher: relinkContactCypher,
				Params: map[string]any{"id": c.ID, "primary_id": primary.ID},
			},
		)
	}

	for _, c := range outcome.Demoted {
		link(c)
	}
	for _, c := range outcome.Repointed {
		link(c)
	}
	if outcome.Created != nil {
		link(*outcome.Created)
	}

	return statements
}

func upsertStatement(c models.Contact) Statement {
	return Statement{
		Cypher: upsertContactCypher,
		Params: map[string]any{
			"id":              c.ID,
			"email":           deref(c.Email),
			"phone_number":    deref(c.PhoneNumber),
			"link_precedence": string(c.LinkPrecedence),
			"created_at":      c.CreatedAt.UTC().Format(time.RFC3339),
			"updated_at":      c.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
