package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/pkg/auth"
)

// EntityCreator is the part of the entity service demo seeding needs.
type EntityCreator interface {
	CreateEntity(ctx context.Context, kind models.EntityKind, input models.EntityInput, user *auth.UserSession) (*models.EntityDetail, error)
}

// TemplateFinder looks templates up by name.
type TemplateFinder interface {
	ListTemplates(ctx context.Context) ([]*models.Template, error)
}

type demoEntity struct {
	kind       models.EntityKind
	name       string
	owner      string
	template   string
	startAgo   time.Duration
	attributes map[string]interface{}
}

var demoEntities = []demoEntity{
	{models.EntityKindLead, "Acme Corp", "sam", "Lead Pipeline", 72 * time.Hour, map[string]interface{}{"segment": "enterprise"}},
	{models.EntityKindLead, "Globex", "sam", "Lead Pipeline", 24 * time.Hour, map[string]interface{}{"segment": "smb"}},
	{models.EntityKindFundRaise, "Series A", "dana", "VC Fundraise", 14 * 24 * time.Hour, nil},
	{models.EntityKindFinOps, "March close", "dana", "Month-End Close", 48 * time.Hour, map[string]interface{}{"entities": 3}},
}

// SeedDemoData creates a few entities from the seeded templates so the in-memory
// fallback store has something to show. Entities whose template is missing are skipped.
func SeedDemoData(ctx context.Context, finder TemplateFinder, creator EntityCreator, user *auth.UserSession) (int, error) {
	all, err := finder.ListTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("demo seed: list templates: %w", err)
	}
	byName := make(map[string]int64, len(all))
	for _, tmpl := range all {
		byName[tmpl.Name] = tmpl.ID
	}

	created := 0
	now := time.Now().UTC().Truncate(time.Second)
	for _, demo := range demoEntities {
		templateID, ok := byName[demo.template]
		if !ok {
			log.Warn("⚠️  Demo template missing, skipping entity", "template", demo.template, "entity", demo.name)
			continue
		}
		id := templateID
		start := now.Add(-demo.startAgo)

		detail, err := creator.CreateEntity(ctx, demo.kind, models.EntityInput{
			Name:        demo.name,
			Owner:       demo.owner,
			TemplateID:  &id,
			StartDate:   &start,
			Attributes:  demo.attributes,
			Instantiate: true,
		}, user)
		if err != nil {
			return created, fmt.Errorf("demo seed %s: %w", demo.name, err)
		}
		created++
		log.Info("🌱 Demo entity seeded", "kind", demo.kind, "name", demo.name, "steps", len(detail.Steps))
	}
	return created, nil
}
