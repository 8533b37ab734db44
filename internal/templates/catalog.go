// Package templates loads template definitions from YAML files and seeds them
// into the template store.
package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/pkg/auth"
	"gopkg.in/yaml.v3"
)

// Definition is the on-disk shape of one template.
type Definition struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	CategoryID  *int64           `yaml:"category_id,omitempty"`
	Active      *bool            `yaml:"active,omitempty"`
	Steps       []StepDefinition `yaml:"steps"`
}

// StepDefinition is one step blueprint in a template file. Steps keep file order.
type StepDefinition struct {
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description,omitempty"`
	ETADays            int      `yaml:"eta_days,omitempty"`
	SLAHours           *int     `yaml:"sla_hours,omitempty"`
	SLAMinutes         *int     `yaml:"sla_minutes,omitempty"`
	AssignedRole       string   `yaml:"assigned_role,omitempty"`
	RequiredDocuments  []string `yaml:"required_documents,omitempty"`
	ApprovalRequired   bool     `yaml:"approval_required,omitempty"`
	ParallelExecution  bool     `yaml:"parallel_execution,omitempty"`
	ProbabilityPercent float64  `yaml:"probability,omitempty"`
	When               string   `yaml:"when,omitempty"`
}

// DefinitionFile pairs a parsed definition with its source path.
type DefinitionFile struct {
	Definition Definition
	Path       string
}

// Input converts the definition into the template store's input.
func (d Definition) Input() models.TemplateInput {
	steps := make([]models.TemplateStep, len(d.Steps))
	for i, s := range d.Steps {
		docs := s.RequiredDocuments
		if docs == nil {
			docs = []string{}
		}
		steps[i] = models.TemplateStep{
			StepOrder:          i + 1,
			Name:               s.Name,
			Description:        s.Description,
			DefaultETADays:     s.ETADays,
			SLAHours:           s.SLAHours,
			SLAMinutes:         s.SLAMinutes,
			AssignedRole:       s.AssignedRole,
			RequiredDocuments:  docs,
			ApprovalRequired:   s.ApprovalRequired,
			ParallelExecution:  s.ParallelExecution,
			ProbabilityPercent: s.ProbabilityPercent,
			EntryCondition:     s.When,
		}
	}
	return models.TemplateInput{
		Name:        d.Name,
		Description: d.Description,
		CategoryID:  d.CategoryID,
		IsActive:    d.Active,
		Steps:       steps,
	}
}

// ParseDefinitionYAML decodes a single template definition.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("template: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("template: decode definition: %w", err)
	}
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return Definition{}, fmt.Errorf("template: name is required")
	}
	if len(def.Steps) == 0 {
		return Definition{}, fmt.Errorf("template %q: at least one step is required", def.Name)
	}
	return def, nil
}

// LoadDefinitionDir parses every *.yaml / *.yml file in dir, sorted by file name.
// A missing directory yields no definitions.
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("template: read %s: %w", trimmed, err)
	}

	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(trimmed, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("template: read %s: %w", path, err)
		}
		def, err := ParseDefinitionYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defs = append(defs, DefinitionFile{Definition: def, Path: filepath.Clean(path)})
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Store is the part of the template service the seeder needs.
type Store interface {
	UpsertByName(ctx context.Context, input models.TemplateInput, user *auth.UserSession) (*models.Template, bool, error)
}

// SeedResult counts what a seed run did.
type SeedResult struct {
	Created int
	Updated int
}

// SeedFromDir upserts every template definition in dir by name.
func SeedFromDir(ctx context.Context, store Store, dir string, user *auth.UserSession) (SeedResult, error) {
	var result SeedResult

	defs, err := LoadDefinitionDir(dir)
	if err != nil {
		return result, err
	}
	if len(defs) == 0 {
		log.Warn("⚠️  No template definitions found", "dir", dir)
		return result, nil
	}

	for _, file := range defs {
		tmpl, created, err := store.UpsertByName(ctx, file.Definition.Input(), user)
		if err != nil {
			return result, fmt.Errorf("seed %s: %w", file.Path, err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		log.Info("📋 Template seeded", "name", tmpl.Name, "id", tmpl.ID, "created", created)
	}
	return result, nil
}
