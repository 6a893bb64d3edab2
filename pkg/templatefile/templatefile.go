// Package templatefile reads and writes whole workflow template trees as YAML documents.
//
// A document carries operator-supplied values only. Derived budgets (milestone SLA from
// tasks, workflow duration from milestones) are recomputed when the tree is imported.
package templatefile

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Version is the document format written by Encode.
const Version = 1

// ErrInvalidDocument is returned for documents that do not parse or fail the schema.
var ErrInvalidDocument = errors.New("invalid template document")

//go:embed schema.json
var schemaJSON []byte

var schema = mustLoadSchema()

func mustLoadSchema() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("templatefile: invalid embedded schema: %v", err))
	}

	return s
}

type Document struct {
	Version  int      `yaml:"version"`
	Workflow Workflow `yaml:"workflow"`
}

type Workflow struct {
	Name                  string      `yaml:"name"`
	Description           string      `yaml:"description,omitempty"`
	Code                  string      `yaml:"code,omitempty"`
	Active                *bool       `yaml:"active,omitempty"`
	EstimatedDurationDays *int        `yaml:"estimated_duration_days,omitempty"`
	Milestones            []Milestone `yaml:"milestones,omitempty"`
}

type Milestone struct {
	Name                  string `yaml:"name"`
	Description           string `yaml:"description,omitempty"`
	EstimatedDurationDays *int   `yaml:"estimated_duration_days,omitempty"`
	SLADays               *int   `yaml:"sla_days,omitempty"`
	WarningDays           *int   `yaml:"warning_days,omitempty"`
	EscalationDays        *int   `yaml:"escalation_days,omitempty"`
	Type                  string `yaml:"type,omitempty"`
	AutoGenerateTickets   bool   `yaml:"auto_generate_tickets,omitempty"`
	Tasks                 []Task `yaml:"tasks,omitempty"`
}

type Task struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description,omitempty"`
	EstimatedHours  *int     `yaml:"estimated_hours,omitempty"`
	ResponsibleRole string   `yaml:"responsible_role,omitempty"`
	Mandatory       *bool    `yaml:"mandatory,omitempty"`
	Type            string   `yaml:"type,omitempty"`
	Checklist       []string `yaml:"checklist,omitempty"`
}

// Decode parses a YAML (or JSON) document, validates it against the embedded schema and
// returns the template tree it describes. Identifiers are left empty.
func Decode(data []byte) (*models.WorkflowTemplate, error) {
	var generic any

	err := yaml.Unmarshal(data, &generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(generic))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(problems, "; "))
	}

	var doc Document

	err = yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return doc.Tree(), nil
}

// Encode writes tree as a YAML document. Milestones and tasks are written in slice order.
func Encode(tree *models.WorkflowTemplate) ([]byte, error) {
	return yaml.Marshal(FromTree(tree))
}

// Tree converts the document into an unsaved template tree.
func (d *Document) Tree() *models.WorkflowTemplate {
	active := true
	if d.Workflow.Active != nil {
		active = *d.Workflow.Active
	}

	tree := &models.WorkflowTemplate{
		Name:                 d.Workflow.Name,
		Description:          d.Workflow.Description,
		Code:                 d.Workflow.Code,
		Active:               active,
		OperatorDurationDays: d.Workflow.EstimatedDurationDays,
		Milestones:           make([]*models.MilestoneTemplate, 0, len(d.Workflow.Milestones)),
	}

	for _, m := range d.Workflow.Milestones {
		milestone := &models.MilestoneTemplate{
			Name:                  m.Name,
			Description:           m.Description,
			EstimatedDurationDays: m.EstimatedDurationDays,
			OperatorSLADays:       m.SLADays,
			WarningDays:           intOr(m.WarningDays, models.DefaultWarningDays),
			EscalationDays:        intOr(m.EscalationDays, models.DefaultEscalationDays),
			MilestoneType:         models.MilestoneType(m.Type),
			AutoGenerateTickets:   m.AutoGenerateTickets,
			Tasks:                 make([]*models.TaskTemplate, 0, len(m.Tasks)),
		}

		for _, t := range m.Tasks {
			mandatory := true
			if t.Mandatory != nil {
				mandatory = *t.Mandatory
			}

			checklist := t.Checklist
			if checklist == nil {
				checklist = []string{}
			}

			milestone.Tasks = append(milestone.Tasks, &models.TaskTemplate{
				Name:              t.Name,
				Description:       t.Description,
				EstimatedHours:    t.EstimatedHours,
				ResponsibleRole:   t.ResponsibleRole,
				Mandatory:         mandatory,
				TaskType:          models.TaskType(t.Type),
				ChecklistTemplate: checklist,
			})
		}

		tree.Milestones = append(tree.Milestones, milestone)
	}

	return tree
}

// FromTree builds a document from a stored tree, keeping operator values only.
func FromTree(tree *models.WorkflowTemplate) *Document {
	active := tree.Active

	doc := &Document{
		Version: Version,
		Workflow: Workflow{
			Name:                  tree.Name,
			Description:           tree.Description,
			Code:                  tree.Code,
			Active:                &active,
			EstimatedDurationDays: tree.OperatorDurationDays,
		},
	}

	for _, m := range tree.Milestones {
		milestone := Milestone{
			Name:                  m.Name,
			Description:           m.Description,
			EstimatedDurationDays: m.EstimatedDurationDays,
			SLADays:               m.OperatorSLADays,
			WarningDays:           models.IntPtr(m.WarningDays),
			EscalationDays:        models.IntPtr(m.EscalationDays),
			Type:                  string(m.MilestoneType),
			AutoGenerateTickets:   m.AutoGenerateTickets,
		}

		for _, t := range m.Tasks {
			mandatory := t.Mandatory

			milestone.Tasks = append(milestone.Tasks, Task{
				Name:            t.Name,
				Description:     t.Description,
				EstimatedHours:  t.EstimatedHours,
				ResponsibleRole: t.ResponsibleRole,
				Mandatory:       &mandatory,
				Type:            string(t.TaskType),
				Checklist:       t.ChecklistTemplate,
			})
		}

		doc.Workflow.Milestones = append(doc.Workflow.Milestones, milestone)
	}

	return doc
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}

	return *v
}
