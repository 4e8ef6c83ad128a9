// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// LoadRegistry reads and parses the activity registry at path.
func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// FindByTaskType returns the activity subscribed to the given task type,
// or nil when the registry does not list it.
func (r *ActivityRegistry) FindByTaskType(taskType string) *Activity {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i]
		}
	}
	return nil
}

// FindByID returns the activity with the given id, or nil.
func (r *ActivityRegistry) FindByID(id string) *Activity {
	for i := range r.Activities {
		if r.Activities[i].ID == id {
			return &r.Activities[i]
		}
	}
	return nil
}

// TaskTypes lists the task types of every registered activity.
func (r *ActivityRegistry) TaskTypes() []string {
	types := make([]string, 0, len(r.Activities))
	for i := range r.Activities {
		types = append(types, r.Activities[i].TaskType)
	}
	return types
}

// Validate checks the registry for structural problems: missing required
// fields and duplicate ids or task types.
func (r *ActivityRegistry) Validate() error {
	seenIDs := make(map[string]bool, len(r.Activities))
	seenTypes := make(map[string]bool, len(r.Activities))

	for i := range r.Activities {
		a := &r.Activities[i]
		if a.ID == "" {
			return fmt.Errorf("activity %d has no id", i)
		}
		if a.TaskType == "" {
			return fmt.Errorf("activity %s has no taskType", a.ID)
		}
		if seenIDs[a.ID] {
			return fmt.Errorf("duplicate activity id %s", a.ID)
		}
		if seenTypes[a.TaskType] {
			return fmt.Errorf("duplicate task type %s", a.TaskType)
		}
		seenIDs[a.ID] = true
		seenTypes[a.TaskType] = true
	}
	return nil
}

// ValidateActivityInput checks job variables against the activity's declared
// input schema. A nil or empty schema accepts anything.
func ValidateActivityInput(activity *Activity, input map[string]interface{}) error {
	if activity == nil {
		return fmt.Errorf("activity is nil")
	}
	if len(activity.InputSchema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(activity.InputSchema)
	documentLoader := gojsonschema.NewGoLoader(input)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validate input for %s: %w", activity.ID, err)
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return fmt.Errorf("input for %s invalid: %s", activity.ID, strings.Join(messages, "; "))
	}
	return nil
}
