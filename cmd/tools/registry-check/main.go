// cmd/tools/registry-check/main.go
//
// Validates the activity registry and optionally checks a sample input
// document against one activity's input schema:
//
//	registry-check -path configs/registry.json
//	registry-check -path configs/registry.json -task intake.note.parse -input sample.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"crm-intake-workers/pkg/registry"
)

func main() {
	path := flag.String("path", "configs/registry.json", "Path to the activity registry")
	taskType := flag.String("task", "", "Task type to check a sample input against")
	inputPath := flag.String("input", "", "Path to a JSON document of job variables")
	flag.Parse()

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load registry: %v\n", err)
		os.Exit(1)
	}

	if err := reg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "registry invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("registry ok: %d activities\n", len(reg.Activities))
	for _, a := range reg.Activities {
		fmt.Printf("  %-28s %-24s %s\n", a.ID, a.TaskType, a.ImplementationStatus)
	}

	if *taskType == "" {
		return
	}

	activity := reg.FindByTaskType(*taskType)
	if activity == nil {
		fmt.Fprintf(os.Stderr, "task type %s not registered\n", *taskType)
		os.Exit(1)
	}

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "-input is required when -task is given")
		os.Exit(1)
	}

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read input: %v\n", err)
		os.Exit(1)
	}

	var input map[string]interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		fmt.Fprintf(os.Stderr, "input is not a JSON object: %v\n", err)
		os.Exit(1)
	}

	if err := registry.ValidateActivityInput(activity, input); err != nil {
		fmt.Fprintf(os.Stderr, "input rejected: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("input valid for %s\n", activity.ID)
}
