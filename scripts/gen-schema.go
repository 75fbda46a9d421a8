//go:build ignore

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

func writeSchema(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func main() {
	if err := writeSchema("schemas/template-v0.json", schema.GenerateTemplateJSONSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/template-v0.json")

	if err := writeSchema("schemas/policy-v0.json", schema.GeneratePolicyJSONSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/policy-v0.json")

	if err := writeSchema("schemas/snapshot-v0.json", schema.GenerateSnapshotJSONSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/snapshot-v0.json")
}
