package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/heatmap-webhooks/endpoints"
)

/* validate-endpoints - Standalone CLI tool to validate endpoints.yaml
 * Usage: go run cmd/validate-endpoints/main.go [endpoints.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	endpointsFile := "endpoints.yaml"
	if len(os.Args) > 1 {
		endpointsFile = os.Args[1]
	}

	fmt.Printf("Validating endpoints file: %s\n", endpointsFile)
	fmt.Println(strings.Repeat("-", 50))

	loader := endpoints.NewLoader()
	if err := loader.Load(endpointsFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	classes := loader.List()
	def := loader.Default()
	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Window:        %s\n", loader.Window())
	fmt.Printf("Skip paths:    %s\n", strings.Join(loader.SkipPaths(), ", "))
	fmt.Printf("Default class: %s (%d req/window)\n", def.Name, def.Ceiling)
	fmt.Printf("\nLoaded %d class(es):\n", len(classes))

	for i, class := range classes {
		methods := "any"
		if len(class.Methods) > 0 {
			methods = strings.Join(class.Methods, ", ")
		}
		fmt.Printf("\n%d. Class: %s\n", i+1, class.Name)
		fmt.Printf("   Path prefix: %s\n", class.PathPrefix)
		fmt.Printf("   Methods:     %s\n", methods)
		fmt.Printf("   Ceiling:     %d\n", class.Ceiling)
	}

	fmt.Printf("\n✓ All endpoint classes are valid!\n")
	os.Exit(0)
}
