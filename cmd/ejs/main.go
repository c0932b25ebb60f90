// Command ejs renders and inspects embedded-script templates from the
// command line.
//
// Usage:
//
//	# Render a template with locals from a YAML or JSON file
//	ejs render page.ejs --locals page.yaml
//
//	# Set individual string locals and write the result atomically
//	ejs render page.ejs --set title=Home --out page.html
//
//	# Print the program generated for a template
//	ejs parse page.ejs
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
