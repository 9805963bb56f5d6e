// Package diagram turns a natural-language architecture request into a PNG
// by asking a model for Python "diagrams" code, repairing it and running it.
package diagram

import (
	"regexp"
	"strings"
)

// ProcessCode cleans model output and returns the code together with the
// PNG file name the script will write. The name comes from the first
// "with Diagram(" line, or from its filename= argument when present; it is
// empty when the code opens no diagram.
//
// Stray completion markers are blanked, and top-level "diag." statements
// outside the diagram block are dropped.
func ProcessCode(code string) (string, string) {
	lines := strings.Split(code, "\n")
	kept := make([]string, 0, len(lines))
	var filename string
	inside := false

	for _, line := range lines {
		switch {
		case line == ".", line == "```":
			line = ""
		case strings.Contains(line, "endoftext"), strings.Contains(line, "# In["):
			line = ""
		}

		if strings.Contains(line, "with Diagram(") {
			line = strings.ReplaceAll(line, "/", "_")
			filename = diagramFilename(line)
			inside = true
		}
		if inside && strings.TrimSpace(line) == "" {
			inside = false
		}
		if inside || !strings.HasPrefix(strings.TrimSpace(line), "diag.") {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), filename
}

var filenameReplacer = strings.NewReplacer(" ", "_", ")", "", `"`, "", "/", "_", ":", "")

// diagramFilename derives the output file name from a "with Diagram(" line.
func diagramFilename(line string) string {
	_, args, _ := strings.Cut(line, "with Diagram(")
	if _, rest, ok := strings.Cut(args, "filename="); ok {
		end := strings.IndexAny(rest, ",)")
		if end >= 0 {
			rest = rest[:end]
		}
		return unquote(strings.TrimSpace(rest)) + ".png"
	}
	name, _, _ := strings.Cut(args, ",")
	name = unquote(name)
	return filenameReplacer.Replace(strings.ToLower(name)) + ".png"
}

func unquote(s string) string {
	return strings.Trim(strings.Trim(s, "'"), `"`)
}

// stripFences removes markdown fences and stray docstring quotes left
// around generated code.
func stripFences(code string) string {
	return strings.NewReplacer("```python", "", "```", "", `"""`, "").Replace(code)
}

var awsImportRE = regexp.MustCompile(`from diagrams\.aws.* import .*`)

// CorrectImports replaces every "from diagrams.aws.* import" line with
// imports rebuilt from m: each service named in m that appears anywhere in
// the code is imported from its module. Modules are emitted in the order
// their first service appears in m.
func CorrectImports(code string, m Mapping) string {
	var (
		modules  []string
		services = map[string][]string{}
	)
	for _, e := range m.entries {
		if !strings.Contains(code, e.Service) {
			continue
		}
		if _, seen := services[e.Module]; !seen {
			modules = append(modules, e.Module)
		}
		services[e.Module] = append(services[e.Module], e.Service)
	}

	var b strings.Builder
	for _, mod := range modules {
		b.WriteString("from diagrams.aws.")
		b.WriteString(mod)
		b.WriteString(" import ")
		b.WriteString(strings.Join(services[mod], ", "))
		b.WriteString("\n")
	}
	b.WriteString(awsImportRE.ReplaceAllString(code, ""))
	return strings.TrimSpace(b.String())
}
