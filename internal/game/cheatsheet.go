package game

import (
	"fmt"
	"strings"

	"github.com/example/matlab-dojo/internal/content"
	"github.com/example/matlab-dojo/internal/progress"
)

const cheatSheetHeader = "=== MATLAB CHEAT SHEET (Auto-Generated) ==="

const cheatSheetEmpty = "No challenges completed yet. Start playing to build your cheat sheet!"

// CheatSheet renders a study summary from everything the player has
// completed so far. Modules and challenges appear in catalog order, so the
// same progress document always yields the same text.
func CheatSheet(doc *progress.Document, catalog *content.Catalog) string {
	var b strings.Builder
	b.WriteString(cheatSheetHeader)
	b.WriteString("\n")

	any := false
	for _, mod := range catalog.Modules {
		entries, ok := doc.Modules[mod.ID]
		if !ok {
			continue
		}

		var lines []string
		for i := range mod.Challenges {
			ch := &mod.Challenges[i]
			if p, ok := entries[ch.ID]; ok && p.Completed {
				lines = append(lines, fmt.Sprintf("  - %s: %s", ch.Title, ch.Explanation))
			}
		}
		if len(lines) == 0 {
			continue
		}

		any = true
		b.WriteString("\n")
		fmt.Fprintf(&b, "## %s\n", mod.Name)
		for _, line := range lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if !any {
		b.WriteString("\n")
		b.WriteString(cheatSheetEmpty)
		b.WriteString("\n")
	}
	return b.String()
}
