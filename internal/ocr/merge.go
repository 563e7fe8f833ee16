package ocr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paraito/registre-extractor/internal/models"
)

// merge concatenates per-page results in page order, prepending a page
// marker to each page's text. Pages with a recorded error contribute a
// placeholder rather than being dropped, so page numbering stays intact
// in the final document — a closed, I/O-free stage.
func merge(pages []models.PageResult) (rawText string, boostedText string) {
	sorted := make([]models.PageResult, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Page < sorted[j].Page })

	var raw, boosted strings.Builder
	for _, p := range sorted {
		marker := fmt.Sprintf("--- Page %d ---\n", p.Page)
		raw.WriteString(marker)
		boosted.WriteString(marker)

		if p.Err != nil {
			placeholder := fmt.Sprintf("[page %d failed: %v]\n", p.Page, p.Err)
			raw.WriteString(placeholder)
			boosted.WriteString(placeholder)
			continue
		}

		raw.WriteString(p.RawText)
		raw.WriteString("\n")
		boosted.WriteString(p.BoostedText)
		boosted.WriteString("\n")
	}

	return raw.String(), boosted.String()
}
