package llm

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

// MaxTextChars caps the OCR text embedded in the user prompt.
const MaxTextChars = 12000

const systemPrompt = `You are an expert document analyst specializing in insurance certificates, licenses, permits and other compliance documents.

Your task is to extract structured data from document text that was obtained via OCR.

Rules:
1. Return ONLY a valid JSON object. No explanations, no markdown.
2. Use null for any field you cannot find or are uncertain about.
3. Dates use ISO format (YYYY-MM-DD).
4. Money amounts are numbers without symbols or separators (1000000, not "$1,000,000").
5. Boolean fields are true or false.
6. Expect common OCR confusions: 0/O, 1/I/l, 5/S, 8/B.
7. You may add "_confidence": {"<field>": <0..1>} with your certainty per field.

Prefer accuracy over completeness.`

// SystemPrompt is identical for every document type.
func SystemPrompt() string { return systemPrompt }

// BuildUserPrompt embeds the document type instructions, the ordered field list and the OCR text.
func BuildUserPrompt(extractionPrompt string, schema niche.ExtractionSchema, text string) string {
	var b strings.Builder
	if p := strings.TrimSpace(extractionPrompt); p != "" {
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	b.WriteString("Fields to extract:\n")
	for _, f := range schema.Fields {
		req := "optional"
		if f.Required {
			req = "required"
		}
		label := ""
		if f.Label != "" {
			label = " - " + f.Label
		}
		fmt.Fprintf(&b, "- %s (%s, %s)%s\n", f.Name, f.Type, req, label)
	}
	b.WriteString("\nDocument text:\n```\n")
	b.WriteString(truncateRunes(text, MaxTextChars))
	b.WriteString("\n```")
	return b.String()
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
