package ocr

import "fmt"

const lineCountPrompt = `Count the number of data rows visible in this registry page image. Respond with only the integer count, nothing else.`

const extractPrompt = `Transcribe each data row in this registry page image as a compact pipe-delimited line with exactly six fields, in this order:
PARTIES | NATURE | DATE | NUM_PUB | RADIATION | REMARQUES
Append a confidence annotation per field where legibility is uncertain. Emit one line per row, nothing else.`

func boostPrompt(raw string) string {
	return fmt.Sprintf(`Correct the following pipe-delimited registry extraction: normalize entity names, resolve domain-specific abbreviations, and fix obvious OCR substitution errors. Preserve the pipe-delimited six-field structure exactly. Return only the corrected text.

%s`, raw)
}
