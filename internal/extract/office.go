package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractOffice converts an ODT or RTF file to raw text in one shot. These
// files are typically small, so whole-file conversion is acceptable.
func extractOffice(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("extract office document: %w", err)
	}
	return text, nil
}
