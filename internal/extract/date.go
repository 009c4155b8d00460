package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/factharvest/internal/model"
)

// displayDatePattern matches "<Month> <d>, <yyyy>" anywhere in free text.
// Pages often separate the parts with a non-breaking space.
var displayDatePattern = regexp.MustCompile(`\p{L}+[\s\x{00A0}]\d{1,2},[\s\x{00A0}]\d{4}`)

const displayDateLayout = "January 2, 2006"

// ParseDisplayDate parses the first long-form date in text as YYYY-MM-DD.
// Only the first match counts: if it is not a real calendar date the
// date is absent.
func ParseDisplayDate(text string) (string, bool) {
	candidate := displayDatePattern.FindString(text)
	if candidate == "" {
		return "", false
	}
	t, err := time.Parse(displayDateLayout, strings.ReplaceAll(candidate, "\u00a0", " "))
	if err != nil {
		return "", false
	}
	return t.Format(model.DateLayout), true
}
