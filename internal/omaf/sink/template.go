package sink

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alxayo/omaf-creator/internal/omaf/errs"
)

// applyTemplate renders tmpl for sequenceIndex, replacing the single
// "$Number$" token it must contain. Any other "$...$" token, a missing
// "$Number$", or more than one occurrence of it is rejected as a
// configuration error rather than silently producing a surprising name.
func applyTemplate(tmpl string, sequenceIndex int) (string, error) {
	var out strings.Builder
	seenNumber := false
	i := 0
	for i < len(tmpl) {
		if tmpl[i] != '$' {
			out.WriteByte(tmpl[i])
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i+1:], '$')
		if end < 0 {
			return "", errs.NewConfigError("sink.applyTemplate", fmt.Errorf("unterminated $ in template %q", tmpl))
		}
		end += i + 1
		keyword := tmpl[i+1 : end]
		if keyword != "Number" {
			return "", errs.NewConfigError("sink.applyTemplate", fmt.Errorf("unsupported template token $%s$ in %q", keyword, tmpl))
		}
		if seenNumber {
			return "", errs.NewConfigError("sink.applyTemplate", fmt.Errorf("template %q uses $Number$ more than once", tmpl))
		}
		seenNumber = true
		out.WriteString(strconv.Itoa(sequenceIndex))
		i = end + 1
	}
	if !seenNumber {
		return "", errs.NewConfigError("sink.applyTemplate", fmt.Errorf("template %q has no $Number$ token", tmpl))
	}
	return out.String(), nil
}

// validateTemplate reports whether tmpl is well-formed, without caring
// about the rendered name; used at construction time so a misconfigured
// template fails fast rather than on the first frame.
func validateTemplate(tmpl string) error {
	_, err := applyTemplate(tmpl, 1)
	return err
}
