// Package parser recovers tool tags and the user-facing response from raw
// model output.
//
// Model text is noisy: it mixes prose, code samples and XML-like tags, and it
// often contains stray angle brackets. Parse runs a fixed pipeline so that
// only well-formed tag blocks outside of code spans are treated as actions:
//
//  1. maskVerbatim: fenced and inline code spans become placeholders
//  2. maskTags: well-formed tag blocks become placeholders
//  3. escapeMarkup: every remaining markup character is escaped
//  4. decodeDocument: tag blocks are put back, the text is wrapped in a
//     synthetic root and parsed strictly
//  5. walk: direct children of the root become tags or the response
package parser

import (
	"github.com/m-mizutani/kestrel/pkg/model"
)

const responseTag = "response"

// Parse converts model output into ordered tags and an optional response.
// It fails with a model.ErrTagParse error when the text cannot be resolved
// or when more than one response block is present.
func Parse(text string) (*model.AgentOutput, error) {
	masked, verbatim := maskVerbatim(text)
	masked, tags := maskTags(masked)
	escaped := escapeMarkup(masked)

	doc, err := decodeDocument(tags.restore(escaped))
	if err != nil {
		return nil, err
	}

	return walk(doc, verbatim)
}
