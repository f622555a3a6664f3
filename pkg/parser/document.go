package parser

import (
	"encoding/xml"
	"html"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/model"
)

const rootName = "kestrel_output"

type element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

type document struct {
	XMLName  xml.Name
	Children []element `xml:",any"`
}

// decodeDocument wraps body in the synthetic root and parses it strictly.
// Control characters are stripped before the single retry.
func decodeDocument(body string) (*document, error) {
	wrapped := "<" + rootName + ">" + body + "</" + rootName + ">"

	var doc document
	if err := xml.Unmarshal([]byte(wrapped), &doc); err == nil {
		return &doc, nil
	}

	var cleaned document
	if err := xml.Unmarshal([]byte(controlChars.ReplaceAllString(wrapped, "")), &cleaned); err != nil {
		return nil, goerr.Wrap(err, "invalid markup after cleaning", goerr.T(model.ErrTagParse))
	}
	return &cleaned, nil
}

// walk turns the direct children of the root into tags and the response, in
// document order
func walk(doc *document, verbatim *placeholders) (*model.AgentOutput, error) {
	out := &model.AgentOutput{
		Tags: []model.ParsedTag{},
	}

	for _, child := range doc.Children {
		content := strings.TrimSpace(verbatim.restore(html.UnescapeString(child.Inner)))

		attrs := make(map[string]string, len(child.Attrs))
		for _, attr := range child.Attrs {
			if _, ok := attrs[attr.Name.Local]; ok {
				return nil, goerr.New("duplicate attribute",
					goerr.V("tag", child.XMLName.Local),
					goerr.V("attribute", attr.Name.Local),
					goerr.T(model.ErrTagParse))
			}
			attrs[attr.Name.Local] = verbatim.restore(attr.Value)
		}

		if child.XMLName.Local == responseTag {
			if out.Response != nil {
				return nil, goerr.New("multiple response blocks", goerr.T(model.ErrTagParse))
			}
			out.Response = &content
			out.ResponseChannel = attrs["channel"]
			continue
		}

		out.Tags = append(out.Tags, model.ParsedTag{
			Name:       child.XMLName.Local,
			Attributes: attrs,
			Content:    content,
		})
	}

	return out, nil
}
