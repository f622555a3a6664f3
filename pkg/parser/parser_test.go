package parser_test

import (
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/parser"
)

func TestParseEmpty(t *testing.T) {
	for _, text := range []string{"", "   \n\t"} {
		out, err := parser.Parse(text)
		gt.NoError(t, err)
		gt.A(t, out.Tags).Length(0)
		gt.V(t, out.Response).Nil()
	}
}

func TestParseResponseOnly(t *testing.T) {
	out, err := parser.Parse("Thinking about it.\n<response>\n  Hello there!  \n</response>\n")
	gt.NoError(t, err)
	gt.A(t, out.Tags).Length(0)
	gt.V(t, out.Response).NotNil()
	gt.Equal(t, *out.Response, "Hello there!")
}

func TestParseResponseChannel(t *testing.T) {
	out, err := parser.Parse(`<response channel='sms'>on my way</response>`)
	gt.NoError(t, err)
	gt.Equal(t, *out.Response, "on my way")
	gt.Equal(t, out.ResponseChannel, "sms")
}

func TestParseMultipleResponses(t *testing.T) {
	testCases := []string{
		"<response>a</response><response>b</response>",
		"<response>a</response> text <memory_load query=\"x\"></memory_load> <response>b</response> <response>c</response>",
	}

	for _, text := range testCases {
		_, err := parser.Parse(text)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, model.ErrTagParse))
		gt.S(t, err.Error()).Contains("multiple response blocks")
	}
}

func TestParseTagsInDocumentOrder(t *testing.T) {
	text := `Let me save that first.
<memory_save importance="0.8">User prefers tea</memory_save>
Then look around.
<file_list path = 'notes' ></file_list>
<memory_load query="drinks" sort='date' limit="3"></memory_load>
<response>Noted!</response>`

	out, err := parser.Parse(text)
	gt.NoError(t, err)
	gt.A(t, out.Tags).Length(3)

	gt.Equal(t, out.Tags[0].Name, "memory_save")
	gt.Equal(t, out.Tags[0].Attributes["importance"], "0.8")
	gt.Equal(t, out.Tags[0].Content, "User prefers tea")

	gt.Equal(t, out.Tags[1].Name, "file_list")
	gt.Equal(t, out.Tags[1].Attributes["path"], "notes")
	gt.Equal(t, out.Tags[1].Content, "")

	gt.Equal(t, out.Tags[2].Name, "memory_load")
	gt.Equal(t, out.Tags[2].Attributes, map[string]string{
		"query": "drinks",
		"sort":  "date",
		"limit": "3",
	})

	gt.Equal(t, *out.Response, "Noted!")
}

func TestParseVerbatimSpans(t *testing.T) {
	t.Run("fenced block is not parsed", func(t *testing.T) {
		text := "Here is how to save:\n```xml\n<memory_save importance=\"1\">example</memory_save>\n<response>fake</response>\n```\n<response>real</response>"
		out, err := parser.Parse(text)
		gt.NoError(t, err)
		gt.A(t, out.Tags).Length(0)
		gt.Equal(t, *out.Response, "real")
	})

	t.Run("inline span is not parsed", func(t *testing.T) {
		text := "Use `<memory_load query=\"x\"></memory_load>` to load. <src_list></src_list>"
		out, err := parser.Parse(text)
		gt.NoError(t, err)
		gt.A(t, out.Tags).Length(1)
		gt.Equal(t, out.Tags[0].Name, "src_list")
	})

	t.Run("verbatim content inside a tag is restored as written", func(t *testing.T) {
		body := "# Notes\n```go\nif a < b && c > d {\n\treturn `x`\n}\n```\nand `<tag>` inline"
		text := `<file_write path="notes.md" mode="overwrite">` + body + `</file_write>`
		out, err := parser.Parse(text)
		gt.NoError(t, err)
		gt.A(t, out.Tags).Length(1)
		gt.Equal(t, out.Tags[0].Content, body)
	})

	t.Run("unclosed fence leaves later tags live", func(t *testing.T) {
		out, err := parser.Parse("```go <memory_load query=\"a\"></memory_load> and `x`")
		gt.NoError(t, err)
		gt.A(t, out.Tags).Length(1)
		gt.Equal(t, out.Tags[0].Name, "memory_load")
		gt.Equal(t, out.Tags[0].Attributes["query"], "a")
	})

	t.Run("response inside verbatim span does not count twice", func(t *testing.T) {
		out, err := parser.Parse("`<response>x</response>` <response>y</response>")
		gt.NoError(t, err)
		gt.Equal(t, *out.Response, "y")
	})
}

func TestParseStrayMarkup(t *testing.T) {
	testCases := []struct {
		name string
		text string
		tags []string
	}{
		{
			name: "comparison in prose",
			text: `if x <5 and y> 3 then <memory_save importance="0.2">x is small</memory_save>`,
			tags: []string{"memory_save"},
		},
		{
			name: "unterminated tag",
			text: `<memory_save importance="0.2">never closed <src_list path="a"></src_list>`,
			tags: []string{"src_list"},
		},
		{
			name: "mismatched nesting stays text",
			text: `<file_read path="a"><b></file_read></b> <file_list></file_list>`,
			tags: []string{"file_list"},
		},
		{
			name: "bare ampersand",
			text: `Tom & Jerry <src_read path="main.go"></src_read>`,
			tags: []string{"src_read"},
		},
		{
			name: "unquoted attribute is prose",
			text: `<memory_load query=x></memory_load>`,
			tags: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := parser.Parse(tc.text)
			gt.NoError(t, err)
			names := make([]string, 0, len(out.Tags))
			for _, tag := range out.Tags {
				names = append(names, tag.Name)
			}
			gt.Equal(t, names, tc.tags)
		})
	}
}

func TestParseEntities(t *testing.T) {
	out, err := parser.Parse(`<memory_save importance="0.5">Tom & Jerry &lt;3 &nbsp;</memory_save>`)
	gt.NoError(t, err)
	gt.A(t, out.Tags).Length(1)
	gt.Equal(t, out.Tags[0].Content, "Tom & Jerry <3 &nbsp;")
}

func TestParseNestedMarkupKeptAsContent(t *testing.T) {
	out, err := parser.Parse(`<file_write path="index.html"><p class="x">hi</p></file_write>`)
	gt.NoError(t, err)
	gt.A(t, out.Tags).Length(1)
	gt.Equal(t, out.Tags[0].Content, `<p class="x">hi</p>`)
}

func TestParseControlCharacters(t *testing.T) {
	out, err := parser.Parse("status\x01 ok <memory_save importance=\"0.1\">bell\x07 rung</memory_save>")
	gt.NoError(t, err)
	gt.A(t, out.Tags).Length(1)
	gt.Equal(t, out.Tags[0].Content, "bell rung")
}

func TestParseDuplicateAttribute(t *testing.T) {
	_, err := parser.Parse(`<memory_save importance="1" importance="2">note</memory_save>`)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagParse))
	gt.S(t, err.Error()).Contains("duplicate attribute")
}
