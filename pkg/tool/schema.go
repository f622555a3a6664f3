package tool

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/kestrel/pkg/memory"
)

func stringProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func sortModes() []any {
	modes := memory.SortModes()
	values := make([]any, len(modes))
	for i, m := range modes {
		values[i] = string(m)
	}
	return values
}

// Schemas describes the attributes and body of every dispatchable tag. The
// "content" and "query" properties may also be given as the tag body.
func Schemas() map[string]*jsonschema.Schema {
	pathProp := stringProp("Path relative to the sandbox root")

	return map[string]*jsonschema.Schema{
		TagMemoryLoad: {
			Type:        "object",
			Description: "Retrieve saved memories ranked against a query",
			Properties: map[string]*jsonschema.Schema{
				"query": stringProp("What to look for; may be the tag body"),
				"sort": {
					Type:        "string",
					Description: "Ranking used to order memories",
					Enum:        sortModes(),
				},
				"limit": {Type: "integer", Description: "Maximum number of memories returned"},
			},
			Required: []string{"query"},
		},
		TagMemorySave: {
			Type:        "object",
			Description: "Save a note to long-term memory",
			Properties: map[string]*jsonschema.Schema{
				"content":    stringProp("The note; may be the tag body"),
				"importance": {Type: "number", Description: "Importance, typically between 0 and 1"},
			},
			Required: []string{"content", "importance"},
		},
		TagMemoryDelete: {
			Type:        "object",
			Description: "Delete a memory by id",
			Properties: map[string]*jsonschema.Schema{
				"id": stringProp("Memory id as shown by memory_load"),
			},
			Required: []string{"id"},
		},
		TagSourceRead: {
			Type:        "object",
			Description: "Read a file of the agent's own source",
			Properties:  map[string]*jsonschema.Schema{"path": pathProp},
			Required:    []string{"path"},
		},
		TagSourceList: {
			Type:        "object",
			Description: "List a directory of the agent's own source",
			Properties:  map[string]*jsonschema.Schema{"path": pathProp},
		},
		TagFileRead: {
			Type:        "object",
			Description: "Read a file from the agent's file space",
			Properties:  map[string]*jsonschema.Schema{"path": pathProp},
			Required:    []string{"path"},
		},
		TagFileWrite: {
			Type:        "object",
			Description: "Write a file in the agent's file space",
			Properties: map[string]*jsonschema.Schema{
				"path":    pathProp,
				"content": stringProp("Text to write; may be the tag body"),
				"mode":    stringProp(`"overwrite" replaces the file; anything else appends`),
			},
			Required: []string{"path", "content"},
		},
		TagFileList: {
			Type:        "object",
			Description: "List a directory of the agent's file space",
			Properties:  map[string]*jsonschema.Schema{"path": pathProp},
		},
		TagUpdateCorePrompt: {
			Type:        "object",
			Description: "Edit one of the agent's core prompts",
			Properties: map[string]*jsonschema.Schema{
				"prompt":  stringProp("Core prompt name"),
				"content": stringProp("Text to add or write; may be the tag body"),
				"mode":    stringProp(`"append" (default) adds a line; anything else overwrites`),
			},
			Required: []string{"prompt", "content"},
		},
	}
}
