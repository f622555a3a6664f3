package tool

import (
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/memory"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/sandbox"
)

const (
	TagMemoryLoad       = "memory_load"
	TagMemorySave       = "memory_save"
	TagMemoryDelete     = "memory_delete"
	TagSourceRead       = "src_read"
	TagSourceList       = "src_list"
	TagFileRead         = "file_read"
	TagFileWrite        = "file_write"
	TagFileList         = "file_list"
	TagUpdateCorePrompt = "update_core_prompt"

	// TagResponse is reserved for the user-facing reply and never dispatched
	TagResponse = "response"
)

// Tags lists every dispatchable tag name
var Tags = []string{
	TagMemoryLoad,
	TagMemorySave,
	TagMemoryDelete,
	TagSourceRead,
	TagSourceList,
	TagFileRead,
	TagFileWrite,
	TagFileList,
	TagUpdateCorePrompt,
}

// Request is a validated tool invocation. The set of implementations is closed.
type Request interface {
	Tag() string
	request()
}

type MemoryLoad struct {
	Query string
	Sort  memory.SortMode
	Limit int
}

type MemorySave struct {
	Content    string
	Importance float64
}

type MemoryDelete struct {
	ID model.MemoryID
}

type SourceRead struct{ Path string }
type SourceList struct{ Path string }
type FileRead struct{ Path string }
type FileList struct{ Path string }

type FileWrite struct {
	Path    string
	Content string
	Mode    sandbox.WriteMode
}

type UpdateCorePrompt struct {
	Prompt  string
	Content string
	Mode    string
}

func (MemoryLoad) Tag() string       { return TagMemoryLoad }
func (MemorySave) Tag() string       { return TagMemorySave }
func (MemoryDelete) Tag() string     { return TagMemoryDelete }
func (SourceRead) Tag() string       { return TagSourceRead }
func (SourceList) Tag() string       { return TagSourceList }
func (FileRead) Tag() string         { return TagFileRead }
func (FileWrite) Tag() string        { return TagFileWrite }
func (FileList) Tag() string         { return TagFileList }
func (UpdateCorePrompt) Tag() string { return TagUpdateCorePrompt }

func (MemoryLoad) request()       {}
func (MemorySave) request()       {}
func (MemoryDelete) request()     {}
func (SourceRead) request()       {}
func (SourceList) request()       {}
func (FileRead) request()         {}
func (FileWrite) request()        {}
func (FileList) request()         {}
func (UpdateCorePrompt) request() {}

// Defaults fill optional memory_load parameters
type Defaults struct {
	Sort  memory.SortMode
	Limit int
}

var DefaultDefaults = Defaults{Sort: memory.DefaultSort, Limit: memory.DefaultLimit}

// ParseRequest validates tag and converts it into a typed request. Long text
// parameters (content, query) come from the attribute of that name when
// present, else from the tag body.
func ParseRequest(tag model.ParsedTag, d Defaults) (Request, error) {
	switch tag.Name {
	case TagMemoryLoad:
		query, err := requiredText(tag, "query")
		if err != nil {
			return nil, err
		}
		req := MemoryLoad{Query: query, Sort: d.Sort, Limit: d.Limit}
		if v, ok := tag.Attr("sort"); ok {
			mode, err := memory.ParseSortMode(v)
			if err != nil {
				return nil, err
			}
			req.Sort = mode
		}
		if v, ok := tag.Attr("limit"); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, invalidParam(tag, "limit", v, err)
			}
			req.Limit = n
		}
		return req, nil

	case TagMemorySave:
		content, err := requiredText(tag, "content")
		if err != nil {
			return nil, err
		}
		v, err := requiredAttr(tag, "importance")
		if err != nil {
			return nil, err
		}
		importance, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, invalidParam(tag, "importance", v, err)
		}
		return MemorySave{Content: content, Importance: importance}, nil

	case TagMemoryDelete:
		id, err := requiredAttr(tag, "id")
		if err != nil {
			return nil, err
		}
		return MemoryDelete{ID: model.MemoryID(id)}, nil

	case TagSourceRead:
		path, err := requiredAttr(tag, "path")
		if err != nil {
			return nil, err
		}
		return SourceRead{Path: path}, nil

	case TagSourceList:
		path, _ := tag.Attr("path")
		return SourceList{Path: path}, nil

	case TagFileRead:
		path, err := requiredAttr(tag, "path")
		if err != nil {
			return nil, err
		}
		return FileRead{Path: path}, nil

	case TagFileList:
		path, _ := tag.Attr("path")
		return FileList{Path: path}, nil

	case TagFileWrite:
		path, err := requiredAttr(tag, "path")
		if err != nil {
			return nil, err
		}
		mode, _ := tag.Attr("mode")
		return FileWrite{Path: path, Content: text(tag, "content"), Mode: sandbox.WriteMode(mode)}, nil

	case TagUpdateCorePrompt:
		name, err := requiredAttr(tag, "prompt")
		if err != nil {
			return nil, err
		}
		mode, _ := tag.Attr("mode")
		return UpdateCorePrompt{Prompt: name, Content: text(tag, "content"), Mode: mode}, nil
	}

	return nil, goerr.New("unsupported operation",
		goerr.V("tag", tag.Name),
		goerr.T(model.ErrTagUnsupported))
}

func requiredAttr(tag model.ParsedTag, key string) (string, error) {
	v, ok := tag.Attr(key)
	if !ok || v == "" {
		return "", goerr.New("missing required attribute: "+key,
			goerr.V("tag", tag.Name),
			goerr.T(model.ErrTagValidation))
	}
	return v, nil
}

func text(tag model.ParsedTag, key string) string {
	if v, ok := tag.Attr(key); ok {
		return v
	}
	return tag.Content
}

func requiredText(tag model.ParsedTag, key string) (string, error) {
	v := text(tag, key)
	if v == "" {
		return "", goerr.New("missing required parameter: "+key,
			goerr.V("tag", tag.Name),
			goerr.T(model.ErrTagValidation))
	}
	return v, nil
}

func invalidParam(tag model.ParsedTag, key, value string, cause error) error {
	return goerr.Wrap(cause, "invalid value for "+key,
		goerr.V("tag", tag.Name),
		goerr.V("value", value),
		goerr.T(model.ErrTagValidation))
}
