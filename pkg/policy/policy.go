// Package policy evaluates Rego rules that may veto a tool tag before it runs.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// Query is the package the dispatch rules live in. Its deny set holds the
// reasons a tag is refused.
const Query = "data.kestrel.dispatch"

// Input is what the rules see as input
type Input struct {
	Tag        string            `json:"tag"`
	Attributes map[string]string `json:"attributes"`
	Content    string            `json:"content"`
}

// Policy is a prepared dispatch policy. A nil *Policy allows everything.
type Policy struct {
	query *rego.PreparedEvalQuery
	files []string
}

type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(pctx print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Load prepares every .rego file in dir. It returns nil when dir is empty or
// holds no policy files.
func Load(ctx context.Context, dir string) (*Policy, error) {
	if dir == "" {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir))
	}
	if len(files) == 0 {
		return nil, nil
	}
	sort.Strings(files)

	sources := make(map[string]string, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		sources[file] = string(data)
	}

	p, err := New(ctx, sources)
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Debug("dispatch policy loaded", "dir", dir, "files", files)
	return p, nil
}

// New prepares a policy from module sources keyed by file name
func New(ctx context.Context, sources map[string]string) (*Policy, error) {
	options := make([]func(*rego.Rego), 0, len(sources)+2)
	options = append(options, rego.Query(Query), rego.EnablePrintStatements(true))

	files := make([]string, 0, len(sources))
	for file := range sources {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		options = append(options, rego.Module(file, sources[file]))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare dispatch policy", goerr.V("files", files))
	}

	return &Policy{query: &prepared, files: files}, nil
}

// Evaluate returns the deny messages for input, sorted. An empty result
// means the tag is allowed.
func (p *Policy) Evaluate(ctx context.Context, input Input) ([]string, error) {
	if p == nil {
		return nil, nil
	}
	if input.Attributes == nil {
		input.Attributes = map[string]string{}
	}

	rs, err := p.query.Eval(ctx,
		rego.EvalInput(input),
		rego.EvalPrintHook(&printHook{ctx: ctx}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate dispatch policy", goerr.V("tag", input.Tag))
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, nil
	}

	raw, ok := data["deny"]
	if !ok {
		return nil, nil
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, goerr.New("invalid dispatch policy result: deny is not a set", goerr.V("deny", raw))
	}

	messages := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			messages = append(messages, s)
		} else {
			messages = append(messages, fmt.Sprint(item))
		}
	}
	sort.Strings(messages)
	return messages, nil
}
