package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/policy"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
)

// Dispatcher routes parsed tags to the component that serves them. A tag's
// failure, including a panic, becomes an error envelope and never stops the
// rest of the batch.
type Dispatcher struct {
	memory   MemoryStore
	files    Writer
	source   Reader
	prompts  PromptEditor
	policy   Policy
	defaults Defaults
}

type Option func(*Dispatcher)

func WithMemory(m MemoryStore) Option {
	return func(d *Dispatcher) {
		d.memory = m
	}
}

func WithFiles(w Writer) Option {
	return func(d *Dispatcher) {
		d.files = w
	}
}

func WithSource(r Reader) Option {
	return func(d *Dispatcher) {
		d.source = r
	}
}

func WithCorePrompts(p PromptEditor) Option {
	return func(d *Dispatcher) {
		d.prompts = p
	}
}

func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) {
		d.policy = p
	}
}

// WithDefaults sets the sort and limit used when memory_load omits them.
// Zero fields keep the built-in defaults.
func WithDefaults(defaults Defaults) Option {
	return func(d *Dispatcher) {
		if defaults.Sort != "" {
			d.defaults.Sort = defaults.Sort
		}
		if defaults.Limit != 0 {
			d.defaults.Limit = defaults.Limit
		}
	}
}

// New creates a dispatcher. Components that are not given make their tags
// fail with a "not configured" error envelope.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{defaults: DefaultDefaults}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchAll runs tags strictly in order and joins the envelopes by class
func (d *Dispatcher) DispatchAll(ctx context.Context, tags []model.ParsedTag) model.BatchResult {
	envelopes := make([]model.Envelope, 0, len(tags))
	for _, tag := range tags {
		envelopes = append(envelopes, d.DispatchOne(ctx, tag))
	}
	return model.NewBatchResult(envelopes)
}

// DispatchOne runs a single tag and wraps its outcome. Errors are always
// informational; a success is informational when its body is non-empty and
// deferrable otherwise.
func (d *Dispatcher) DispatchOne(ctx context.Context, tag model.ParsedTag) (env model.Envelope) {
	logger := logging.From(ctx).With("tag", tag.Name)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool panicked", "panic", r)
			env = errorEnvelope(tag.Name, goerr.New(fmt.Sprintf("internal error: %v", r)))
		}
	}()

	body, err := d.run(ctx, tag)
	if err != nil {
		logger.Warn("tool failed", "error", err)
		return errorEnvelope(tag.Name, err)
	}

	env = model.Envelope{
		Tag:    tag.Name,
		Status: model.StatusSuccess,
		Body:   body,
		Class:  model.ClassInformational,
	}
	if body == "" {
		env.Class = model.ClassDeferrable
	}

	logger.Debug("tool dispatched", "class", env.Class, "bytes", len(body))
	return env
}

func errorEnvelope(tag string, err error) model.Envelope {
	return model.Envelope{
		Tag:    tag,
		Status: model.StatusError,
		Body:   err.Error(),
		Class:  model.ClassInformational,
	}
}

func (d *Dispatcher) run(ctx context.Context, tag model.ParsedTag) (string, error) {
	req, err := ParseRequest(tag, d.defaults)
	if err != nil {
		return "", err
	}

	if d.policy != nil {
		denied, err := d.policy.Evaluate(ctx, policy.Input{
			Tag:        tag.Name,
			Attributes: tag.Attributes,
			Content:    tag.Content,
		})
		if err != nil {
			return "", err
		}
		if len(denied) > 0 {
			return "", goerr.New("denied by policy: "+strings.Join(denied, "; "),
				goerr.V("tag", tag.Name),
				goerr.T(model.ErrTagValidation))
		}
	}

	return d.execute(ctx, req)
}

func notConfigured(tag string) error {
	return goerr.New(tag+" is not configured", goerr.V("tag", tag), goerr.T(model.ErrTagUnsupported))
}

func (d *Dispatcher) execute(ctx context.Context, req Request) (string, error) {
	switch r := req.(type) {
	case MemoryLoad:
		if d.memory == nil {
			return "", notConfigured(r.Tag())
		}
		return d.memory.Load(ctx, r.Query, r.Sort, r.Limit)

	case MemorySave:
		if d.memory == nil {
			return "", notConfigured(r.Tag())
		}
		if _, err := d.memory.Save(ctx, r.Content, r.Importance); err != nil {
			return "", err
		}
		return "", nil

	case MemoryDelete:
		if d.memory == nil {
			return "", notConfigured(r.Tag())
		}
		found, err := d.memory.Delete(ctx, r.ID)
		if err != nil {
			return "", err
		}
		if !found {
			return fmt.Sprintf("memory %s not found", r.ID), nil
		}
		return "", nil

	case SourceRead:
		if d.source == nil {
			return "", notConfigured(r.Tag())
		}
		return d.source.Read(ctx, r.Path)

	case SourceList:
		if d.source == nil {
			return "", notConfigured(r.Tag())
		}
		return d.source.List(ctx, r.Path)

	case FileRead:
		if d.files == nil {
			return "", notConfigured(r.Tag())
		}
		return d.files.Read(ctx, r.Path)

	case FileList:
		if d.files == nil {
			return "", notConfigured(r.Tag())
		}
		return d.files.List(ctx, r.Path)

	case FileWrite:
		if d.files == nil {
			return "", notConfigured(r.Tag())
		}
		return "", d.files.Write(ctx, r.Path, r.Content, r.Mode)

	case UpdateCorePrompt:
		if d.prompts == nil {
			return "", notConfigured(r.Tag())
		}
		return "", d.prompts.Update(ctx, r.Prompt, r.Content, r.Mode)
	}

	return "", goerr.New("unsupported operation", goerr.V("tag", req.Tag()), goerr.T(model.ErrTagUnsupported))
}
