package tool_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kestrel/pkg/adapter"
	"github.com/m-mizutani/kestrel/pkg/memory"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/policy"
	"github.com/m-mizutani/kestrel/pkg/prompt"
	"github.com/m-mizutani/kestrel/pkg/repository"
	"github.com/m-mizutani/kestrel/pkg/sandbox"
	"github.com/m-mizutani/kestrel/pkg/tool"
)

type mockEmbedder struct {
	adapter.Embedder
	calls int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string, mode model.EmbedMode) ([]float32, error) {
	m.calls++
	v := []float32{0, 0}
	if strings.Contains(text, "X") {
		v[0] = 1
	} else {
		v[1] = 1
	}
	return v, nil
}

// mockMemory lets a test override single operations
type mockMemory struct {
	tool.MemoryStore
	saveFunc func(ctx context.Context, content string, importance float64) (*model.Memory, error)
}

func (m *mockMemory) Save(ctx context.Context, content string, importance float64) (*model.Memory, error) {
	return m.saveFunc(ctx, content, importance)
}

type env struct {
	dispatcher *tool.Dispatcher
	store      *memory.Store
	embedder   *mockEmbedder
	filesDir   string
	promptDir  string
}

func setup(t *testing.T, opts ...tool.Option) *env {
	ctx := context.Background()
	embedder := &mockEmbedder{}
	store, err := memory.New(ctx, repository.NewMemory(), embedder)
	gt.NoError(t, err)

	filesDir := t.TempDir()
	files, err := sandbox.NewFiles(filesDir)
	gt.NoError(t, err)

	srcDir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(srcDir, "main.go"), []byte("package main"), 0o644))
	source, err := sandbox.NewSource(srcDir)
	gt.NoError(t, err)

	promptDir := t.TempDir()

	base := []tool.Option{
		tool.WithMemory(store),
		tool.WithFiles(files),
		tool.WithSource(source),
		tool.WithCorePrompts(prompt.New(promptDir)),
	}
	return &env{
		dispatcher: tool.New(append(base, opts...)...),
		store:      store,
		embedder:   embedder,
		filesDir:   filesDir,
		promptDir:  promptDir,
	}
}

func tag(name string, attrs map[string]string, content string) model.ParsedTag {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return model.ParsedTag{Name: name, Attributes: attrs, Content: content}
}

func TestDispatchSaveThenLoad(t *testing.T) {
	e := setup(t)

	result := e.dispatcher.DispatchAll(context.Background(), []model.ParsedTag{
		tag("memory_save", map[string]string{"importance": "0.5"}, "X marks the spot"),
		tag("memory_load", map[string]string{"query": "X", "sort": "relevance", "limit": "1"}, ""),
	})

	gt.S(t, result.Informational).Contains(`<system type="memory_load" status="success">`)
	gt.S(t, result.Informational).Contains("X marks the spot")
	gt.Equal(t, result.Deferrable, `<system type="memory_save" status="success"></system>`)
}

func TestDispatchUnknownTag(t *testing.T) {
	e := setup(t)

	env := e.dispatcher.DispatchOne(context.Background(), tag("launch_rockets", nil, ""))
	gt.Equal(t, env.Status, model.StatusError)
	gt.Equal(t, env.Class, model.ClassInformational)
	gt.Equal(t, env.Tag, "launch_rockets")
	gt.S(t, env.Body).Contains("unsupported operation")
}

func TestDispatchSandboxEscape(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	tags := []model.ParsedTag{
		tag("file_read", map[string]string{"path": "../secrets.txt"}, ""),
		tag("file_write", map[string]string{"path": "../secrets.txt"}, "stolen"),
		tag("file_list", map[string]string{"path": "../secrets.txt"}, ""),
	}
	for _, tg := range tags {
		t.Run(tg.Name, func(t *testing.T) {
			env := e.dispatcher.DispatchOne(ctx, tg)
			gt.Equal(t, env.Status, model.StatusError)
			gt.Equal(t, env.Class, model.ClassInformational)
			gt.S(t, env.Body).Contains("escapes sandbox")
		})
	}

	_, err := os.Stat(filepath.Join(filepath.Dir(e.filesDir), "secrets.txt"))
	gt.True(t, os.IsNotExist(err))
}

func TestDispatchClassification(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	testCases := []struct {
		name   string
		tag    model.ParsedTag
		status model.Status
		class  model.Class
	}{
		{
			name:   "write is deferrable",
			tag:    tag("file_write", map[string]string{"path": "notes/a.txt", "mode": "overwrite"}, "hello"),
			status: model.StatusSuccess,
			class:  model.ClassDeferrable,
		},
		{
			name:   "read with content is informational",
			tag:    tag("file_read", map[string]string{"path": "notes/a.txt"}, ""),
			status: model.StatusSuccess,
			class:  model.ClassInformational,
		},
		{
			name:   "list is informational",
			tag:    tag("file_list", nil, ""),
			status: model.StatusSuccess,
			class:  model.ClassInformational,
		},
		{
			name:   "source read",
			tag:    tag("src_read", map[string]string{"path": "main.go"}, ""),
			status: model.StatusSuccess,
			class:  model.ClassInformational,
		},
		{
			name:   "missing file is an error",
			tag:    tag("file_read", map[string]string{"path": "nope.txt"}, ""),
			status: model.StatusError,
			class:  model.ClassInformational,
		},
		{
			name:   "core prompt update is deferrable",
			tag:    tag("update_core_prompt", map[string]string{"prompt": "self"}, "I like tea"),
			status: model.StatusSuccess,
			class:  model.ClassDeferrable,
		},
		{
			name:   "unknown core prompt is an error",
			tag:    tag("update_core_prompt", map[string]string{"prompt": "nobody"}, "x"),
			status: model.StatusError,
			class:  model.ClassInformational,
		},
		{
			name:   "delete of missing memory is informational success",
			tag:    tag("memory_delete", map[string]string{"id": "missing"}, ""),
			status: model.StatusSuccess,
			class:  model.ClassInformational,
		},
		{
			name:   "delete without id is an error",
			tag:    tag("memory_delete", nil, ""),
			status: model.StatusError,
			class:  model.ClassInformational,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := e.dispatcher.DispatchOne(ctx, tc.tag)
			gt.Equal(t, env.Status, tc.status)
			gt.Equal(t, env.Class, tc.class)
		})
	}

	data, err := os.ReadFile(filepath.Join(e.promptDir, "self.txt"))
	gt.NoError(t, err)
	gt.Equal(t, string(data), "\nI like tea")
}

func TestDispatchDeleteNotFound(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.store.Save(ctx, "keep me", 0.2)
	gt.NoError(t, err)

	env := e.dispatcher.DispatchOne(ctx, tag("memory_delete", map[string]string{"id": "nonexistent"}, ""))
	gt.Equal(t, env.Body, "memory nonexistent not found")
	gt.Equal(t, e.store.Len(), 1)
}

func TestDispatchLoadEmptyStore(t *testing.T) {
	e := setup(t)

	env := e.dispatcher.DispatchOne(context.Background(), tag("memory_load", nil, "anything"))
	gt.Equal(t, env.Status, model.StatusSuccess)
	gt.Equal(t, env.Body, memory.NoMemoriesMessage)
	gt.Equal(t, e.embedder.calls, 0)
}

func TestDispatchPanicIsContained(t *testing.T) {
	mem := &mockMemory{
		saveFunc: func(ctx context.Context, content string, importance float64) (*model.Memory, error) {
			panic("boom")
		},
	}
	d := tool.New(tool.WithMemory(mem))

	result := d.DispatchAll(context.Background(), []model.ParsedTag{
		tag("memory_save", map[string]string{"importance": "1"}, "x"),
		tag("launch_rockets", nil, ""),
	})

	gt.S(t, result.Informational).Contains(`<system type="memory_save" status="error">internal error: boom`)
	gt.S(t, result.Informational).Contains(`<system type="launch_rockets" status="error">`)
	gt.Equal(t, result.Deferrable, "")
}

func TestDispatchProviderError(t *testing.T) {
	mem := &mockMemory{
		saveFunc: func(ctx context.Context, content string, importance float64) (*model.Memory, error) {
			return nil, goerr.New("embedding quota exceeded", goerr.T(model.ErrTagProvider))
		},
	}
	d := tool.New(tool.WithMemory(mem))

	env := d.DispatchOne(context.Background(), tag("memory_save", map[string]string{"importance": "1"}, "x"))
	gt.Equal(t, env.Status, model.StatusError)
	gt.S(t, env.Body).Contains("embedding quota exceeded")
}

func TestDispatchNotConfigured(t *testing.T) {
	d := tool.New()

	for _, name := range []string{"file_list", "src_list"} {
		env := d.DispatchOne(context.Background(), tag(name, nil, ""))
		gt.Equal(t, env.Status, model.StatusError)
		gt.S(t, env.Body).Contains("not configured")
	}
}

func TestDispatchPolicy(t *testing.T) {
	ctx := context.Background()
	p, err := policy.New(ctx, map[string]string{
		"dispatch.rego": `package kestrel.dispatch

deny contains "no shell scripts" if {
	input.tag == "file_write"
	endswith(input.attributes.path, ".sh")
}
`,
	})
	gt.NoError(t, err)

	e := setup(t, tool.WithPolicy(p))

	denied := e.dispatcher.DispatchOne(ctx, tag("file_write", map[string]string{"path": "run.sh"}, "echo"))
	gt.Equal(t, denied.Status, model.StatusError)
	gt.S(t, denied.Body).Contains("denied by policy: no shell scripts")
	_, statErr := os.Stat(filepath.Join(e.filesDir, "run.sh"))
	gt.True(t, os.IsNotExist(statErr))

	allowed := e.dispatcher.DispatchOne(ctx, tag("file_write", map[string]string{"path": "run.txt"}, "echo"))
	gt.Equal(t, allowed.Status, model.StatusSuccess)
}

func TestDispatchAllEmpty(t *testing.T) {
	e := setup(t)
	result := e.dispatcher.DispatchAll(context.Background(), nil)
	gt.Equal(t, result, model.BatchResult{})
}
