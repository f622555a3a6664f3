package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kestrel/pkg/policy"
)

const denyPolicy = `package kestrel.dispatch

deny contains msg if {
	input.tag == "file_write"
	endswith(input.attributes.path, ".sh")
	msg := "shell scripts may not be written"
}

deny contains msg if {
	input.tag == "file_write"
	contains(input.content, "rm -rf")
	msg := "destructive command in content"
}
`

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("empty dir name allows everything", func(t *testing.T) {
		p, err := policy.Load(ctx, "")
		gt.NoError(t, err)
		gt.V(t, p).Nil()

		msgs, err := p.Evaluate(ctx, policy.Input{Tag: "file_write"})
		gt.NoError(t, err)
		gt.A(t, msgs).Length(0)
	})

	t.Run("dir without rego files", func(t *testing.T) {
		p, err := policy.Load(ctx, t.TempDir())
		gt.NoError(t, err)
		gt.V(t, p).Nil()
	})

	t.Run("invalid rego fails", func(t *testing.T) {
		dir := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(dir, "bad.rego"), []byte("package kestrel.dispatch\ndeny contains"), 0o644))
		_, err := policy.Load(ctx, dir)
		gt.Error(t, err)
	})
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "dispatch.rego"), []byte(denyPolicy), 0o644))

	p, err := policy.Load(ctx, dir)
	gt.NoError(t, err)
	gt.V(t, p).NotNil()

	testCases := []struct {
		name  string
		input policy.Input
		want  []string
	}{
		{
			name:  "allowed tag",
			input: policy.Input{Tag: "file_read", Attributes: map[string]string{"path": "a.sh"}},
			want:  []string{},
		},
		{
			name:  "one reason",
			input: policy.Input{Tag: "file_write", Attributes: map[string]string{"path": "run.sh"}, Content: "echo hi"},
			want:  []string{"shell scripts may not be written"},
		},
		{
			name:  "two reasons sorted",
			input: policy.Input{Tag: "file_write", Attributes: map[string]string{"path": "run.sh"}, Content: "rm -rf /"},
			want:  []string{"destructive command in content", "shell scripts may not be written"},
		},
		{
			name:  "missing attributes",
			input: policy.Input{Tag: "file_write"},
			want:  []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msgs, err := p.Evaluate(ctx, tc.input)
			gt.NoError(t, err)
			gt.Equal(t, len(msgs), len(tc.want))
			for i := range tc.want {
				gt.Equal(t, msgs[i], tc.want[i])
			}
		})
	}
}
