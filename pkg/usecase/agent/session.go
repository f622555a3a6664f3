package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/adapter"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/parser"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
)

const DefaultMaxIterations = 8

// Dispatcher executes the tags of one model reply
type Dispatcher interface {
	DispatchAll(ctx context.Context, tags []model.ParsedTag) model.BatchResult
}

// Session runs the agent loop for one conversation
type Session struct {
	completer     adapter.Completer
	dispatcher    Dispatcher
	systemPrompt  string
	maxIterations int
	now           func() time.Time

	history []model.Message
	pending []string
}

// NewInput contains parameters for creating a new session
type NewInput struct {
	Completer    adapter.Completer
	Dispatcher   Dispatcher
	SystemPrompt string

	// MaxIterations bounds the model calls of one Send. Zero means DefaultMaxIterations.
	MaxIterations int

	// Now is the clock used for the status line. Nil means time.Now.
	Now func() time.Time
}

func New(input NewInput) *Session {
	s := &Session{
		completer:     input.Completer,
		dispatcher:    input.Dispatcher,
		systemPrompt:  input.SystemPrompt,
		maxIterations: input.MaxIterations,
		now:           input.Now,
	}
	if s.maxIterations <= 0 {
		s.maxIterations = DefaultMaxIterations
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Reply is the outcome of one user turn
type Reply struct {
	// Response is the text of the last response block, empty if the model gave none
	Response string
	Channel  string

	// Iterations is the number of model calls made
	Iterations int

	// Exhausted is set when the loop stopped at the iteration limit while
	// the model still had informational results to read
	Exhausted bool
}

// History returns a copy of the conversation so far
func (s *Session) History() []model.Message {
	return slices.Clone(s.history)
}

func (s *Session) statusLine() string {
	now := s.now()
	return fmt.Sprintf("<status>Today is %s. The time is %s. All systems are operational.</status>",
		now.Format("January 2 2006"), now.Format("15:04"))
}

// Send delivers message to the model and runs tool rounds until the model
// stops producing informational results.
func (s *Session) Send(ctx context.Context, message string) (*Reply, error) {
	logger := logging.From(ctx)

	var prefix []string
	if len(s.history) == 0 {
		prefix = append(prefix, s.statusLine())
	}
	prefix = append(prefix, s.pending...)
	s.pending = nil

	s.history = append(s.history, model.Message{
		Role: model.RoleUser,
		Text: strings.Join(append(prefix, message), "\n"),
	})

	reply := &Reply{}
	for reply.Iterations < s.maxIterations {
		reply.Iterations++

		text, err := s.completer.Complete(ctx, s.systemPrompt, s.history)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to complete", goerr.V("iteration", reply.Iterations))
		}
		s.history = append(s.history, model.Message{Role: model.RoleAssistant, Text: text})

		out, err := parser.Parse(text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse model output", goerr.V("iteration", reply.Iterations))
		}

		if out.Response != nil {
			reply.Response = *out.Response
			reply.Channel = out.ResponseChannel
		}

		result := s.dispatcher.DispatchAll(ctx, out.Tags)
		if result.Deferrable != "" {
			s.pending = append(s.pending, result.Deferrable)
		}

		logger.Debug("agent iteration done",
			"iteration", reply.Iterations,
			"tags", len(out.Tags),
			"has_response", out.Response != nil,
			"informational", result.Informational != "")

		if result.Informational == "" {
			return reply, nil
		}
		s.feedback(result.Informational)
	}

	logger.Warn("agent loop reached iteration limit", "max_iterations", s.maxIterations)
	reply.Exhausted = true
	return reply, nil
}

func (s *Session) feedback(text string) {
	s.history = append(s.history, model.Message{Role: model.RoleUser, Text: text})
}
