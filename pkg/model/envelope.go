package model

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Class tells whether the model needs an envelope before it continues the
// current turn (informational) or whether it can wait for the next user turn
// (deferrable).
type Class int

const (
	ClassInformational Class = iota
	ClassDeferrable
)

func (c Class) String() string {
	if c == ClassDeferrable {
		return "deferrable"
	}
	return "informational"
}

// Envelope is the system's reply to one tag
type Envelope struct {
	Tag    string
	Status Status
	Body   string
	Class  Class
}

// String renders the envelope in the wire format sent back to the model
func (e Envelope) String() string {
	return fmt.Sprintf(`<system type="%s" status="%s">%s</system>`, e.Tag, e.Status, e.Body)
}

// BatchResult holds the joined envelopes of one dispatch batch. An empty
// string means no envelope of that class occurred.
type BatchResult struct {
	Informational string `json:"informational,omitempty"`
	Deferrable    string `json:"deferrable,omitempty"`
}

// NewBatchResult joins envelopes by class, keeping their order
func NewBatchResult(envelopes []Envelope) BatchResult {
	var info, deferred []string
	for _, env := range envelopes {
		if env.Class == ClassDeferrable {
			deferred = append(deferred, env.String())
		} else {
			info = append(info, env.String())
		}
	}
	return BatchResult{
		Informational: strings.Join(info, "\n"),
		Deferrable:    strings.Join(deferred, "\n"),
	}
}
