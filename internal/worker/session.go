package worker

import (
	"github.com/samcharles93/lmpeek/internal/engine"
	"github.com/samcharles93/lmpeek/internal/model"
	"github.com/samcharles93/lmpeek/internal/tokenizer"
)

// Session is the state one worker carries across commands. Only the worker
// goroutine touches it.
type Session struct {
	loaded    bool
	modelType string
	arch      model.Architecture
	tokenizer tokenizer.Tokenizer
	engine    engine.Engine
	// logging raises per-command timing logs from debug to info.
	logging bool
}

// Loaded reports whether a model has been loaded.
func (s *Session) Loaded() bool { return s.loaded }

// Architecture is the shape of the loaded model.
func (s *Session) Architecture() model.Architecture { return s.arch }

func (s *Session) close() error {
	if s.engine == nil {
		return nil
	}
	err := s.engine.Close()
	s.engine = nil
	s.loaded = false
	return err
}
