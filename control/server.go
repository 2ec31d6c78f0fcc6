// Package control exposes the engine over OSC. Address patterns map
// onto queue commands; nothing here touches the graph directly, every
// message crosses into the dispatch loop through the command queue.
package control

import (
	"strings"

	"github.com/hypebeast/go-osc/osc"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Cignor/Collider-sub001/command"
)

// continuousParams are the address classes updated at control rate.
// They route through the coalescing path so a burst collapses to the
// latest value per (voice, param).
var continuousParams = map[string]bool{
	"position": true,
	"speed":    true,
	"pitch":    true,
	"pan":      true,
}

// Server is the OSC control surface.
type Server struct {
	queue   *command.Queue
	logger  *logrus.Logger
	session string
	osc     *osc.Server
}

// NewServer creates a control server pushing into queue. Addr is the
// UDP listen address.
func NewServer(addr string, queue *command.Queue, logger *logrus.Logger) *Server {
	s := &Server{
		queue:   queue,
		logger:  logger,
		session: uuid.NewString(),
	}
	d := osc.NewStandardDispatcher()
	d.AddMsgHandler("/voice/create", s.handleCreate)
	d.AddMsgHandler("/voice/free", s.handleFree)
	d.AddMsgHandler("/voice/param", s.handleParam)
	d.AddMsgHandler("/voice/gain", s.handleGain)
	d.AddMsgHandler("/voice/state", s.handleState)
	d.AddMsgHandler("/voice/mode", s.handleMode)
	d.AddMsgHandler("/bus/param", s.handleBusParam)
	d.AddMsgHandler("/engine/dump", s.handleDump)
	s.osc = &osc.Server{Addr: addr, Dispatcher: d}
	return s
}

// ListenAndServe blocks serving OSC packets.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logrus.Fields{
		"addr":    s.osc.Addr,
		"session": s.session,
	}).Info("control server listening")
	return s.osc.ListenAndServe()
}

// Close shuts the server connection down.
func (s *Server) Close() error {
	return s.osc.CloseConnection()
}

func (s *Server) handleCreate(msg *osc.Message) {
	id, ok := idArg(msg, 0)
	typeTag, okType := stringArg(msg, 1)
	if !ok || !okType {
		s.drop(msg)
		return
	}
	resource, _ := stringArg(msg, 2)
	s.queue.Push(command.Command{
		Kind:     command.Create,
		Target:   id,
		Type:     typeTag,
		Resource: resource,
	})
}

func (s *Server) handleFree(msg *osc.Message) {
	id, ok := idArg(msg, 0)
	if !ok {
		s.drop(msg)
		return
	}
	s.queue.Push(command.Command{Kind: command.Destroy, Target: id})
}

func (s *Server) handleParam(msg *osc.Message) {
	id, okID := idArg(msg, 0)
	name, okName := stringArg(msg, 1)
	value, okValue := floatArg(msg, 2)
	if !okID || !okName || !okValue {
		s.drop(msg)
		return
	}
	normalized, _ := boolArg(msg, 3)
	s.pushParam(command.Command{
		Kind:       command.ParamUpdate,
		Target:     id,
		Name:       name,
		Value:      value,
		Normalized: normalized,
	})
}

// handleGain is the N:1 mapping: /voice/gain and /voice/param with
// name "gain" land on the same command.
func (s *Server) handleGain(msg *osc.Message) {
	id, okID := idArg(msg, 0)
	value, okValue := floatArg(msg, 1)
	if !okID || !okValue {
		s.drop(msg)
		return
	}
	s.pushParam(command.Command{
		Kind:   command.ParamUpdate,
		Target: id,
		Name:   "gain",
		Value:  value,
	})
}

func (s *Server) handleState(msg *osc.Message) {
	id, okID := idArg(msg, 0)
	blob, okBlob := blobArg(msg, 1)
	if !okID || !okBlob {
		s.drop(msg)
		return
	}
	s.queue.Push(command.Command{Kind: command.LoadState, Target: id, Blob: blob})
}

func (s *Server) handleMode(msg *osc.Message) {
	id, okID := idArg(msg, 0)
	mode, okMode := stringArg(msg, 1)
	if !okID || !okMode {
		s.drop(msg)
		return
	}
	s.queue.Push(command.Command{Kind: command.SetMode, Target: id, Mode: mode})
}

func (s *Server) handleBusParam(msg *osc.Message) {
	name, okName := stringArg(msg, 0)
	value, okValue := floatArg(msg, 1)
	if !okName || !okValue {
		s.drop(msg)
		return
	}
	s.pushParam(command.Command{
		Kind:   command.ParamUpdate,
		Target: command.Bus,
		Name:   name,
		Value:  value,
	})
}

func (s *Server) handleDump(*osc.Message) {
	s.queue.Push(command.Command{Kind: command.DebugDump})
}

func (s *Server) pushParam(cmd command.Command) {
	if continuousParams[cmd.Name] || strings.HasPrefix(cmd.Name, "listener") {
		s.queue.PushCoalesced(cmd)
		return
	}
	s.queue.Push(cmd)
}

func (s *Server) drop(msg *osc.Message) {
	s.logger.WithFields(logrus.Fields{
		"address": msg.Address,
		"session": s.session,
	}).Debug("message dropped, bad arguments")
}

func idArg(msg *osc.Message, i int) (uint64, bool) {
	v, ok := floatArg(msg, i)
	if !ok || v < 0 {
		return 0, false
	}
	return uint64(v), true
}

func floatArg(msg *osc.Message, i int) (float64, bool) {
	if i >= len(msg.Arguments) {
		return 0, false
	}
	switch v := msg.Arguments[i].(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func stringArg(msg *osc.Message, i int) (string, bool) {
	if i >= len(msg.Arguments) {
		return "", false
	}
	v, ok := msg.Arguments[i].(string)
	return v, ok
}

func blobArg(msg *osc.Message, i int) ([]byte, bool) {
	if i >= len(msg.Arguments) {
		return nil, false
	}
	v, ok := msg.Arguments[i].([]byte)
	return v, ok
}

func boolArg(msg *osc.Message, i int) (bool, bool) {
	if i >= len(msg.Arguments) {
		return false, false
	}
	v, ok := msg.Arguments[i].(bool)
	return v, ok
}
