package vaultserver

import (
	"context"
	"errors"
	"time"

	"github.com/yndnr/vaultkv-go/internal/core/domain"
	"github.com/yndnr/vaultkv-go/internal/protocol"
	"github.com/yndnr/vaultkv-go/pkg/integrity"
)

// handle executes one request. quit reports that the session must close
// after the response is written.
func (s *Server) handle(ctx context.Context, ss *session, req *protocol.Request) (resp *protocol.Response, quit bool) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveRequest(string(req.Op), string(resp.Status), time.Since(start))
	}()

	if req.Op.IsData() && !s.limiter.Allow(ss.identity) {
		s.metrics.RateLimitedRequest()
		ss.logger.Debug("request rate limited", "op", req.Op, "identity", ss.identity)
		return statusResponse(domain.StatusRateLimited, domain.ErrRateLimited.Message), false
	}

	switch req.Op {
	case protocol.OpPut:
		return s.handlePut(ctx, ss, req), false
	case protocol.OpGet:
		return s.handleGet(ctx, ss, req), false
	case protocol.OpDelete:
		return s.handleDelete(ctx, ss, req), false
	case protocol.OpPing:
		return &protocol.Response{Status: domain.StatusOK, Message: "PONG"}, false
	case protocol.OpHello:
		return s.handleHello(ss, req), false
	case protocol.OpQuit:
		return &protocol.Response{Status: domain.StatusOK}, true
	default:
		// the reader rejects unknown ops before dispatch
		return errorResponse("unknown operation"), true
	}
}

func (s *Server) handlePut(ctx context.Context, ss *session, req *protocol.Request) *protocol.Response {
	var err error
	if req.Digest != "" {
		digest, perr := integrity.ParseDigest(req.Digest)
		if perr != nil {
			return s.failure(ss, req, domain.ErrInvalidArgument.WithDetails("malformed digest"))
		}
		err = s.store.PutVerified(ctx, req.Key, req.Value, digest)
	} else {
		err = s.store.Put(ctx, req.Key, req.Value)
	}
	if err != nil {
		return s.failure(ss, req, err)
	}
	return &protocol.Response{Status: domain.StatusOK}
}

func (s *Server) handleGet(ctx context.Context, ss *session, req *protocol.Request) *protocol.Response {
	item, found, err := s.store.Get(ctx, req.Key)
	if err != nil {
		return s.failure(ss, req, err)
	}
	if !found {
		return &protocol.Response{Status: domain.StatusNotFound}
	}
	return &protocol.Response{
		Status:   domain.StatusOK,
		Value:    item.Value,
		Digest:   item.Digest,
		HasValue: true,
	}
}

func (s *Server) handleDelete(ctx context.Context, ss *session, req *protocol.Request) *protocol.Response {
	found, err := s.store.Delete(ctx, req.Key)
	if err != nil {
		return s.failure(ss, req, err)
	}
	if !found {
		return &protocol.Response{Status: domain.StatusNotFound}
	}
	return &protocol.Response{Status: domain.StatusOK}
}

// handleHello binds a client id to the session. Saying HELLO again with a
// new id releases the old one.
func (s *Server) handleHello(ss *session, req *protocol.Request) *protocol.Response {
	id, err := domain.SanitizeClientID(req.ClientID)
	if err != nil {
		return s.failure(ss, req, err)
	}
	if id == ss.clientID {
		return &protocol.Response{Status: domain.StatusOK, Message: id}
	}
	if !s.clientIDs.SetIfAbsent(id, ss.id) {
		return s.failure(ss, req, domain.ErrClientIDInUse)
	}
	if ss.clientID != "" {
		old := ss.clientID
		s.clientIDs.DeleteIf(old, func(owner string) bool { return owner == ss.id })
	}
	ss.clientID = id
	ss.logger.Info("client identified", "client_id", id)
	return &protocol.Response{Status: domain.StatusOK, Message: id}
}

// failure maps err to a response. Connection-fatal errors never reach here.
func (s *Server) failure(ss *session, req *protocol.Request, err error) *protocol.Response {
	status := domain.StatusOf(err)
	code := domain.GetErrorCode(err)
	switch {
	case status == domain.StatusIntegrityViolation:
		ss.logger.Error("integrity violation on read", "op", req.Op, "key", req.Key, "code", code)
	case !domain.IsDomainError(err, ""):
		ss.logger.Error("request failed with unclassified error", "op", req.Op, "error", err)
	case status == domain.StatusError:
		ss.logger.Error("request failed", "op", req.Op, "code", code, "error", err)
	default:
		ss.logger.Debug("request rejected", "op", req.Op, "status", status, "code", code, "error", err)
	}
	return statusResponse(status, diagnostic(err))
}

// diagnostic returns the client-facing message for err. Causes are not
// exposed.
func diagnostic(err error) string {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return domain.ErrInternal.Message
	}
	if de.Details != "" {
		return de.Message + ": " + de.Details
	}
	return de.Message
}

func statusResponse(status domain.Status, msg string) *protocol.Response {
	return &protocol.Response{Status: status, Message: msg}
}

func errorResponse(msg string) *protocol.Response {
	return statusResponse(domain.StatusError, msg)
}
