package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tyrowin/hangout/internal/auth"
	"github.com/Tyrowin/hangout/internal/names"
	apperrors "github.com/Tyrowin/hangout/internal/platform/errors"
	"github.com/Tyrowin/hangout/internal/protocol"
	"github.com/Tyrowin/hangout/internal/rooms"
	"github.com/Tyrowin/hangout/internal/storage"
)

const (
	historyLimit     = 50
	maxContentRunes  = 2000
	maxMediaRefBytes = 2048
)

func (s *Server) startSpan(r *http.Request, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(r.Context(), name, trace.WithAttributes(attrs...))
}

func (s *Server) requireStore() error {
	if s.store == nil {
		return apperrors.New(apperrors.CodeUnavailable, "storage is not configured")
	}
	return nil
}

type createRoomRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
	Owner  string `json:"owner"`
}

type verifyRoomRequest struct {
	Secret string `json:"secret"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "rooms.list")
	defer span.End()

	writeJSON(w, http.StatusOK, s.rooms.List(s.hub.Registry()))
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "rooms.create")
	defer span.End()

	var req createRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, span, err)
		return
	}
	owner := names.Normalize(req.Owner)
	if err := names.Validate("owner", owner); err != nil {
		writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.String("room", req.Name))

	room, err := s.rooms.Create(ctx, req.Name, req.Secret, owner)
	if err != nil {
		writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusCreated, rooms.Summary{
		Name:      room.Name,
		HasSecret: room.HasSecret(),
		Owner:     room.Owner,
		CreatedAt: room.CreatedAt,
	})
}

func (s *Server) handleVerifyRoom(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "rooms.verify", attribute.String("room", r.PathValue("name")))
	defer span.End()

	var req verifyRoomRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, span, err)
			return
		}
	}
	if err := s.rooms.Verify(r.PathValue("name"), req.Secret); err != nil {
		writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type createMessageRequest struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Type     string `json:"type"`
	Content  string `json:"content"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = s.cfg.DefaultRoom
	}
	ctx, span := s.startSpan(r, "messages.list", attribute.String("room", room))
	defer span.End()

	if err := s.requireStore(); err != nil {
		writeError(w, span, err)
		return
	}
	if _, ok := s.rooms.Get(room); !ok {
		writeError(w, span, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("room %q not found", room)))
		return
	}
	limit := historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > historyLimit {
			writeError(w, span, apperrors.Invalid("limit", fmt.Sprintf("limit must be between 1 and %d", historyLimit)))
			return
		}
		limit = n
	}

	msgs, err := s.store.ListMessages(ctx, names.Normalize(room), limit)
	if err != nil {
		writeError(w, span, apperrors.Wrap(apperrors.CodeUnavailable, "list messages", err))
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// validateMessage checks a create request and returns the message to store.
func (s *Server) validateMessage(req createMessageRequest) (storage.Message, error) {
	msg := storage.Message{
		Room:     names.Normalize(req.Room),
		Username: names.Normalize(req.Username),
		Type:     req.Type,
		Content:  strings.TrimSpace(req.Content),
	}
	if msg.Room == "" {
		msg.Room = s.cfg.DefaultRoom
	}
	if err := names.Validate("username", msg.Username); err != nil {
		return storage.Message{}, err
	}
	if msg.Type == "" {
		msg.Type = storage.MessageText
	}

	switch msg.Type {
	case storage.MessageText:
		if msg.Content == "" {
			return storage.Message{}, apperrors.Invalid("content", "content is required")
		}
		if utf8.RuneCountInString(msg.Content) > maxContentRunes {
			return storage.Message{}, apperrors.Invalid("content", fmt.Sprintf("content must be at most %d characters", maxContentRunes))
		}
	case storage.MessageImage, storage.MessageGIF:
		if err := validateMediaRef("content", msg.Content); err != nil {
			return storage.Message{}, err
		}
	default:
		return storage.Message{}, apperrors.Invalid("type", "type must be one of text, image, gif")
	}

	if _, ok := s.rooms.Get(msg.Room); !ok {
		return storage.Message{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("room %q not found", msg.Room))
	}
	return msg, nil
}

// validateMediaRef accepts absolute http(s) URLs and server-relative paths.
func validateMediaRef(field, ref string) error {
	if ref == "" {
		return apperrors.Invalid(field, field+" is required")
	}
	if len(ref) > maxMediaRefBytes {
		return apperrors.Invalid(field, fmt.Sprintf("%s must be at most %d bytes", field, maxMediaRefBytes))
	}
	if strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//") {
		return nil
	}
	parsed, err := url.Parse(ref)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return apperrors.Invalid(field, field+" must be an http(s) URL or a server path")
	}
	return nil
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "messages.create")
	defer span.End()

	if err := s.requireStore(); err != nil {
		writeError(w, span, err)
		return
	}
	var req createMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, span, err)
		return
	}
	msg, err := s.validateMessage(req)
	if err != nil {
		writeError(w, span, err)
		return
	}

	created, err := s.store.CreateMessage(ctx, msg)
	if err != nil {
		writeError(w, span, apperrors.Wrap(apperrors.CodeUnavailable, "persist message", err))
		return
	}
	span.SetAttributes(attribute.String("room", created.Room), attribute.Int64("message.id", created.ID))

	s.hub.NotifyMessage(protocol.EventNewMessage, created.Room, created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// handleDeleteMessage removes a message when the caller is its author, the
// owner of its room, or presents an admin token.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "messages.delete")
	defer span.End()

	if err := s.requireStore(); err != nil {
		writeError(w, span, err)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, span, apperrors.Invalid("id", "message id must be a positive integer"))
		return
	}
	span.SetAttributes(attribute.Int64("message.id", id))

	msg, err := s.store.GetMessage(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, span, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("message %d not found", id)))
		return
	}
	if err != nil {
		writeError(w, span, apperrors.Wrap(apperrors.CodeUnavailable, "load message", err))
		return
	}
	if err := s.authorizeDelete(r, msg); err != nil {
		writeError(w, span, err)
		return
	}

	err = s.store.DeleteMessage(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, span, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("message %d not found", id)))
		return
	}
	if err != nil {
		writeError(w, span, apperrors.Wrap(apperrors.CodeUnavailable, "delete message", err))
		return
	}

	s.hub.NotifyMessage(protocol.EventDeleteMessage, msg.Room, msg.ID)
	w.WriteHeader(http.StatusNoContent)
}

// authorizeDelete accepts a verified admin token, or a username that is the
// author or the room owner. Usernames are self-asserted, as on join; only the
// admin token is a credential.
func (s *Server) authorizeDelete(r *http.Request, msg storage.Message) error {
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
		_, err := auth.ValidateAdminToken(token, s.admin)
		return err
	}
	username := names.Normalize(r.URL.Query().Get("username"))
	if username == "" {
		return apperrors.New(apperrors.CodeUnauthenticated, "username or admin token is required")
	}
	if username == msg.Username {
		return nil
	}
	if owner := s.rooms.Owner(msg.Room); owner != "" && owner == username {
		return nil
	}
	return apperrors.New(apperrors.CodeForbidden, "only the author, the room owner or an admin may delete this message")
}

type upsertProfileRequest struct {
	Avatar string `json:"avatar"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "profiles.get")
	defer span.End()

	if err := s.requireStore(); err != nil {
		writeError(w, span, err)
		return
	}
	username := names.Normalize(r.PathValue("username"))
	profile, err := s.store.GetProfile(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, span, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("profile %q not found", username)))
		return
	}
	if err != nil {
		writeError(w, span, apperrors.Wrap(apperrors.CodeUnavailable, "load profile", err))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "profiles.put")
	defer span.End()

	if err := s.requireStore(); err != nil {
		writeError(w, span, err)
		return
	}
	username := names.Normalize(r.PathValue("username"))
	if err := names.Validate("username", username); err != nil {
		writeError(w, span, err)
		return
	}
	var req upsertProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, span, err)
		return
	}
	avatar := strings.TrimSpace(req.Avatar)
	if avatar != "" {
		if err := validateMediaRef("avatar", avatar); err != nil {
			writeError(w, span, err)
			return
		}
	}

	profile, err := s.store.UpsertProfile(ctx, storage.Profile{Username: username, AvatarRef: avatar, UpdatedAt: time.Now().UTC()})
	if err != nil {
		writeError(w, span, apperrors.Wrap(apperrors.CodeUnavailable, "save profile", err))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAdminJumpscare(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "admin.jumpscare")
	defer span.End()

	claims, err := auth.ValidateAdminToken(auth.BearerToken(r.Header.Get("Authorization")), s.admin)
	if err != nil {
		writeError(w, span, err)
		return
	}
	if err := s.hub.Relay().GlobalEffect(protocol.EventJumpscare); err != nil {
		writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.String("admin.subject", claims.Subject))
	writeJSON(w, http.StatusAccepted, map[string]int{"recipients": s.hub.Registry().Len()})
}

func (s *Server) handleGifSearch(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "gifs.search")
	defer span.End()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, span, apperrors.Invalid("limit", "limit must be an integer"))
			return
		}
		limit = n
	}
	data, err := s.gifs.Search(ctx, r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}
