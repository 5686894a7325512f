// Package server is the HTTP surface: it turns every request into a
// mirage.RequestContext, hands it to the driver, and writes the reply.
// There are no routes; any path is a resource path.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/mirageapi/mirage"
)

// maxBodyBytes caps request bodies before JSON decoding.
const maxBodyBytes = 1 << 20

// Handler services one planned request. *mirage.Driver satisfies it.
type Handler interface {
	Handle(ctx context.Context, rc mirage.RequestContext) mirage.Reply
}

// Server is the http.Handler for the whole service.
type Server struct {
	handler   Handler
	authToken string
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAuthToken requires a matching bearer token on every resource request.
// The hint and health endpoints stay open.
func WithAuthToken(token string) Option {
	return func(s *Server) { s.authToken = token }
}

// WithLogger sets a structured logger for the server.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server over the given handler.
func New(h Handler, opts ...Option) *Server {
	s := &Server{handler: h, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		s.writeJSON(w, "", 200, map[string]any{
			"service": "mirage",
			"message": "send any REST request to a resource path, e.g. GET /members",
		})
		return
	case "/healthz":
		s.writeJSON(w, "", 200, map[string]any{"status": "ok"})
		return
	}

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = mirage.NewID()
	}

	token := bearerToken(r)
	if s.authToken != "" && token != s.authToken {
		s.logger.Warn("unauthorized request", "path", r.URL.Path, "request_id", requestID)
		s.writeReply(w, requestID, mirage.ErrorReply(401, "unauthorized"))
		return
	}

	rc, errReply := s.buildContext(r, requestID, token)
	if errReply != nil {
		s.writeReply(w, requestID, *errReply)
		return
	}

	reply := s.handler.Handle(r.Context(), rc)
	s.writeReply(w, requestID, reply)
}

// buildContext assembles the request context. The second return value is a
// ready error reply for malformed requests.
func (s *Server) buildContext(r *http.Request, requestID, token string) (mirage.RequestContext, *mirage.Reply) {
	var segments []string
	for _, seg := range strings.Split(strings.Trim(r.URL.Path, "/"), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	headers := make(map[string]string, len(r.Header))
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		reply := mirage.ErrorReply(400, "unreadable request body")
		return mirage.RequestContext{}, &reply
	}

	var bodyJSON any
	ct := r.Header.Get("Content-Type")
	if len(raw) > 0 && strings.HasPrefix(ct, "application/json") {
		if err := json.Unmarshal(raw, &bodyJSON); err != nil {
			reply := mirage.ErrorReply(400, "request body is not valid JSON")
			return mirage.RequestContext{}, &reply
		}
	}

	ip := clientIP(r)
	return mirage.RequestContext{
		Method:    r.Method,
		Path:      r.URL.Path,
		Segments:  segments,
		Query:     r.URL.Query(),
		Headers:   headers,
		BodyJSON:  bodyJSON,
		BodyRaw:   raw,
		Client:    mirage.ClientInfo{IP: ip},
		Session:   mirage.SessionInfo{ID: sessionID(r, token, ip), Token: token},
		RequestID: requestID,
	}, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// sessionID derives the tenant identity: an explicit X-Session-ID wins,
// else requests hash to a stable tenant per token, else per client host.
func sessionID(r *http.Request, token, ip string) string {
	if id := r.Header.Get("X-Session-ID"); id != "" {
		return id
	}
	seed := token
	if seed == "" {
		seed = r.Host + "|" + ip
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:16]
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) writeReply(w http.ResponseWriter, requestID string, reply mirage.Reply) {
	for k, v := range reply.Headers {
		w.Header().Set(k, v)
	}
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}

	if reply.Body == nil {
		w.WriteHeader(reply.Status)
		return
	}

	if reply.IsJSON {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(reply.Status)
		if err := json.NewEncoder(w).Encode(reply.Body); err != nil {
			s.logger.Error("write reply", "error", err)
		}
		return
	}

	if reply.MediaType != "" && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", reply.MediaType)
	}
	w.WriteHeader(reply.Status)
	switch b := reply.Body.(type) {
	case []byte:
		w.Write(b)
	case string:
		io.WriteString(w, b)
	default:
		fmt.Fprint(w, b)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, requestID string, status int, body any) {
	reply := mirage.Reply{Status: status, Headers: map[string]string{}, Body: body, IsJSON: true}
	s.writeReply(w, requestID, reply)
}
