package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"

	"go.uber.org/zap"

	"finitefield.org/poster-web/internal/platform/cookiesign"
	"finitefield.org/poster-web/internal/platform/requestctx"
)

const (
	sessionCookieName = "POSTER_WEB_SESSION"
	sessionTTL        = 30 * 24 * time.Hour
)

// SessionData is the signed, browser-held session.
type SessionData struct {
	ID        string    `json:"id"`
	CSRFToken string    `json:"csrf,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	dirty bool
}

// Sessions issues and verifies the session cookie.
type Sessions struct {
	codec  *cookiesign.Codec
	secure bool
	now    func() time.Time
}

// NewSessions builds the session middleware around codec. Secure marks cookies Secure.
func NewSessions(codec *cookiesign.Codec, secure bool) *Sessions {
	return &Sessions{codec: codec, secure: secure, now: time.Now}
}

// Middleware loads or creates the session and writes the cookie before the first byte of the response.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sd := s.read(r)
		if sd.ID == "" {
			sd = &SessionData{
				ID:        randID(),
				CSRFToken: newCSRFToken(),
				CreatedAt: s.now().UTC(),
				dirty:     true,
			}
		}

		bw := &beforeWriteWriter{ResponseWriter: w}
		bw.hook = func() {
			if sd.dirty {
				s.write(w, r, sd)
				sd.dirty = false
			}
		}
		next.ServeHTTP(bw, r.WithContext(withSession(r.Context(), sd)))
		if !bw.wrote {
			bw.hook()
		}
	})
}

func (s *Sessions) read(r *http.Request) *SessionData {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return &SessionData{}
	}
	var sd SessionData
	if err := s.codec.Decode(sessionCookieName, c.Value, &sd); err != nil {
		requestctx.Logger(r.Context()).Debug("session cookie rejected", zap.Error(err))
		return &SessionData{}
	}
	return &sd
}

func (s *Sessions) write(w http.ResponseWriter, r *http.Request, sd *SessionData) {
	value, err := s.codec.Encode(sessionCookieName, sd)
	if err != nil {
		requestctx.Logger(r.Context()).Warn("session cookie not written", zap.Error(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  s.now().Add(sessionTTL),
	})
}

type beforeWriteWriter struct {
	http.ResponseWriter
	hook  func()
	wrote bool
}

func (w *beforeWriteWriter) WriteHeader(code int) {
	if !w.wrote {
		w.wrote = true
		w.hook()
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *beforeWriteWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *beforeWriteWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *beforeWriteWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func randID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func newCSRFToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
