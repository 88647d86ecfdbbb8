package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ciesa/portal-client/model"
	"github.com/rs/zerolog"
)

// portalFake is a minimal stand-in for the portal backend: CSRF issuance,
// cookie session, and a handful of endpoints the tests poke at.
type portalFake struct {
	mux *http.ServeMux
	srv *httptest.Server

	csrfFetches atomic.Int64
	forbidNext  atomic.Bool

	lastCSRF   atomic.Value // string
	lastCookie atomic.Value // string
}

func newPortalFake(t *testing.T) *portalFake {
	t.Helper()
	p := &portalFake{mux: http.NewServeMux()}

	p.mux.HandleFunc("GET /api/csrf-token", func(w http.ResponseWriter, _ *http.Request) {
		n := p.csrfFetches.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"csrf_token": fmt.Sprintf("tok-%d", n)})
	})
	p.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "sesame" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s3cr3t", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "OK",
			"user":    model.User{ID: 1, Username: body["username"], Role: model.RoleStudent},
		})
	})
	p.mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		writeJSON(w, http.StatusOK, map[string]string{"message": "OK"})
	})
	p.mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		if c, err := r.Cookie("session"); err != nil || c.Value != "s3cr3t" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not logged in"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": model.User{ID: 1, Username: "ada"}})
	})
	p.mux.HandleFunc("POST /api/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		if p.forbidNext.CompareAndSwap(true, false) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "csrf token mismatch"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "OK"})
	})
	p.mux.HandleFunc("GET /api/messages/{roomID}", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		writeJSON(w, http.StatusOK, map[string]any{
			"messages": []model.Message{{
				ID:     1,
				RoomID: 42,
				Text:   fmt.Sprintf("limit=%s offset=%s room=%s", q.Get("limit"), q.Get("offset"), r.PathValue("roomID")),
			}},
		})
	})
	p.mux.HandleFunc("POST /api/messages/upload-image", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad multipart"})
			return
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing image field"})
			return
		}
		_ = f.Close()
		writeJSON(w, http.StatusOK, model.ChatImage{
			Filename:  "up-" + hdr.Filename,
			ExpiresAt: "2026-09-07T00:00:00Z",
		})
	})
	p.mux.HandleFunc("POST /api/documents/upload", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad multipart"})
			return
		}
		_, hdr, err := r.FormFile("document")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing document field"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"document": model.Document{
				ID:        9,
				Filename:  hdr.Filename,
				Watermark: r.FormValue("watermark") == "true",
			},
		})
	})
	p.mux.HandleFunc("POST /api/admin/backup", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		var body map[string]bool
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !body["send_to_telegram"] {
			writeJSON(w, http.StatusOK, map[string]string{"message": "backup started"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "backup started, telegram queued"})
	})

	p.srv = httptest.NewServer(p.mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *portalFake) record(r *http.Request) {
	p.lastCSRF.Store(r.Header.Get(csrfHeader))
	if c, err := r.Cookie("session"); err == nil {
		p.lastCookie.Store(c.Value)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, p *portalFake) *Client {
	t.Helper()
	logger := zerolog.Nop()
	c, err := New(Config{Logger: &logger, BaseURL: p.srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestLoginCarriesSessionCookie(t *testing.T) {
	p := newPortalFake(t)
	c := newTestClient(t, p)
	ctx := context.Background()

	user, err := c.Login(ctx, "ada", "sesame")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Username != "ada" {
		t.Fatalf("unexpected user: %+v", user)
	}

	// The jar must replay the session cookie on the next call.
	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.ID != 1 {
		t.Fatalf("unexpected me: %+v", me)
	}
}

func TestCSRFAttachedAndCached(t *testing.T) {
	p := newPortalFake(t)
	c := newTestClient(t, p)
	ctx := context.Background()

	if _, err := c.Login(ctx, "ada", "sesame"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := p.lastCSRF.Load(); got != "tok-1" {
		t.Fatalf("first state-changing call carried csrf %q, want tok-1", got)
	}
	if err := c.MarkNotificationRead(ctx, 5); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if got := p.csrfFetches.Load(); got != 1 {
		t.Fatalf("token refetched despite cache, fetches=%d", got)
	}
}

func TestCSRFInvalidatedOn403(t *testing.T) {
	p := newPortalFake(t)
	c := newTestClient(t, p)
	ctx := context.Background()

	if _, err := c.Login(ctx, "ada", "sesame"); err != nil {
		t.Fatalf("login: %v", err)
	}

	p.forbidNext.Store(true)
	err := c.MarkNotificationRead(ctx, 5)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("expected 403 api error, got %v", err)
	}

	// Next state-changing call fetches a fresh token.
	if err = c.MarkNotificationRead(ctx, 5); err != nil {
		t.Fatalf("mark read after 403: %v", err)
	}
	if got := p.lastCSRF.Load(); got != "tok-2" {
		t.Fatalf("expected refreshed token tok-2, got %q", got)
	}
}

func TestLogoutInvalidatesCSRF(t *testing.T) {
	p := newPortalFake(t)
	c := newTestClient(t, p)
	ctx := context.Background()

	if _, err := c.Login(ctx, "ada", "sesame"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := c.MarkNotificationRead(ctx, 1); err != nil {
		t.Fatalf("post after logout: %v", err)
	}
	if got := p.csrfFetches.Load(); got != 2 {
		t.Fatalf("expected token refetch after logout, fetches=%d", got)
	}
}

func TestServerErrorSurfaced(t *testing.T) {
	p := newPortalFake(t)
	c := newTestClient(t, p)

	_, err := c.Login(context.Background(), "ada", "wrong")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "invalid credentials" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestMessagesByRoomPagination(t *testing.T) {
	p := newPortalFake(t)
	c := newTestClient(t, p)

	msgs, err := c.MessagesByRoom(context.Background(), 42, 25, 50)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "limit=25 offset=50 room=42" {
		t.Fatalf("unexpected response: %+v", msgs)
	}

	// Zero limit falls back to the default page size.
	msgs, err = c.MessagesByRoom(context.Background(), 42, 0, 0)
	if err != nil {
		t.Fatalf("fetch with defaults: %v", err)
	}
	want := fmt.Sprintf("limit=%d offset=0 room=42", DefaultMessageLimit)
	if msgs[0].Text != want {
		t.Fatalf("got %q, want %q", msgs[0].Text, want)
	}
}

func TestUploadChatImage(t *testing.T) {
	p := newPortalFake(t)
	c := newTestClient(t, p)

	img, err := c.UploadChatImage(context.Background(), "cat.png", strings.NewReader("pngbytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if img.Filename != "up-cat.png" || img.ExpiresAt == "" {
		t.Fatalf("unexpected upload result: %+v", img)
	}
}

func TestUploadDocumentWatermark(t *testing.T) {
	p := newPortalFake(t)
	c := newTestClient(t, p)

	doc, err := c.UploadDocument(context.Background(), "notes.pdf", strings.NewReader("pdfbytes"), true)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.Filename != "notes.pdf" || !doc.Watermark {
		t.Fatalf("watermark flag lost: %+v", doc)
	}
}

func TestTriggerBackup(t *testing.T) {
	p := newPortalFake(t)
	c := newTestClient(t, p)

	if err := c.TriggerBackup(context.Background(), true); err != nil {
		t.Fatalf("backup: %v", err)
	}
	if got := p.lastCSRF.Load(); got == "" {
		t.Fatal("backup request missing csrf header")
	}
}

func TestDocumentDownloadURL(t *testing.T) {
	p := newPortalFake(t)
	c := newTestClient(t, p)

	want := p.srv.URL + "/api/documents/download/7"
	if got := c.DocumentDownloadURL(7); got != want {
		t.Fatalf("download url = %q, want %q", got, want)
	}
}
