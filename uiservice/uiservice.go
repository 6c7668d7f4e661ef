package uiservice

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bigjimnolan/protectmotion/motionservice"
	"github.com/bigjimnolan/protectmotion/protectservice"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	cookieName = "protectmotion_auth"
	sessionTTL = 12 * time.Hour
)

var (
	loginTemplate = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><title>protectmotion</title></head><body>
<form method="post" action="/login">
<input type="password" name="password" placeholder="Password">
<button type="submit">Sign in</button>
</form>
</body></html>`))

	dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html><head><title>protectmotion</title></head><body>
<h1>Cameras</h1>
<ul>{{range .}}<li>{{.Name}} ({{.IPAddress}}) monitoring: {{.MotionEnabled}}</li>{{end}}</ul>
<h1>Notifications</h1>
<ul id="feed"></ul>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (e) => {
  const n = JSON.parse(e.data);
  const li = document.createElement("li");
  li.textContent = n.createdAt + " " + n.cameraName + ": " + n.label + " (" + n.score + "%)";
  document.getElementById("feed").prepend(li);
};
</script>
</body></html>`))
)

// UIService serves a small dashboard, a JSON API for the monitoring switches
// and notification history, and the live notification feed.
type UIService struct {
	config   UIConfig
	cameras  []protectservice.Camera
	switches CameraSwitch
	store    Store
	hub      *Hub

	sessionsMutex sync.Mutex
	sessions      map[string]time.Time
	now           func() time.Time
}

func NewUIService(config UIConfig, cameras []protectservice.Camera, switches CameraSwitch, store Store) *UIService {
	if config.ListenAddress == "" {
		config.ListenAddress = ":8443"
	}
	return &UIService{
		config:   config,
		cameras:  cameras,
		switches: switches,
		store:    store,
		hub:      NewHub(),
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Hub is the live feed; register it as a notifier.
func (ui *UIService) Hub() *Hub {
	return ui.hub
}

func (ui *UIService) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", ui.healthHandler)
	r.Get("/", ui.indexHandler)
	r.Post("/login", ui.loginHandler)

	r.Group(func(r chi.Router) {
		r.Use(ui.authMiddleware)
		r.Get("/api/cameras", ui.camerasHandler)
		r.Post("/api/cameras/{id}/motion-enabled", ui.switchHandler)
		r.Get("/api/notifications", ui.notificationsHandler)
		r.Handle("/ws", ui.hub)
	})
	return r
}

// Start serves until ctx is cancelled. TLS is used when both cert and key
// paths are configured.
func (ui *UIService) Start(ctx context.Context) error {
	if ui.config.PasswordHash == "" {
		log.Warn().Msg("No UI password hash configured, logins will fail")
	}

	server := &http.Server{
		Addr:              ui.config.ListenAddress,
		Handler:           ui.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	var err error
	if ui.config.ServerCertPath != "" && ui.config.ServerKeyPath != "" {
		log.Info().Msg("UI running on https://" + ui.config.ListenAddress)
		err = server.ListenAndServeTLS(ui.config.ServerCertPath, ui.config.ServerKeyPath)
	} else {
		log.Info().Msg("UI running on http://" + ui.config.ListenAddress)
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (ui *UIService) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (ui *UIService) indexHandler(w http.ResponseWriter, r *http.Request) {
	if !ui.authenticated(r) {
		loginTemplate.Execute(w, nil)
		return
	}
	if err := dashboardTemplate.Execute(w, ui.cameraViews()); err != nil {
		log.Error().Msgf("Error rendering dashboard: %v", err)
	}
}

func (ui *UIService) loginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	password := r.FormValue("password")
	if ui.config.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(ui.config.PasswordHash), []byte(password)) != nil {
		log.Warn().Msgf("Failed UI login from %s", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := uuid.NewString()
	ui.sessionsMutex.Lock()
	ui.sessions[token] = ui.now()
	ui.sessionsMutex.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		Secure:   r.TLS != nil,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (ui *UIService) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return false
	}

	ui.sessionsMutex.Lock()
	defer ui.sessionsMutex.Unlock()
	created, ok := ui.sessions[cookie.Value]
	if !ok {
		return false
	}
	if ui.now().Sub(created) >= sessionTTL {
		delete(ui.sessions, cookie.Value)
		return false
	}
	return true
}

func (ui *UIService) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ui.authenticated(r) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ui *UIService) cameraViews() []cameraView {
	views := make([]cameraView, 0, len(ui.cameras))
	for _, camera := range ui.cameras {
		enabled, err := ui.store.MotionEnabled(camera.ID)
		if err != nil {
			log.Warn().Msgf("Cannot read monitoring switch for %s: %v", camera.Name, err)
		}
		views = append(views, cameraView{Camera: camera, MotionEnabled: enabled})
	}
	return views
}

func (ui *UIService) camerasHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ui.cameraViews())
}

func (ui *UIService) switchHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	known := false
	for _, camera := range ui.cameras {
		if camera.ID == id {
			known = true
			break
		}
	}
	if !known {
		http.Error(w, "Camera not found", http.StatusNotFound)
		return
	}

	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, "Expected {\"enabled\": true|false}", http.StatusBadRequest)
		return
	}
	if err := ui.switches.SetMotionEnabled(id, *req.Enabled); err != nil {
		log.Error().Msgf("Failed to set monitoring for %s: %v", id, err)
		http.Error(w, "Failed to save", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "motionEnabled": *req.Enabled})
}

func (ui *UIService) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	notifications, err := ui.store.ListNotifications(limit)
	if err != nil {
		log.Error().Msgf("Failed to list notifications: %v", err)
		http.Error(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []motionservice.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Msgf("Error writing response: %v", err)
	}
}
