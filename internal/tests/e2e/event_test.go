//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/eventdesk/apiserver/config"
	"github.com/eventdesk/apiserver/internal/db"
	"github.com/eventdesk/apiserver/internal/server"
	"github.com/eventdesk/apiserver/internal/services"
	"github.com/eventdesk/apiserver/internal/store"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	serverPort = 18080
	password   = "testpass123!"
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setEnv()

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	_ = srv.Shutdown(shutdownCtx)
	stop()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestEventLifecycle(t *testing.T) {
	suffix := strconv.FormatInt(time.Now().UnixNano(), 36)
	admin := "admin_" + suffix
	organizer := "organizer_" + suffix
	participant := "participant_" + suffix

	for _, username := range []string{admin, organizer, participant} {
		if err := signup(username); err != nil {
			t.Fatalf("signup %s: %v", username, err)
		}
		if err := activate(username); err != nil {
			t.Fatalf("activate %s: %v", username, err)
		}
	}
	if err := setRole(admin, "Admin"); err != nil {
		t.Fatalf("promote admin: %v", err)
	}

	adminToken := mustLogin(t, admin)
	organizerToken := mustLogin(t, organizer)
	participantToken := mustLogin(t, participant)

	var user struct {
		ID int `json:"id"`
	}
	if err := doJSON(http.MethodGet, "/profile", organizerToken, nil, http.StatusOK, &user); err != nil {
		t.Fatalf("organizer profile: %v", err)
	}
	if err := doJSON(http.MethodPost, fmt.Sprintf("/users/%d/role", user.ID), adminToken,
		map[string]string{"role": "Organizer"}, http.StatusOK, nil); err != nil {
		t.Fatalf("change role: %v", err)
	}

	var category struct {
		ID int `json:"id"`
	}
	if err := doJSON(http.MethodPost, "/categories", adminToken,
		map[string]string{"name": "Category " + suffix}, http.StatusCreated, &category); err != nil {
		t.Fatalf("create category: %v", err)
	}

	fields := map[string]string{
		"title":       "Launch party",
		"description": "Cake and demos",
		"date":        "2026-12-01",
		"time":        "19:00",
		"location":    "Main hall",
		"category":    strconv.Itoa(category.ID),
	}
	if err := doForm(http.MethodPost, "/events", participantToken, fields, http.StatusSeeOther, nil); err != nil {
		t.Fatalf("participant create: %v", err)
	}

	var event struct {
		ID          int    `json:"id"`
		Title       string `json:"title"`
		OrganizerID int    `json:"organizer_id"`
	}
	if err := doForm(http.MethodPost, "/events", organizerToken, fields, http.StatusCreated, &event); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if event.OrganizerID != user.ID {
		t.Fatalf("organizer = %d, want %d", event.OrganizerID, user.ID)
	}
	eventPath := fmt.Sprintf("/events/%d", event.ID)

	if err := doJSON(http.MethodPost, eventPath+"/rsvp", participantToken, nil, http.StatusCreated, nil); err != nil {
		t.Fatalf("rsvp: %v", err)
	}
	var again struct {
		AlreadyRSVPd bool `json:"already_rsvpd"`
	}
	if err := doJSON(http.MethodPost, eventPath+"/rsvp", participantToken, nil, http.StatusOK, &again); err != nil {
		t.Fatalf("repeat rsvp: %v", err)
	}
	if !again.AlreadyRSVPd {
		t.Fatal("repeat rsvp not reported")
	}

	if err := doJSON(http.MethodDelete, eventPath, participantToken, nil, http.StatusSeeOther, nil); err != nil {
		t.Fatalf("participant delete: %v", err)
	}
	if err := doJSON(http.MethodDelete, eventPath, adminToken, nil, http.StatusNoContent, nil); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := doJSON(http.MethodGet, eventPath, participantToken, nil, http.StatusNotFound, nil); err != nil {
		t.Fatalf("deleted event: %v", err)
	}

	if err := doJSON(http.MethodPost, "/logout", participantToken, nil, http.StatusOK, nil); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := doJSON(http.MethodGet, "/dashboard", participantToken, nil, http.StatusUnauthorized, nil); err != nil {
		t.Fatalf("token after logout: %v", err)
	}
}

func signup(username string) error {
	return doJSON(http.MethodPost, "/signup", "", map[string]string{
		"username":   username,
		"email":      username + "@example.com",
		"first_name": "Test",
		"last_name":  "User",
		"password1":  password,
		"password2":  password,
	}, http.StatusCreated, nil)
}

// activate follows the link that the activation mail would carry.
func activate(username string) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.URL(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	user, err := store.NewUserRepository(conn).GetByUsername(context.Background(), username)
	if err != nil {
		return err
	}
	token, err := services.NewActivationTokens(cfg.Auth.ActivationKey(), cfg.Auth.ActivationTTL).Issue(user)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/activate/%s/%s", services.EncodeUID(user.ID), token)
	return doJSON(http.MethodGet, path, "", nil, http.StatusOK, nil)
}

func setRole(username, role string) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.URL(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = conn.ExecContext(ctx, "UPDATE users SET role = $1, updated_at = NOW() WHERE username = $2", role, username)
	return err
}

func mustLogin(t *testing.T, username string) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	if err := doJSON(http.MethodPost, "/login", "", map[string]string{
		"username": username,
		"password": password,
	}, http.StatusOK, &resp); err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	if resp.Token == "" {
		t.Fatalf("login %s: missing token", username)
	}
	return resp.Token
}

func doJSON(method, path, token string, payload any, want int, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	return do(method, path, token, body, "application/json", want, out)
}

func doForm(method, path, token string, fields map[string]string, want int, out any) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return do(method, path, token, &body, writer.FormDataContentType(), want, out)
}

func do(method, path, token string, body io.Reader, contentType string, want int, out any) error {
	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s status %d, want %d: %s", method, path, resp.StatusCode, want, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func setEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", strconv.Itoa(serverPort))
	_ = os.Setenv("BASE_URL", baseURL)
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "eventdesk")
	_ = os.Setenv("DB_PASSWORD", "eventdesk")
	_ = os.Setenv("DB_NAME", "eventdesk")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("BCRYPT_COST", "4")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "eventdesk")
	_ = os.Setenv("MAIL_BACKEND", "log")
	_ = os.Setenv("THROTTLE_BURST", "100")
}

func startServer(ctx context.Context) (*server.Server, error) {
	srv, err := server.New(ctx, config.LoadConfig(), zap.NewNop())
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.URL(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.URL(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
