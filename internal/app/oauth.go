package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/semmidev/backdrop/internal/infrastructure/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

const (
	oauthStartPath    = "/auth/google/drive"
	oauthCallbackPath = "/auth/google/callback"
)

// GoogleOAuthService runs a small HTTP server that walks the user through
// the Google consent screen and stores the resulting token where the Drive
// remote expects it.
type GoogleOAuthService struct {
	config     *oauth2.Config
	tokenFile  string
	logger     *logger.Logger
	authServer *http.Server
	listener   net.Listener
	done       chan struct{}
	doneOnce   sync.Once
}

func NewGoogleOAuthService(logger *logger.Logger, clientSecretPath, tokenFile string) (*GoogleOAuthService, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if clientSecretPath == "" {
		return nil, errors.New("client secret path cannot be empty")
	}
	if tokenFile == "" {
		return nil, errors.New("token file path cannot be empty")
	}

	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return &GoogleOAuthService{
		config:    cfg,
		tokenFile: tokenFile,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

func (s *GoogleOAuthService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+oauthStartPath, s.handleStart)
	mux.HandleFunc("GET "+oauthCallbackPath, s.handleCallback)
	return mux
}

func (s *GoogleOAuthService) handleStart(w http.ResponseWriter, r *http.Request) {
	authURL := s.config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

func (s *GoogleOAuthService) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code parameter", http.StatusBadRequest)
		return
	}

	token, err := s.config.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, fmt.Sprintf("token exchange failed: %v", err), http.StatusInternalServerError)
		return
	}
	if token.RefreshToken == "" {
		http.Error(w, "no refresh token returned, revoke app access and authorize again", http.StatusBadGateway)
		return
	}

	if err := s.saveToken(token); err != nil {
		s.logger.Errorf("Failed to save token: %v", err)
		http.Error(w, "failed to save token", http.StatusInternalServerError)
		return
	}

	s.logger.Infof("Google Drive token saved to %s", s.tokenFile)
	fmt.Fprintf(w, "Token saved to %s, you can close this window.\n", s.tokenFile)

	s.doneOnce.Do(func() { close(s.done) })
}

func (s *GoogleOAuthService) saveToken(token *oauth2.Token) error {
	raw, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.tokenFile), 0700); err != nil {
		return err
	}
	return os.WriteFile(s.tokenFile, raw, 0600)
}

// Done is closed once a token has been saved.
func (s *GoogleOAuthService) Done() <-chan struct{} {
	return s.done
}

// StartAuthServer binds addr and serves the OAuth routes in a goroutine.
// A bind failure is returned, not just logged.
func (s *GoogleOAuthService) StartAuthServer(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start OAuth server: %w", err)
	}
	s.listener = ln
	s.authServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	bound := ln.Addr().String()
	go func() {
		s.logger.Infof("Google Drive OAuth server listening on %s, open http://%s%s", bound, bound, oauthStartPath)
		if err := s.authServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("OAuth server error: %v", err)
		}
	}()

	return nil
}

// Addr is the address the server is bound to, empty before StartAuthServer.
func (s *GoogleOAuthService) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GoogleOAuthService) Shutdown(ctx context.Context) error {
	if s.authServer == nil {
		return nil
	}

	if err := s.authServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown OAuth server: %w", err)
	}
	s.logger.Infof("OAuth server stopped successfully")
	return nil
}
