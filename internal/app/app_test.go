package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/infrastructure/logger"
	"github.com/semmidev/backdrop/internal/usecase"
	. "github.com/smartystreets/goconvey/convey"
)

func testConfig(t *testing.T) *config.Config {
	root := t.TempDir()
	data := filepath.Join(root, "data")
	remote := filepath.Join(root, "remote")

	if err := os.MkdirAll(data, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(data, "notes.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		App: config.AppConfig{Name: "backdrop", LogLevel: "error"},
		Producer: config.ProducerConfig{
			Name:        "site",
			WorkDir:     root,
			LocalPath:   filepath.Join(root, "backups"),
			FilePrefix:  "site",
			Compress:    true,
			KeepLocal:   3,
			Directories: []string{data},
		},
		Remote: config.RemoteConfig{
			Type:       "local",
			UploadPath: "/",
			Local:      config.LocalConfig{Path: remote},
		},
		Retention: config.RetentionConfig{
			Expiry:      720 * time.Hour,
			MatchSuffix: ".tar",
			AutoDelete:  true,
		},
		Schedule: config.ScheduleConfig{Cron: "0 0 3 * * *"},
	}
}

func TestApp(t *testing.T) {
	Convey("Given an app backed by a local remote", t, func() {
		cfg := testConfig(t)
		remote := cfg.Remote.Local.Path
		var out bytes.Buffer

		application, err := New(context.Background(), cfg, WithOutput(&out))
		So(err, ShouldBeNil)
		Reset(application.Shutdown)

		old := filepath.Join(remote, "site_old.tar")
		So(os.WriteFile(old, []byte("old"), 0644), ShouldBeNil)
		stale := time.Now().Add(-40 * 24 * time.Hour)
		So(os.Chtimes(old, stale, stale), ShouldBeNil)
		So(os.WriteFile(filepath.Join(remote, "readme.md"), []byte("keep"), 0644), ShouldBeNil)

		Convey("RunOnce uploads the archive and sweeps expired backups", func() {
			res := application.RunOnce(context.Background())

			So(res.Err, ShouldBeNil)
			So(res.Status, ShouldEqual, usecase.StatusOK)
			So(res.ExitCode(), ShouldEqual, 0)

			_, err := os.Stat(filepath.Join(remote, res.Uploaded.Name))
			So(err, ShouldBeNil)
			_, err = os.Stat(old)
			So(os.IsNotExist(err), ShouldBeTrue)
			_, err = os.Stat(filepath.Join(remote, "readme.md"))
			So(err, ShouldBeNil)

			So(out.String(), ShouldContainSubstring, "upload succeeded: "+res.Uploaded.Name)
			So(out.String(), ShouldContainSubstring, "expired file deleted: site_old.tar")
		})

		Convey("DeleteJunk only sweeps", func() {
			report, err := application.DeleteJunk(context.Background())

			So(err, ShouldBeNil)
			So(report.Deleted, ShouldHaveLength, 1)
			So(report.Deleted[0].Name, ShouldEqual, "site_old.tar")

			entries, err := os.ReadDir(remote)
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
		})

		Convey("RunDaemon returns once the context ends", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			So(application.RunDaemon(ctx), ShouldBeNil)
		})
	})

	Convey("Given Telegram notifications and an unreachable Bot API", t, func() {
		cfg := testConfig(t)
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		cfg.Notify.Telegram = config.TelegramConfig{
			Enabled:     true,
			BotToken:    "token",
			ChatID:      42,
			OnSuccess:   true,
			OnFailure:   true,
			APIEndpoint: dead.URL + "/bot%s/%s",
		}

		application, err := New(context.Background(), cfg, WithOutput(&bytes.Buffer{}))
		So(err, ShouldBeNil)
		Reset(application.Shutdown)

		Convey("The backup still runs and succeeds", func() {
			res := application.RunOnce(context.Background())

			So(res.Err, ShouldBeNil)
			So(res.Status, ShouldEqual, usecase.StatusOK)
			So(res.ExitCode(), ShouldEqual, 0)

			_, err := os.Stat(filepath.Join(cfg.Remote.Local.Path, res.Uploaded.Name))
			So(err, ShouldBeNil)
		})
	})

	Convey("Given an unsupported remote", t, func() {
		cfg := testConfig(t)
		cfg.Remote.Type = "ftp"

		_, err := New(context.Background(), cfg)

		Convey("New fails", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "ftp")
		})
	})
}

func TestGoogleOAuthService(t *testing.T) {
	Convey("Given an OAuth helper", t, func() {
		dir := t.TempDir()
		secret := filepath.Join(dir, "client_secret.json")
		So(os.WriteFile(secret, []byte(`{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost:8085/auth/google/callback"]}}`), 0600), ShouldBeNil)

		svc, err := NewGoogleOAuthService(logger.NewNop(), secret, filepath.Join(dir, "token.json"))
		So(err, ShouldBeNil)
		srv := httptest.NewServer(svc.Handler())
		Reset(srv.Close)

		client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}

		Convey("The start page redirects to Google for offline access", func() {
			resp, err := client.Get(srv.URL + oauthStartPath)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusTemporaryRedirect)
			location := resp.Header.Get("Location")
			So(strings.HasPrefix(location, "https://accounts.google.com/"), ShouldBeTrue)
			So(location, ShouldContainSubstring, "access_type=offline")
		})

		Convey("A callback without a code is rejected", func() {
			resp, err := client.Get(srv.URL + oauthCallbackPath)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given a token endpoint that grants a refresh token", t, func() {
		tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`)
		}))
		Reset(tokenSrv.Close)

		dir := t.TempDir()
		secret := filepath.Join(dir, "client_secret.json")
		tokenFile := filepath.Join(dir, "tokens", "token.json")
		So(os.WriteFile(secret, []byte(`{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"`+tokenSrv.URL+`/auth","token_uri":"`+tokenSrv.URL+`/token","redirect_uris":["http://localhost"]}}`), 0600), ShouldBeNil)

		svc, err := NewGoogleOAuthService(logger.NewNop(), secret, tokenFile)
		So(err, ShouldBeNil)
		So(svc.StartAuthServer(context.Background(), "127.0.0.1:0"), ShouldBeNil)
		Reset(func() { _ = svc.Shutdown(context.Background()) })

		Convey("Concurrent callbacks save the token and finish once", func() {
			var wg sync.WaitGroup
			codes := make(chan int, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					resp, err := http.Get("http://" + svc.Addr() + oauthCallbackPath + "?code=abc")
					if err != nil {
						codes <- 0
						return
					}
					resp.Body.Close()
					codes <- resp.StatusCode
				}()
			}
			wg.Wait()
			close(codes)

			for code := range codes {
				So(code, ShouldEqual, http.StatusOK)
			}
			finished := false
			select {
			case <-svc.Done():
				finished = true
			default:
			}
			So(finished, ShouldBeTrue)

			raw, err := os.ReadFile(tokenFile)
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"refresh_token": "rt"`)
		})

		Convey("A second server on the same address fails to start", func() {
			other, err := NewGoogleOAuthService(logger.NewNop(), secret, tokenFile)
			So(err, ShouldBeNil)

			err = other.StartAuthServer(context.Background(), svc.Addr())
			So(err, ShouldNotBeNil)
		})
	})

	Convey("A missing token path is rejected", t, func() {
		_, err := NewGoogleOAuthService(logger.NewNop(), "client_secret.json", "")
		So(err, ShouldNotBeNil)
	})
}
