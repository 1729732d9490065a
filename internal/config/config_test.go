package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/semmidev/backdrop/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

const minimalYAML = `producer:
  directories:
    - /var/www
remote:
  dropbox:
    app_key: key
    app_secret: secret
    access_token: token
`

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func validConfig() *Config {
	return &Config{
		Producer: ProducerConfig{
			LocalPath:   "backups",
			FilePrefix:  "backup",
			Directories: []string{"/srv"},
		},
		Remote: RemoteConfig{
			Type:       "local",
			UploadPath: "/",
			Local:      LocalConfig{Path: "/mnt/nas"},
		},
		Retention: RetentionConfig{Expiry: time.Hour, MatchSuffix: ".tar"},
		Schedule:  ScheduleConfig{Cron: "0 0 3 * * *"},
	}
}

func TestLoad(t *testing.T) {
	Convey("Given a minimal Dropbox config", t, func() {
		path := writeFile(t, minimalYAML)

		Convey("Defaults fill the rest", func() {
			cfg, err := Load(path)
			So(err, ShouldBeNil)

			So(cfg.Remote.Type, ShouldEqual, "dropbox")
			So(cfg.UploadDir(), ShouldEqual, "/")
			So(cfg.Retention.Expiry, ShouldEqual, 2592000*time.Second)
			So(cfg.Retention.MatchSuffix, ShouldEqual, ".tar")
			So(cfg.Retention.AutoDelete, ShouldBeTrue)
			So(cfg.Schedule.Cron, ShouldEqual, "0 0 3 * * *")
			So(cfg.Producer.KeepLocal, ShouldEqual, 3)

			policy := cfg.RetentionPolicy()
			So(policy.Expiry, ShouldEqual, cfg.Retention.Expiry)
			So(policy.AutoDelete, ShouldBeTrue)
		})

		Convey("Environment variables override the file", func() {
			t.Setenv("BACKDROP_REMOTE_DROPBOX_ACCESS_TOKEN", "from-env")
			t.Setenv("BACKDROP_RETENTION_EXPIRY", "48h")
			t.Setenv("BACKDROP_REMOTE_UPLOAD_PATH", "/backups")

			cfg, err := Load(path)
			So(err, ShouldBeNil)
			So(cfg.Remote.Dropbox.AccessToken, ShouldEqual, "from-env")
			So(cfg.Retention.Expiry, ShouldEqual, 48*time.Hour)
			So(cfg.UploadDir(), ShouldEqual, "/backups")
		})
	})

	Convey("Given a Dropbox config without credentials", t, func() {
		path := writeFile(t, "producer:\n  directories: [/srv]\n")

		_, err := Load(path)

		Convey("Load fails with a configuration error naming each credential", func() {
			So(errors.Is(err, domain.ErrConfiguration), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "remote.dropbox.app_key")
			So(err.Error(), ShouldContainSubstring, "remote.dropbox.app_secret")
			So(err.Error(), ShouldContainSubstring, "remote.dropbox.access_token")
		})
	})

	Convey("A missing file is reported", t, func() {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		So(err, ShouldNotBeNil)
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a valid config", t, func() {
		cfg := validConfig()

		So(cfg.Validate(), ShouldBeNil)

		Convey("The upload dir drops trailing slashes but keeps the root", func() {
			cfg.Remote.UploadPath = "/backups/"
			So(cfg.UploadDir(), ShouldEqual, "/backups")

			cfg.Remote.UploadPath = "//"
			So(cfg.UploadDir(), ShouldEqual, "/")

			cfg.Remote.UploadPath = "/"
			So(cfg.UploadDir(), ShouldEqual, "/")
		})

		Convey("A relative upload path is rejected", func() {
			cfg.Remote.UploadPath = "backups"
			So(errors.Is(cfg.Validate(), domain.ErrConfiguration), ShouldBeTrue)
		})

		Convey("Negative or fractional expiry is rejected", func() {
			cfg.Retention.Expiry = -time.Second
			So(cfg.Validate(), ShouldNotBeNil)

			cfg.Retention.Expiry = 1500 * time.Millisecond
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("An expiry of zero is allowed", func() {
			cfg.Retention.Expiry = 0
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("A five-field cron spec is rejected", func() {
			cfg.Schedule.Cron = "0 3 * * *"
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("An unknown remote type is rejected", func() {
			cfg.Remote.Type = "ftp"
			So(cfg.Validate().Error(), ShouldContainSubstring, `"ftp"`)
		})

		Convey("A producer with nothing to back up is rejected", func() {
			cfg.Producer.Directories = nil
			So(cfg.Validate(), ShouldNotBeNil)

			cfg.Producer.Databases = []DatabaseConfig{{Name: "app", Type: "postgresql", Host: "db", Enabled: true}}
			So(cfg.Validate(), ShouldBeNil)
			So(cfg.Producer.EnabledDatabases(), ShouldHaveLength, 1)
		})

		Convey("Unsupported database types are rejected", func() {
			cfg.Producer.Databases = []DatabaseConfig{{Name: "cache", Type: "redis", Host: "localhost"}}
			So(cfg.Validate().Error(), ShouldContainSubstring, `unsupported type "redis"`)
		})

		Convey("S3 keys must come in pairs", func() {
			cfg.Remote.Type = "s3"
			cfg.Remote.S3 = S3Config{Region: "eu-west-1", Bucket: "b", AccessKey: "only"}
			So(cfg.Validate(), ShouldNotBeNil)

			cfg.Remote.S3.SecretKey = "secret"
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("Enabled notifiers need their settings", func() {
			cfg.Notify.Telegram.Enabled = true
			cfg.Notify.Webhook.Enabled = true
			err := cfg.Validate()
			So(err.Error(), ShouldContainSubstring, "notify.telegram.bot_token")
			So(err.Error(), ShouldContainSubstring, "notify.telegram.chat_id")
			So(err.Error(), ShouldContainSubstring, "notify.webhook.url")
		})
	})
}
