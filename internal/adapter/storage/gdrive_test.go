package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/semmidev/backdrop/internal/domain"
	"github.com/semmidev/backdrop/internal/infrastructure/console"
	"github.com/semmidev/backdrop/internal/infrastructure/logger"
	"github.com/semmidev/backdrop/internal/usecase"
	. "github.com/smartystreets/goconvey/convey"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// fakeDrive serves a folder holding two files named a.tar.
type fakeDrive struct {
	mu      sync.Mutex
	fresh   time.Time
	old     time.Time
	deleted []string
}

func (f *fakeDrive) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		file := func(id string, at time.Time) map[string]string {
			return map[string]string{"id": id, "name": "a.tar", "modifiedTime": at.Format(time.RFC3339)}
		}

		var body map[string]interface{}
		switch {
		case strings.Contains(q.Get("q"), "name='a.tar'"):
			body = map[string]interface{}{"files": []map[string]string{{"id": "id-fresh"}, {"id": "id-old"}}}
		case q.Get("pageToken") == "":
			body = map[string]interface{}{"files": []map[string]string{file("id-fresh", f.fresh)}, "nextPageToken": "page-2"}
		default:
			body = map[string]interface{}{"files": []map[string]string{file("id-old", f.old)}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "unexpected", http.StatusMethodNotAllowed)
			return
		}
		f.mu.Lock()
		f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/files/"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestDrive(t *testing.T, fake *fakeDrive) *GDriveStorage {
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	service, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return &GDriveStorage{service: service, folderID: "folder"}
}

func TestGDriveDuplicateNames(t *testing.T) {
	Convey("Given a Drive folder with a fresh and an expired a.tar", t, func() {
		now := time.Now()
		fake := &fakeDrive{fresh: now, old: now.Add(-60 * 24 * time.Hour)}
		store := newTestDrive(t, fake)
		ctx := context.Background()

		Convey("List reads every page and keeps each file's ID", func() {
			entries, err := store.List(ctx, "/")

			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 2)
			So(entries[0].ID, ShouldEqual, "id-fresh")
			So(entries[1].ID, ShouldEqual, "id-old")
		})

		Convey("A 30 day sweep deletes only the expired file", func() {
			sweeper := usecase.NewSweeper(store, logger.NewNop(), console.NewReporter(io.Discard))
			policy := domain.RetentionPolicy{Expiry: 30 * 24 * time.Hour, MatchSuffix: ".tar", AutoDelete: true}

			report, err := sweeper.Run(ctx, "/", policy)

			So(err, ShouldBeNil)
			So(report.Deleted, ShouldHaveLength, 1)
			So(fake.deleted, ShouldResemble, []string{"id-old"})
		})

		Convey("Deleting by name refuses to pick one of the duplicates", func() {
			err := store.Delete(ctx, "/a.tar")

			So(err, ShouldNotBeNil)
			So(errors.Is(err, domain.ErrDelete), ShouldBeTrue)
			So(fake.deleted, ShouldBeEmpty)
		})
	})
}

func TestDriveEntry(t *testing.T) {
	Convey("driveEntry parses the RFC3339 modification time", t, func() {
		entry, err := driveEntry(&drive.File{Id: "x1", Name: "a.tar", ModifiedTime: "2026-09-01T08:30:00.123Z"})

		So(err, ShouldBeNil)
		So(entry.Name, ShouldEqual, "a.tar")
		So(entry.ID, ShouldEqual, "x1")
		So(entry.ModifiedAt.Equal(time.Date(2026, 9, 1, 8, 30, 0, 123000000, time.UTC)), ShouldBeTrue)
	})

	Convey("driveEntry rejects a malformed time instead of guessing", t, func() {
		_, err := driveEntry(&drive.File{Name: "a.tar", ModifiedTime: "yesterday"})

		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "malformed modifiedTime")
	})

	Convey("driveQuote escapes query literals", t, func() {
		So(driveQuote(`it's.tar`), ShouldEqual, `it\'s.tar`)
	})
}
