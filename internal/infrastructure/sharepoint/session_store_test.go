package sharepoint

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
)

func TestSessionStore_EnsureFolderIsIdempotent(t *testing.T) {
	f := newFakeLibrary(t)
	store, _ := newTestStore(t, f, config.StrategySession, &stubProvider{})

	session, err := store.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	target := entity.NewUploadTarget(f.siteURL(), libraryName, "REQ123")
	first, err := session.EnsureFolder(context.Background(), target)
	if err != nil {
		t.Fatalf("first EnsureFolder failed: %v", err)
	}
	second, err := session.EnsureFolder(context.Background(), target)
	if err != nil {
		t.Fatalf("second EnsureFolder failed: %v", err)
	}

	if *first != *second {
		t.Fatalf("expected the same folder, got %+v and %+v", first, second)
	}
	if first.ServerRelativeURL != libraryRoot+"/REQ123" {
		t.Fatalf("unexpected folder %+v", first)
	}
}

func TestSessionStore_DuplicateNameRaceResolvesByLookup(t *testing.T) {
	f := newFakeLibrary(t)
	f.raceCreate = true
	store, _ := newTestStore(t, f, config.StrategySession, &stubProvider{})

	session, err := store.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	folder, err := session.EnsureFolder(context.Background(), entity.NewUploadTarget(f.siteURL(), libraryName, "REQ123"))
	if err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}
	if folder.Name != "REQ123" {
		t.Fatalf("unexpected folder %+v", folder)
	}
}

func TestSessionStore_CreateFailureIsFolderUnavailable(t *testing.T) {
	f := newFakeLibrary(t)
	f.failCreate = true
	store, _ := newTestStore(t, f, config.StrategySession, &stubProvider{})

	session, err := store.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	folder, err := session.EnsureFolder(context.Background(), entity.NewUploadTarget(f.siteURL(), libraryName, "REQ123"))
	if !errors.Is(err, entity.ErrFolderUnavailable) {
		t.Fatalf("expected ErrFolderUnavailable, got %v", err)
	}
	if folder != nil {
		t.Fatal("expected nil folder")
	}

	root, err := session.EnsureFolder(context.Background(), entity.NewUploadTarget(f.siteURL(), libraryName, "REQ123").AtLibraryRoot())
	if err != nil || root.ServerRelativeURL != libraryRoot {
		t.Fatalf("library root must stay reachable, got %+v, %v", root, err)
	}
}

func TestSessionStore_ReuploadOverwrites(t *testing.T) {
	f := newFakeLibrary(t)
	store, _ := newTestStore(t, f, config.StrategySession, &stubProvider{})
	target := entity.NewUploadTarget(f.siteURL(), libraryName, "REQ123")

	for _, version := range []string{"v1", "v2"} {
		session, err := store.Open(context.Background())
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if _, err := session.EnsureFolder(context.Background(), target); err != nil {
			t.Fatalf("EnsureFolder failed: %v", err)
		}
		for _, name := range []string{"REQ123.pdf", "COC_REQ123.pdf"} {
			if err := session.UploadDocument(context.Background(), target, name, []byte(version)); err != nil {
				t.Fatalf("UploadDocument %s failed: %v", name, err)
			}
		}
		session.Close()
	}

	names := f.fileNames(libraryRoot + "/REQ123")
	sort.Strings(names)
	if len(names) != 2 || names[0] != "COC_REQ123.pdf" || names[1] != "REQ123.pdf" {
		t.Fatalf("expected exactly the two artifacts, got %v", names)
	}
	if string(f.files[libraryRoot+"/REQ123/REQ123.pdf"]) != "v2" {
		t.Fatal("second run must overwrite")
	}
}

func TestSessionStore_UploadFailureIsUploadError(t *testing.T) {
	f := newFakeLibrary(t)
	f.failUploads["COC_REQ123.pdf"] = 1
	store, _ := newTestStore(t, f, config.StrategySession, &stubProvider{})
	target := entity.NewUploadTarget(f.siteURL(), libraryName, "REQ123")

	session, err := store.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()
	if _, err := session.EnsureFolder(context.Background(), target); err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}

	err = session.UploadDocument(context.Background(), target, "COC_REQ123.pdf", []byte("pdf"))
	var uploadErr *entity.UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if uploadErr.StatusCode != 503 || uploadErr.FileName != "COC_REQ123.pdf" || uploadErr.Folder != libraryRoot+"/REQ123" {
		t.Fatalf("unexpected upload error %+v", uploadErr)
	}
}

func TestSessionStore_RenewsExpiringSession(t *testing.T) {
	f := newFakeLibrary(t)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	provider := &stubProvider{now: func() time.Time { return now }, validity: time.Minute}
	store, _ := newTestStore(t, f, config.StrategySession, provider)
	store.now = func() time.Time { return now }

	session, err := store.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	target := entity.NewUploadTarget(f.siteURL(), libraryName, "REQ123")
	if _, err := session.EnsureFolder(context.Background(), target); err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}

	now = now.Add(45 * time.Second)
	if err := session.UploadDocument(context.Background(), target, "REQ123.pdf", []byte("pdf")); err != nil {
		t.Fatalf("UploadDocument failed: %v", err)
	}
	if provider.logins != 2 {
		t.Fatalf("expected a second sign-in inside the margin, got %d", provider.logins)
	}
}

func TestSessionStore_ClosedSessionRefusesWork(t *testing.T) {
	f := newFakeLibrary(t)
	store, _ := newTestStore(t, f, config.StrategySession, &stubProvider{})

	session, err := store.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close must be harmless: %v", err)
	}

	_, err = session.EnsureFolder(context.Background(), entity.NewUploadTarget(f.siteURL(), libraryName, "REQ123"))
	if !errors.Is(err, entity.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSessionStore_OpenFailsWithoutCredentials(t *testing.T) {
	f := newFakeLibrary(t)
	store, _ := newTestStore(t, f, config.StrategySession, &stubProvider{fail: entity.ConfigurationError("bad password")})

	if _, err := store.Open(context.Background()); !errors.Is(err, entity.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
