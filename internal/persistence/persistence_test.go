package persistence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pride-store/internal/criteria"
	gc "pride-store/internal/globalconst"
	"pride-store/internal/metrics"
	"pride-store/internal/store"
	"pride-store/internal/wal"
)

func seeded(t *testing.T) *store.MemStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemStore(2)
	if err := s.EnsureIndex(ctx, gc.PsmCollection, gc.PROJECT_ACCESSION); err != nil {
		t.Fatalf("EnsureIndex failed: %v", err)
	}
	if err := s.EnsureUniqueIndex(ctx, gc.PsmCollection, []string{gc.SPECTRUM_ACCESSION, gc.PROJECT_ACCESSION}); err != nil {
		t.Fatalf("EnsureUniqueIndex failed: %v", err)
	}
	for _, spectrum := range []string{"S1", "S2", "S3"} {
		if _, err := s.Insert(ctx, gc.PsmCollection, store.Document{gc.SPECTRUM_ACCESSION: spectrum, gc.PROJECT_ACCESSION: "PXD1"}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if _, err := s.Insert(ctx, gc.ProjectsCollection, store.Document{gc.ACCESSION: "PXD1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return s
}

func count(t *testing.T, s *store.MemStore, collection string) int64 {
	t.Helper()
	n, err := s.Count(context.Background(), collection, criteria.Everything{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}

func TestSaveAndLoadCollections(t *testing.T) {
	dir := t.TempDir()
	src := seeded(t)
	if err := SaveCollections(dir, src.Manager()); err != nil {
		t.Fatalf("SaveCollections failed: %v", err)
	}

	dst := store.NewMemStore(4)
	n, err := LoadCollections(dir, dst.Manager())
	if err != nil {
		t.Fatalf("LoadCollections failed: %v", err)
	}
	if n != 4 {
		t.Errorf("loaded %d documents, want 4", n)
	}
	if got := count(t, dst, gc.PsmCollection); got != 3 {
		t.Errorf("psms = %d, want 3", got)
	}

	col := dst.Manager().GetCollection(gc.PsmCollection)
	if !col.HasIndex(gc.PROJECT_ACCESSION) {
		t.Error("secondary index was not restored")
	}
	// The unique constraint survives the round trip.
	_, err = dst.Insert(context.Background(), gc.PsmCollection, store.Document{gc.SPECTRUM_ACCESSION: "S1", gc.PROJECT_ACCESSION: "PXD1"})
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey after load, got %v", err)
	}
}

func TestSaveCollectionsRemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, gc.CollectionsDirName, "gone"+gc.DBFileExtension)
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := WriteCollectionFile(stale, store.CollectionSnapshot{Data: map[string][]byte{}}); err != nil {
		t.Fatalf("WriteCollectionFile failed: %v", err)
	}
	if err := SaveCollections(dir, seeded(t).Manager()); err != nil {
		t.Fatalf("SaveCollections failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale collection file kept: %v", err)
	}
}

func TestLoadCollectionsRejectsDamagedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, gc.CollectionsDirName, "broken"+gc.DBFileExtension)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte{0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 2}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCollections(dir, store.NewMemStore(1).Manager()); err == nil {
		t.Error("expected an error for a truncated collection file")
	}
}

func TestSnapshotManagerRotatesWAL(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, gc.WalFileName)
	w, err := wal.New(walPath)
	if err != nil {
		t.Fatalf("wal.New failed: %v", err)
	}
	defer w.Close()

	s := store.NewMemStore(2)
	s.SetJournal(w)
	ctx := context.Background()
	if _, err := s.Insert(ctx, gc.ProjectsCollection, store.Document{gc.ACCESSION: "PXD1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	mt := metrics.NewMetrics(nil)
	sm := NewSnapshotManager(s.Manager(), dir, 0, w, mt)
	if err := sm.Snapshot(); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if _, err := s.Insert(ctx, gc.ProjectsCollection, store.Document{gc.ACCESSION: "PXD2"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Recovery: snapshot plus the entries logged after it.
	recovered := store.NewMemStore(2)
	if _, err := LoadCollections(dir, recovered.Manager()); err != nil {
		t.Fatalf("LoadCollections failed: %v", err)
	}
	replayed, err := wal.Recover(walPath, recovered)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if replayed != 1 {
		t.Errorf("replayed %d entries, want only the one after the snapshot", replayed)
	}
	if got := count(t, recovered, gc.ProjectsCollection); got != 2 {
		t.Errorf("recovered %d projects, want 2", got)
	}
	if got := testutil.ToFloat64(mt.SnapshotsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("snapshot counter = %v, want 1", got)
	}
}

func TestSnapshotManagerSchedule(t *testing.T) {
	dir := t.TempDir()
	sm := NewSnapshotManager(seeded(t).Manager(), dir, 10*time.Millisecond, nil, nil)
	sm.Start()
	deadline := time.Now().Add(2 * time.Second)
	for {
		names, _ := ListCollectionFiles(dir)
		if len(names) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no scheduled snapshot was written")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sm.Stop()
	sm.Stop()
}

func TestBackupVerifyAndRestore(t *testing.T) {
	root := t.TempDir()
	src := seeded(t)
	mt := metrics.NewMetrics(nil)
	bm := NewBackupManager(CollectionsSource(src.Manager()), BackupOptions{Dir: root, Metrics: mt})

	name, err := bm.PerformBackup(context.Background())
	if err != nil {
		t.Fatalf("PerformBackup failed: %v", err)
	}
	if bm.LastBackupTime().IsZero() {
		t.Error("last backup time not recorded")
	}
	second, err := bm.PerformBackup(context.Background())
	if err != nil {
		t.Fatalf("second PerformBackup failed: %v", err)
	}
	if second == name {
		t.Errorf("two backups share the name %s", name)
	}
	names, err := bm.ListBackups()
	if err != nil || len(names) != 2 {
		t.Fatalf("ListBackups = %v (err %v)", names, err)
	}
	if got := testutil.ToFloat64(mt.BackupsTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("backup counter = %v, want 2", got)
	}

	dst := store.NewMemStore(2)
	if _, err := dst.Insert(context.Background(), "leftover", store.Document{"a": "b"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := Restore(root, name, dst.Manager()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if got := count(t, dst, gc.PsmCollection); got != 3 {
		t.Errorf("restored %d psms, want 3", got)
	}
	if got := count(t, dst, "leftover"); got != 0 {
		t.Errorf("collections missing from the backup must be emptied, got %d", got)
	}

	if err := Restore(root, "../etc", dst.Manager()); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("expected ErrBackupNotFound, got %v", err)
	}
	if err := Restore(root, "1999-01-01_00-00-00", dst.Manager()); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("expected ErrBackupNotFound, got %v", err)
	}
}

func TestVerifyBackupRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, gc.SQLiteBackupFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyBackup(dir); err == nil {
		t.Error("expected an error for an empty backup file")
	}
}

func TestBackupFailureRemovesDirectory(t *testing.T) {
	root := t.TempDir()
	failing := SourceFunc(func(ctx context.Context, dir string) error { return errors.New("disk full") })
	bm := NewBackupManager(failing, BackupOptions{Dir: root})
	if _, err := bm.PerformBackup(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	names, _ := bm.ListBackups()
	if len(names) != 0 {
		t.Errorf("failed backup left %v behind", names)
	}
}

func TestCleanOldBackups(t *testing.T) {
	root := t.TempDir()
	bm := NewBackupManager(CollectionsSource(seeded(t).Manager()), BackupOptions{Dir: root, Retention: time.Hour})
	old := filepath.Join(root, "2000-01-01_00-00-00")
	if err := os.Mkdir(old, 0o755); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	if _, err := bm.PerformBackup(context.Background()); err != nil {
		t.Fatalf("PerformBackup failed: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("expired backup kept: %v", err)
	}
	names, _ := bm.ListBackups()
	if len(names) != 1 {
		t.Errorf("backups left: %v", names)
	}
}

func TestRestoreSQLiteCopiesDatabaseFile(t *testing.T) {
	root := t.TempDir()
	backup := filepath.Join(root, "2024-05-01_10-00-00")
	if err := os.MkdirAll(backup, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(backup, gc.SQLiteBackupFile), []byte("database bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "data", gc.SQLiteBackupFile)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest+"-wal", []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := RestoreSQLite(root, "2024-05-01_10-00-00", dest); err != nil {
		t.Fatalf("RestoreSQLite failed: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "database bytes" {
		t.Errorf("restored file = %q (err %v)", got, err)
	}
	if _, err := os.Stat(dest + "-wal"); !os.IsNotExist(err) {
		t.Errorf("stale WAL file kept: %v", err)
	}
	if err := RestoreSQLite(root, "missing", dest); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("expected ErrBackupNotFound, got %v", err)
	}
}

func TestWriteSnapshotsAndReadBackup(t *testing.T) {
	root := t.TempDir()
	snaps := map[string]store.CollectionSnapshot{
		gc.ProjectsCollection: {
			Indexes: []string{gc.ACCESSION},
			Uniques: [][]string{{gc.ACCESSION}},
			Data:    map[string][]byte{"p1": []byte(`{"_id":"p1","accession":"PXD1"}`)},
		},
		gc.FilesCollection: {Data: map[string][]byte{}},
	}
	source := SourceFunc(func(ctx context.Context, dir string) error { return WriteSnapshots(dir, snaps) })
	bm := NewBackupManager(source, BackupOptions{Dir: root})
	name, err := bm.PerformBackup(context.Background())
	if err != nil {
		t.Fatalf("PerformBackup failed: %v", err)
	}

	got, err := ReadBackup(root, name)
	if err != nil {
		t.Fatalf("ReadBackup failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d collections, want 2", len(got))
	}
	projects := got[gc.ProjectsCollection]
	if string(projects.Data["p1"]) != `{"_id":"p1","accession":"PXD1"}` {
		t.Errorf("document = %s", projects.Data["p1"])
	}
	if len(projects.Uniques) != 1 || projects.Uniques[0][0] != gc.ACCESSION {
		t.Errorf("uniques = %v", projects.Uniques)
	}
}
