package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/golang/snappy"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mealgrid/mealgrid/internal/audit/domain"
	"github.com/mealgrid/mealgrid/internal/audit/repository"
	"github.com/mealgrid/mealgrid/internal/audit/service"
)

func newExportFixture(t *testing.T) (*Exporter, *gorm.DB, *snowflake.Node, string) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbConn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.AuditEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	log := zap.NewNop()
	repo := repository.Provide()
	auditSvc := service.NewService(service.Params{
		DB:    dbConn,
		Log:   log,
		GenID: node,
		Repo:  repo,
	})

	root := t.TempDir()
	exporter := NewExporter(Params{
		DB:    dbConn,
		Log:   log,
		Repo:  repo,
		Audit: auditSvc,
		Store: NewFileStore(root),
	})
	return exporter, dbConn, node, root
}

func seedEntry(t *testing.T, dbConn *gorm.DB, node *snowflake.Node, action string, createdAt time.Time) {
	t.Helper()

	entry := domain.AuditEntry{
		ID:         node.Generate(),
		Action:     action,
		ActorType:  string(domain.ActorTypeSystem),
		TargetType: "order",
		CreatedAt:  createdAt,
	}
	if err := dbConn.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed audit entry: %v", err)
	}
}

func readArchive(t *testing.T, path string) []domain.AuditEntry {
	t.Helper()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}
	decoded, err := snappy.Decode(nil, raw)
	if err != nil {
		t.Fatalf("failed to decompress archive: %v", err)
	}

	var entries []domain.AuditEntry
	scanner := bufio.NewScanner(bytes.NewReader(decoded))
	for scanner.Scan() {
		var entry domain.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("failed to decode archive line: %v", err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestExportDay(t *testing.T) {
	exporter, dbConn, node, root := newExportFixture(t)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	seedEntry(t, dbConn, node, domain.ActionOrderCreated, day.Add(2*time.Hour))
	seedEntry(t, dbConn, node, domain.ActionOrderStatusChanged, day.Add(23*time.Hour))
	// Next day, must not be included.
	seedEntry(t, dbConn, node, domain.ActionOrderCancelled, day.Add(25*time.Hour))

	if err := exporter.ExportDay(context.Background(), day.Add(9*time.Hour)); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	path := filepath.Join(root, "audit", "2026-03-14.jsonl.snappy")
	entries := readArchive(t, path)
	if len(entries) != 2 {
		t.Fatalf("archive holds %d entries, want 2", len(entries))
	}
	if entries[0].Action != domain.ActionOrderCreated || entries[1].Action != domain.ActionOrderStatusChanged {
		t.Errorf("unexpected archive order: %s, %s", entries[0].Action, entries[1].Action)
	}
}

func TestExportDayIdempotent(t *testing.T) {
	exporter, dbConn, node, root := newExportFixture(t)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	seedEntry(t, dbConn, node, domain.ActionOrderCreated, day.Add(time.Hour))

	if err := exporter.ExportDay(context.Background(), day); err != nil {
		t.Fatalf("first export failed: %v", err)
	}
	path := filepath.Join(root, "audit", "2026-03-14.jsonl.snappy")
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}

	// More entries land on the same day after the archive was written.
	seedEntry(t, dbConn, node, domain.ActionOrderCancelled, day.Add(2*time.Hour))

	if err := exporter.ExportDay(context.Background(), day); err != nil {
		t.Fatalf("second export failed: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to re-read archive: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("re-running the export must not rewrite an existing archive")
	}

	var skips int64
	err = dbConn.Model(&domain.AuditEntry{}).Where("action = ?", domain.ActionExportSkipped).Count(&skips).Error
	if err != nil {
		t.Fatalf("failed to count skip entries: %v", err)
	}
	if skips != 1 {
		t.Errorf("skip entries = %d, want 1", skips)
	}
}

func TestExportEmptyDay(t *testing.T) {
	exporter, _, _, root := newExportFixture(t)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	if err := exporter.ExportDay(context.Background(), day); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	// An empty day still produces an archive so its absence is detectable.
	entries := readArchive(t, filepath.Join(root, "audit", "2026-03-14.jsonl.snappy"))
	if len(entries) != 0 {
		t.Errorf("archive holds %d entries, want 0", len(entries))
	}
}

func TestFileStoreWriteOnce(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	if err := store.Put(ctx, "audit/2026-01-01.jsonl.snappy", []byte("first")); err != nil {
		t.Fatalf("first put failed: %v", err)
	}
	if err := store.Put(ctx, "audit/2026-01-01.jsonl.snappy", []byte("second")); err != ErrKeyExists {
		t.Fatalf("expected ErrKeyExists, got %v", err)
	}

	exists, err := store.Exists(ctx, "audit/2026-01-01.jsonl.snappy")
	if err != nil || !exists {
		t.Fatalf("exists = %v, %v; want true, nil", exists, err)
	}
	exists, err = store.Exists(ctx, "audit/2026-01-02.jsonl.snappy")
	if err != nil || exists {
		t.Fatalf("exists = %v, %v; want false, nil", exists, err)
	}
}
