package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/permadrive/permadrive/internal/config"
	"github.com/permadrive/permadrive/internal/cryptox"
	"github.com/permadrive/permadrive/internal/ledger"
	"github.com/permadrive/permadrive/internal/store"
	"github.com/permadrive/permadrive/internal/wallet"
)

type fakeTx struct {
	tags []ledger.Tag
	data []byte
}

type fakeLedger struct {
	ids       []string
	txs       map[string]fakeTx
	dataCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{txs: make(map[string]fakeTx)}
}

func (f *fakeLedger) addTx(id string, tags []ledger.Tag, data []byte) {
	f.txs[id] = fakeTx{tags: tags, data: data}
}

func (f *fakeLedger) ListByOwnerAndDrive(context.Context, string, string) ([]string, error) {
	return f.ids, nil
}

func (f *fakeLedger) Tags(_ context.Context, txID string) ([]ledger.Tag, error) {
	tx, ok := f.txs[txID]
	if !ok {
		return nil, fmt.Errorf("unknown tx %s", txID)
	}
	return tx.tags, nil
}

func (f *fakeLedger) Data(_ context.Context, txID string) ([]byte, error) {
	f.dataCalls++
	tx, ok := f.txs[txID]
	if !ok {
		return nil, fmt.Errorf("unknown tx %s", txID)
	}
	return tx.data, nil
}

func (f *fakeLedger) Submit(context.Context, []byte, []ledger.Tag) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeLedger) Status(context.Context, string) (*ledger.StatusResult, error) {
	return &ledger.StatusResult{Status: ledger.TxConfirmed}, nil
}
func (f *fakeLedger) EstimateFee(context.Context, int64) (int64, error) { return 0, nil }
func (f *fakeLedger) PayFee(context.Context, float64, string) error     { return nil }
func (f *fakeLedger) SubscribeBlocks(context.Context) (<-chan ledger.BlockEvent, error) {
	ch := make(chan ledger.BlockEvent)
	close(ch)
	return ch, nil
}

// scriptedResolver returns a fixed decision and records what it saw.
type scriptedResolver struct {
	decision Decision
	calls    int
	lastPath string
}

func (r *scriptedResolver) Resolve(localPath string, _ *store.CompletedRecord) (Decision, error) {
	r.calls++
	r.lastPath = localPath
	return r.decision, nil
}

type downloaderFixture struct {
	dl     *Downloader
	store  *store.Store
	ledger *fakeLedger
	root   string
	key    []byte
}

func newFixture(t *testing.T, resolver Resolver) *downloaderFixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "sync")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}

	st, err := store.Open(filepath.Join(dir, "permadrive.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	key := cryptox.DeriveKey([]byte("passphrase"), []byte("salt"))
	lc := newFakeLedger()
	session := &wallet.Session{
		Owner:          "owner-1",
		OwnerPublicKey: "pub-1",
		DriveID:        "drive-1",
		SyncFolderPath: root,
		ContentKey:     key,
	}
	cfg := &config.Config{GatewayURL: "https://gateway.test"}
	quiet := log.New(io.Discard, "", 0)

	return &downloaderFixture{
		dl:     New(st, lc, session, cfg, resolver, quiet),
		store:  st,
		ledger: lc,
		root:   root,
		key:    key,
	}
}

// addRemoteFile publishes a metadata + data tx pair on the fake ledger.
func (f *downloaderFixture) addRemoteFile(t *testing.T, metaTx, dataTx, drivePath, name string, content []byte, public bool) {
	t.Helper()
	payload := content
	if !public {
		var err error
		payload, err = cryptox.EncryptBytes(content, f.key)
		if err != nil {
			t.Fatal(err)
		}
	}
	f.ledger.addTx(dataTx, nil, payload)

	body, err := json.Marshal(&ledger.EntityMetadata{
		Name:         name,
		Size:         int64(len(content)),
		Hash:         cryptox.Checksum(content),
		ModifiedDate: 1700000000000,
		DataTxID:     dataTx,
		FileVersion:  0,
		Path:         drivePath + name,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !public {
		env, err := cryptox.EncryptTag(body, f.key)
		if err != nil {
			t.Fatal(err)
		}
		body, err = json.Marshal(env)
		if err != nil {
			t.Fatal(err)
		}
	}

	tags := []ledger.Tag{
		{Name: ledger.TagAppName, Value: config.AppName},
		{Name: ledger.TagAppVersion, Value: config.AppVersion},
		{Name: ledger.TagContentType, Value: "text/plain"},
		{Name: ledger.TagEntityType, Value: store.EntityFile},
		{Name: ledger.TagDriveID, Value: "drive-1"},
		{Name: ledger.TagFileID, Value: "file-" + name},
		{Name: ledger.TagParentFolderID, Value: "parent-1"},
	}
	f.ledger.addTx(metaTx, tags, body)
	f.ledger.ids = append(f.ledger.ids, metaTx)
}

func TestFetchRemoteMetadata_ImportsNewRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addRemoteFile(t, "m1", "d1", "/docs/", "a.txt", []byte("remote bytes"), true)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatalf("FetchRemoteMetadata() failed: %v", err)
	}

	rec, err := f.store.GetSyncByMetaTx(ctx, "m1")
	if err != nil {
		t.Fatalf("imported sync record missing: %v", err)
	}
	if rec.DataStatus != store.StatusConfirmed || rec.MetaStatus != store.StatusConfirmed {
		t.Errorf("status = %v/%v, want confirmed", rec.DataStatus, rec.MetaStatus)
	}
	if rec.IsLocal {
		t.Error("imported record marked local before download")
	}
	if rec.FileID != "file-a.txt" || rec.ParentFolderID != "parent-1" {
		t.Errorf("identity tags not carried: %+v", rec)
	}
	wantPath := filepath.Join(f.root, "docs", "a.txt")
	if rec.FilePath != wantPath {
		t.Errorf("filePath = %q, want %q", rec.FilePath, wantPath)
	}

	completed, err := f.store.GetCompletedByTx(ctx, "m1")
	if err != nil {
		t.Fatalf("completed record missing: %v", err)
	}
	if completed.IsLocal {
		t.Error("completed record marked local before download")
	}

	// A second fetch skips the already-imported transaction entirely.
	calls := f.ledger.dataCalls
	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}
	if f.ledger.dataCalls != calls {
		t.Errorf("second fetch re-read the transaction")
	}
}

func TestFetchRemoteMetadata_AlreadyLocalConfirmsInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	content := []byte("born here")

	path := filepath.Join(f.root, "a.txt")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	seed := &store.SyncRecord{
		EntityType: store.EntityFile,
		DriveID:    "drive-1",
		FileID:     "file-a.txt",
		FilePath:   path,
		DrivePath:  "/",
		FileName:   "a.txt",
		FileHash:   cryptox.Checksum(content),
		FileSize:   int64(len(content)),
		DataStatus: store.StatusSubmitted,
		MetaStatus: store.StatusSubmitted,
		IsLocal:    true,
	}
	if err := f.store.AddSyncRecord(seed); err != nil {
		t.Fatal(err)
	}

	f.addRemoteFile(t, "m1", "d1", "/", "a.txt", content, true)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}

	rec, err := f.store.GetLatestSyncByPath(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if rec.DataStatus != store.StatusConfirmed || rec.MetaTxID != "m1" {
		t.Errorf("local record not confirmed in place: %+v", rec)
	}

	completed, err := f.store.GetCompletedByTx(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !completed.IsLocal {
		t.Error("already-local record queued for download")
	}
}

func TestFetchRemoteMetadata_Private(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addRemoteFile(t, "m1", "d1", "/", "secret.txt", []byte("sealed"), false)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}

	rec, err := f.store.GetSyncByMetaTx(ctx, "m1")
	if err != nil {
		t.Fatalf("private record not imported: %v", err)
	}
	if rec.IsPublic {
		t.Error("sealed record imported as public")
	}
	if rec.FileName != "secret.txt" {
		t.Errorf("fileName = %q", rec.FileName)
	}
}

func TestDownloadPending_Public(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	content := []byte("download me")
	f.addRemoteFile(t, "m1", "d1", "/docs/", "a.txt", content, true)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.dl.DownloadPending(ctx); err != nil {
		t.Fatalf("DownloadPending() failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(f.root, "docs", "a.txt"))
	if err != nil {
		t.Fatalf("file not materialized: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q", got)
	}

	completed, err := f.store.GetCompletedByTx(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !completed.IsLocal {
		t.Error("record not marked local after download")
	}
}

func TestDownloadPending_PrivateDecryptsAndCleansUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	content := []byte("private download")
	f.addRemoteFile(t, "m1", "d1", "/", "secret.txt", content, false)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.dl.DownloadPending(ctx); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(f.root, "secret.txt")
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("file not materialized: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q", got)
	}
	if _, err := os.Stat(path + cryptox.EncSuffix); !os.IsNotExist(err) {
		t.Errorf("encrypted sibling left behind: %v", err)
	}
}

func TestDownloadPending_ExistingSameHashSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	content := []byte("identical")
	f.addRemoteFile(t, "m1", "d1", "/", "a.txt", content, true)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.root, "a.txt"), content, 0644); err != nil {
		t.Fatal(err)
	}

	calls := f.ledger.dataCalls
	if err := f.dl.DownloadPending(ctx); err != nil {
		t.Fatal(err)
	}
	if f.ledger.dataCalls != calls {
		t.Error("data fetched despite matching local file")
	}

	completed, err := f.store.GetCompletedByTx(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !completed.IsLocal {
		t.Error("matching file not marked local")
	}
}

func TestDownloadPending_ConflictRename(t *testing.T) {
	ctx := context.Background()
	resolver := &scriptedResolver{decision: DecisionRename}
	f := newFixture(t, resolver)
	remote := []byte("remote version")
	f.addRemoteFile(t, "m1", "d1", "/", "a.txt", remote, true)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(f.root, "a.txt")
	if err := os.WriteFile(path, []byte("local version"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := f.dl.DownloadPending(ctx); err != nil {
		t.Fatal(err)
	}
	if resolver.calls != 1 {
		t.Fatalf("resolver called %d times, want 1", resolver.calls)
	}

	aside, err := os.ReadFile(filepath.Join(f.root, "a - Copy.txt"))
	if err != nil {
		t.Fatalf("local copy missing: %v", err)
	}
	if string(aside) != "local version" {
		t.Errorf("aside copy = %q", aside)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(remote) {
		t.Errorf("contested path = %q, want remote version", got)
	}
}

func TestDownloadPending_ConflictOverwrite(t *testing.T) {
	ctx := context.Background()
	resolver := &scriptedResolver{decision: DecisionOverwrite}
	f := newFixture(t, resolver)
	remote := []byte("remote wins")
	f.addRemoteFile(t, "m1", "d1", "/", "a.txt", remote, true)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(f.root, "a.txt")
	if err := os.WriteFile(path, []byte("local loses"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := f.dl.DownloadPending(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(remote) {
		t.Errorf("content = %q, want remote version", got)
	}
}

func TestDownloadPending_ConflictIgnore(t *testing.T) {
	ctx := context.Background()
	resolver := &scriptedResolver{decision: DecisionIgnore}
	f := newFixture(t, resolver)
	f.addRemoteFile(t, "m1", "d1", "/", "a.txt", []byte("suppressed"), true)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(f.root, "a.txt")
	if err := os.WriteFile(path, []byte("local keeps"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := f.dl.DownloadPending(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "local keeps" {
		t.Errorf("local file touched: %q", got)
	}

	completed, err := f.store.GetCompletedByTx(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !completed.Ignore {
		t.Error("record not flagged ignore")
	}

	// Ignored records leave the download working set.
	pending, err := f.store.GetCompletedNotLocal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d records, want 0", len(pending))
	}
}

func TestDownloadPending_ConflictSkip(t *testing.T) {
	ctx := context.Background()
	resolver := &scriptedResolver{decision: DecisionSkip}
	f := newFixture(t, resolver)
	f.addRemoteFile(t, "m1", "d1", "/", "a.txt", []byte("later"), true)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(f.root, "a.txt")
	if err := os.WriteFile(path, []byte("undecided"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := f.dl.DownloadPending(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "undecided" {
		t.Errorf("local file touched: %q", got)
	}

	// Still pending: the conflict is raised again next sweep.
	pending, err := f.store.GetCompletedNotLocal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d records, want 1", len(pending))
	}
	if err := f.dl.DownloadPending(ctx); err != nil {
		t.Fatal(err)
	}
	if resolver.calls != 2 {
		t.Errorf("resolver calls = %d, want 2", resolver.calls)
	}
}

func TestDownloadPending_Folder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	if err := f.store.AddCompletedRecord(ctx, &store.CompletedRecord{
		TxID:      "m-folder",
		FileName:  "docs",
		FileHash:  store.FolderHashSentinel,
		DrivePath: "/docs/",
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.dl.DownloadPending(ctx); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(f.root, "docs"))
	if err != nil || !info.IsDir() {
		t.Fatalf("folder not materialized: %v", err)
	}
	completed, err := f.store.GetCompletedByTx(ctx, "m-folder")
	if err != nil {
		t.Fatal(err)
	}
	if !completed.IsLocal {
		t.Error("folder not marked local")
	}
}

func TestDownloadPending_HashMismatchNotMarkedLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addRemoteFile(t, "m1", "d1", "/", "a.txt", []byte("expected"), true)

	if err := f.dl.FetchRemoteMetadata(ctx); err != nil {
		t.Fatal(err)
	}
	// The gateway serves different bytes than the metadata promised.
	f.ledger.addTx("d1", nil, []byte("tampered"))

	if err := f.dl.DownloadPending(ctx); err != nil {
		t.Fatal(err)
	}

	completed, err := f.store.GetCompletedByTx(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if completed.IsLocal {
		t.Error("mismatched download marked local")
	}
}
