package store

// SyncStatus tracks one half of a file's sync lifecycle. Data and metadata
// move through the states independently: a rename needs a new metadata
// transaction while its data transaction is untouched.
type SyncStatus int

const (
	// StatusNotNeeded means no transaction is required for this half.
	StatusNotNeeded SyncStatus = 0
	// StatusNeedsUpload means a transaction must be submitted.
	StatusNeedsUpload SyncStatus = 1
	// StatusSubmitted means a transaction was submitted and is awaiting
	// ledger confirmation.
	StatusSubmitted SyncStatus = 2
	// StatusConfirmed means the transaction reached ledger finality.
	StatusConfirmed SyncStatus = 3
)

// String returns a human-readable representation of the status.
func (s SyncStatus) String() string {
	switch s {
	case StatusNotNeeded:
		return "not-needed"
	case StatusNeedsUpload:
		return "needs-upload"
	case StatusSubmitted:
		return "submitted"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Entity type discriminators for SyncRecord.EntityType.
const (
	EntityFile   = "file"
	EntityFolder = "folder"
)

// FolderHashSentinel is stored as the content hash of folder records,
// which have no hashable content.
const FolderHashSentinel = "0"

// Profile is the local wallet identity created during onboarding.
// One row per drive; read on every engine start.
type Profile struct {
	ID                int64
	Owner             string
	DriveID           string
	Email             string
	DataProtectionKey string // salt material for deriving the content key
	WalletPrivateKey  string
	WalletPublicKey   string
	SyncSchedule      string
	SyncFolderPath    string
}

// SyncRecord describes one file-or-folder version known to this client,
// local or remote. (FilePath, FileHash) is unique per version; FileID is
// stable across renames and moves; FileVersion only ever increases.
type SyncRecord struct {
	ID             int64
	MetaTxID       string
	DataTxID       string
	AppName        string
	AppVersion     string
	UnixTime       int64
	ContentType    string
	EntityType     string
	DriveID        string
	ParentFolderID string
	FileID         string
	FilePath       string // absolute local path
	DrivePath      string // logical path relative to the sync folder
	FileName       string
	FileHash       string
	FileSize       int64
	ModifiedTime   int64 // local mtime, unix milliseconds
	FileVersion    int64
	PermawebLink   string
	DataStatus     SyncStatus
	MetaStatus     SyncStatus
	IsPublic       bool
	IsLocal        bool
}

// QueueEntry is an in-flight submission awaiting ledger confirmation.
// FilePath is unique: the uploader and confirmation poller both key their
// writes on it, which keeps concurrent sweeps from racing on a row.
type QueueEntry struct {
	ID           int64
	TxID         string
	Owner        string
	FilePath     string
	FileName     string
	FileHash     string
	FileSize     int64
	SyncStatus   SyncStatus
	Ignore       bool
	IsPublic     bool
	ModifiedTime int64
	DrivePath    string
	FileVersion  int64
	Keywords     string
	PermawebLink string
	PrevTxID     string
	BlockHash    string
}

// CompletedRecord is the terminal record of a file whose transaction
// reached ledger finality. Ignore suppresses future download attempts;
// IsLocal=false marks a record known on the ledger but not on disk.
type CompletedRecord struct {
	ID           int64
	TxID         string
	IsLocal      bool
	FileName     string
	FileHash     string
	Owner        string
	PermawebLink string
	IsPublic     bool
	ModifiedTime int64
	DrivePath    string
	FileVersion  int64
	Ignore       bool
	Keywords     string
	PrevTxID     string
	BlockHash    string
}
