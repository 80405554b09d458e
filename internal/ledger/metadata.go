package ledger

// Transaction tag names shared by upload and reconciliation.
const (
	TagAppName        = "App-Name"
	TagAppVersion     = "App-Version"
	TagUnixTime       = "Unix-Time"
	TagContentType    = "Content-Type"
	TagEntityType     = "Entity-Type"
	TagDriveID        = "Drive-Id"
	TagFileID         = "File-Id"
	TagParentFolderID = "Parent-Folder-Id"
)

// WinstonPerToken converts the gateway's integer pricing unit to tokens.
const WinstonPerToken = 1e12

// EntityMetadata is the JSON body of a metadata transaction. For private
// entities the whole document is sealed into a tag envelope before
// submission; the field layout is identical either way.
type EntityMetadata struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Hash         string `json:"hash"`
	ModifiedDate int64  `json:"modifiedDate"`
	DataTxID     string `json:"dataTxId"`
	FileVersion  int64  `json:"fileVersion"`
	Path         string `json:"path"`
}

// FindTag returns the value of the named tag, or "" when absent.
func FindTag(tags []Tag, name string) string {
	for _, t := range tags {
		if t.Name == name {
			return t.Value
		}
	}
	return ""
}
