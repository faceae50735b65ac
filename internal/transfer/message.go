package transfer

// request is the tagged-union message the client sends on the transfer
// port, mirroring the control port's flat-struct JSON encoding (spec §4.9).
type request struct {
	Type string `json:"type"`

	// Handshake
	Version string `json:"version,omitempty"`

	// Login
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// FileDownload
	Path string `json:"path,omitempty"`
	Root bool   `json:"root,omitempty"`

	// FileUpload
	Destination string `json:"destination,omitempty"`
	FileCount   int    `json:"file_count,omitempty"`
	TotalSize   int64  `json:"total_size,omitempty"`
	Overwrite   bool   `json:"overwrite,omitempty"`
}

// response is the tagged-union message the server sends back.
type response struct {
	Type    string `json:"type"`
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`

	ServerVersion string `json:"server_version,omitempty"`

	TransferID string `json:"transfer_id,omitempty"`
	TotalBytes int64  `json:"total_bytes,omitempty"`
	FileCount  int    `json:"file_count,omitempty"`
}

// fileRecordHeader precedes each file's body bytes in the record stream.
type fileRecordHeader struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

const (
	reqHandshake    = "handshake"
	reqLogin        = "login"
	reqFileDownload = "file_download"
	reqFileUpload   = "file_upload"

	respHandshake        = "handshake_response"
	respLoginResponse    = "login_response"
	respTransferStarted  = "transfer_started"
	respTransferReady    = "transfer_ready"
	respTransferComplete = "transfer_complete"
	respError            = "error"
)
