package protocol

import "fmt"

// Inbound event types (client → server).
const (
	EventConnectShell = "connect-shell"
	EventCommand      = "command"
	EventConnectFile  = "connect-file"
	EventListDir      = "list-dir"
	EventZipDir       = "zip-dir"
	EventUploadFile   = "upload-file"
	EventDeleteFile   = "delete-file"
	EventRenameFile   = "rename-file"
	EventCreateFolder = "create-folder"
	EventReadFile     = "read-file"
	EventSaveFile     = "save-file"
	EventSaveChat     = "save-chat"
)

// Outbound event types (server → client).
const (
	EventConnected     = "connected"
	EventMessage       = "message"
	EventError         = "error"
	EventOutput        = "output"
	EventDirList       = "dirlist"
	EventZipStart      = "zip-start"
	EventZipDone       = "zip-done"
	EventUploadDone    = "upload-done"
	EventDeleteDone    = "delete-done"
	EventRenameDone    = "rename-done"
	EventFolderCreated = "folder-created"
	EventFileSaved     = "file-saved"
	EventFileContent   = "file-content"
	EventChatSaved     = "chat-saved"
)

// ClientEvent is one inbound message on the realtime channel. A single
// struct carries every variant; Validate enforces the fixed field set of
// the tagged type before the event reaches the relay or coordinator.
type ClientEvent struct {
	Type string `json:"type"`

	// connect-shell / connect-file
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
	AuthType   string `json:"auth_type,omitempty"`
	WorkDir    string `json:"workdir,omitempty"`

	// command
	Command string `json:"command,omitempty"`

	// file operations
	Path    string `json:"path,omitempty"`
	NewPath string `json:"new_path,omitempty"`
	Content string `json:"content,omitempty"`
	Data    string `json:"data,omitempty"` // base64 file bytes for upload
	IsDir   bool   `json:"is_dir,omitempty"`

	// save-chat
	Messages string `json:"messages,omitempty"`
}

// Validate checks that the fields required by the event's type are present.
func (e *ClientEvent) Validate() error {
	switch e.Type {
	case EventConnectShell, EventConnectFile:
		if e.Host == "" || e.Username == "" {
			return fmt.Errorf("%s: host and username are required", e.Type)
		}
	case EventCommand:
		// an empty command is a bare newline, which is legal terminal input
	case EventListDir, EventZipDir, EventCreateFolder, EventReadFile:
		if e.Path == "" {
			return fmt.Errorf("%s: path is required", e.Type)
		}
	case EventDeleteFile:
		if e.Path == "" {
			return fmt.Errorf("%s: path is required", e.Type)
		}
	case EventUploadFile:
		if e.Path == "" {
			return fmt.Errorf("%s: path is required", e.Type)
		}
	case EventSaveFile:
		if e.Path == "" {
			return fmt.Errorf("%s: path is required", e.Type)
		}
	case EventRenameFile:
		if e.Path == "" || e.NewPath == "" {
			return fmt.Errorf("%s: path and new_path are required", e.Type)
		}
	case EventSaveChat:
		if e.Messages == "" {
			return fmt.Errorf("%s: messages payload is required", e.Type)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// DirEntry is one row of a directory listing result.
type DirEntry struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Mode    string `json:"mode"`
	ModTime int64  `json:"mod_time"`
	IsDir   bool   `json:"is_dir"`
}

// ServerEvent is one outbound message on the realtime channel.
type ServerEvent struct {
	Type    string     `json:"type"`
	Message string     `json:"message,omitempty"`
	Data    string     `json:"data,omitempty"` // raw output chunk or file content
	Path    string     `json:"path,omitempty"`
	NewPath string     `json:"new_path,omitempty"`
	Entries []DirEntry `json:"entries,omitempty"`
	Archive string     `json:"archive,omitempty"` // remote archive path for zip-done
}

func Connected(msg string) ServerEvent {
	return ServerEvent{Type: EventConnected, Message: msg}
}

func Info(msg string) ServerEvent {
	return ServerEvent{Type: EventMessage, Message: msg}
}

func Errorf(format string, args ...any) ServerEvent {
	return ServerEvent{Type: EventError, Message: fmt.Sprintf(format, args...)}
}

func Output(chunk string) ServerEvent {
	return ServerEvent{Type: EventOutput, Data: chunk}
}

// EventSink delivers outbound events to one client channel. Implementations
// must be safe for concurrent use and must tolerate emission after the
// underlying channel has closed (returning an error instead of panicking).
type EventSink interface {
	Emit(ev ServerEvent) error
}

// Discard drops every event. Used where results travel on an HTTP response
// body instead of the realtime channel.
var Discard EventSink = discardSink{}

type discardSink struct{}

func (discardSink) Emit(ServerEvent) error { return nil }
