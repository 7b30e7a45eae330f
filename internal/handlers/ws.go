package handlers

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/serhatdk/passage/internal/fileops"
	"github.com/serhatdk/passage/internal/models"
	"github.com/serhatdk/passage/internal/protocol"
	"github.com/serhatdk/passage/internal/registry"
	"github.com/serhatdk/passage/internal/relay"
	"github.com/serhatdk/passage/internal/sshx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WSHandler is the realtime channel boundary: it upgrades one websocket per
// web session, dispatches inbound events to the shell relay and file
// operation coordinator, and tears the session's remote handles down when
// the socket goes away.
type WSHandler struct {
	reg *registry.Registry
	db  *gorm.DB
}

func NewWSHandler(reg *registry.Registry, db *gorm.DB) *WSHandler {
	return &WSHandler{reg: reg, db: db}
}

// UpgradeCheck is middleware that checks if the request is a websocket upgrade
func (h *WSHandler) UpgradeCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// jsonWriter is the outbound half of one websocket connection.
type jsonWriter interface {
	WriteJSON(v interface{}) error
}

// wsSink serializes outbound writes on one websocket. Once the socket
// closes, every further Emit fails instead of writing to a dead channel.
type wsSink struct {
	mu     sync.Mutex
	conn   jsonWriter
	closed bool
}

func (s *wsSink) Emit(ev protocol.ServerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("client channel closed")
	}
	if err := s.conn.WriteJSON(ev); err != nil {
		s.closed = true
		return err
	}
	return nil
}

func (s *wsSink) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// wsSession is the per-socket dispatch state: the remote handles opened
// from one realtime channel.
type wsSession struct {
	h     *WSHandler
	id    string
	sink  *wsSink
	shell *relay.Shell
	coord *fileops.Coordinator
}

func (h *WSHandler) newSession(id string, sink *wsSink) *wsSession {
	return &wsSession{h: h, id: id, sink: sink}
}

// HandleSession runs one client's realtime channel.
func (h *WSHandler) HandleSession() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sessionID := c.Query("sid")
		if sessionID == "" {
			c.WriteJSON(protocol.Errorf("Missing session identifier"))
			return
		}

		sess := h.newSession(sessionID, &wsSink{conn: c})
		defer sess.teardown()

		for {
			var ev protocol.ClientEvent
			if err := c.ReadJSON(&ev); err != nil {
				return
			}
			sess.handle(ev)
		}
	})
}

// teardown closes the client channel and every remote handle of the
// session. Safe to call once the socket is gone.
func (s *wsSession) teardown() {
	s.sink.shutdown()
	s.h.reg.Close(s.id)
	slog.Info("Session closed", "session", s.id)
}

// handle dispatches one inbound event.
func (s *wsSession) handle(ev protocol.ClientEvent) {
	if err := ev.Validate(); err != nil {
		s.sink.Emit(protocol.Errorf("Invalid request: %v", err))
		return
	}

	switch ev.Type {
	case protocol.EventConnectShell:
		s.connectShell(ev)

	case protocol.EventCommand:
		if s.shell == nil || !s.h.reg.HasShell(s.id) {
			s.sink.Emit(protocol.Errorf("No active connection"))
			return
		}
		if err := s.shell.Send(ev.Command); err != nil {
			s.sink.Emit(protocol.Errorf("Write failed: %v", err))
		}

	case protocol.EventConnectFile:
		s.connectFile(ev)

	case protocol.EventSaveChat:
		s.h.saveChat(s.id, ev, s.sink)

	default:
		// Everything else is a file operation and needs the file
		// capability registered first.
		if s.coord == nil {
			s.sink.Emit(protocol.Errorf("No active connection"))
			return
		}
		s.dispatchFileOp(ev)
	}
}

func (s *wsSession) connectShell(ev protocol.ClientEvent) {
	creds := credentialsFromEvent(ev)
	client, err := sshx.Dial(creds)
	if err != nil {
		s.sink.Emit(protocol.Errorf("Connection failed: %v", err))
		return
	}
	s.h.reg.SetTransport(s.id, client)

	sh, err := relay.Open(client, creds.WorkDir, s.sink, func(closed *relay.Shell) {
		s.h.reg.ClearShell(s.id, closed)
	})
	if err != nil {
		// A session whose shell never opened must not linger as connected.
		s.h.reg.Close(s.id)
		s.sink.Emit(protocol.Errorf("Shell failed: %v", err))
		return
	}
	s.h.reg.SetShell(s.id, sh)
	s.shell = sh
	slog.Info("Shell session started", "session", s.id, "host", creds.Host)
}

func (s *wsSession) connectFile(ev protocol.ClientEvent) {
	client, ok := s.h.reg.Transport(s.id)
	if !ok {
		creds := credentialsFromEvent(ev)
		fresh, err := sshx.Dial(creds)
		if err != nil {
			s.sink.Emit(protocol.Errorf("Connection failed: %v", err))
			return
		}
		s.h.reg.SetTransport(s.id, fresh)
		client = fresh
	}

	fs, err := sshx.NewSFTPFS(client)
	if err != nil {
		s.sink.Emit(protocol.Errorf("SFTP failed: %v", err))
		return
	}
	s.h.reg.SetFS(s.id, fs, fs)
	s.coord = fileops.New(fs, &sshx.ClientRunner{Client: client}, s.sink)
	s.sink.Emit(protocol.Info("File connection established"))
	slog.Info("File session started", "session", s.id)
}

// dispatchFileOp runs one file operation. Operations run off the read loop
// so a slow remote does not stall the channel; each emits exactly one
// terminal event, and emission fails harmlessly once the sink is closed.
func (s *wsSession) dispatchFileOp(ev protocol.ClientEvent) {
	go func() {
		if !s.h.reg.Active(s.id) {
			return
		}
		switch ev.Type {
		case protocol.EventListDir:
			s.coord.List(ev.Path)
		case protocol.EventReadFile:
			s.coord.Read(ev.Path)
		case protocol.EventSaveFile:
			s.coord.Save(ev.Path, ev.Content)
		case protocol.EventDeleteFile:
			s.coord.Delete(ev.Path, ev.IsDir)
		case protocol.EventRenameFile:
			s.coord.Rename(ev.Path, ev.NewPath)
		case protocol.EventCreateFolder:
			s.coord.Mkdir(ev.Path)
		case protocol.EventZipDir:
			s.coord.ZipRemote(ev.Path)
		case protocol.EventUploadFile:
			data, err := base64.StdEncoding.DecodeString(ev.Data)
			if err != nil {
				s.sink.Emit(protocol.Errorf("Invalid upload payload: %v", err))
				return
			}
			s.coord.Upload(ev.Path, data)
		}
	}()
}

func (h *WSHandler) saveChat(sessionID string, ev protocol.ClientEvent, sink *wsSink) {
	history := models.ChatHistory{
		SessionID: sessionID,
		Messages:  datatypes.JSON(ev.Messages),
	}
	if err := h.db.Create(&history).Error; err != nil {
		sink.Emit(protocol.Errorf("Failed to save chat history: %v", err))
		return
	}
	sink.Emit(protocol.ServerEvent{Type: protocol.EventChatSaved, Message: "Chat history saved"})
}

func credentialsFromEvent(ev protocol.ClientEvent) sshx.Credentials {
	return sshx.Credentials{
		Host:       ev.Host,
		Port:       ev.Port,
		Username:   ev.Username,
		Password:   ev.Password,
		PrivateKey: ev.PrivateKey,
		AuthType:   ev.AuthType,
		WorkDir:    ev.WorkDir,
	}
}
