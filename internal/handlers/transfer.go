package handlers

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/gofiber/fiber/v2"
	"github.com/serhatdk/passage/internal/fileops"
	"github.com/serhatdk/passage/internal/protocol"
	"github.com/serhatdk/passage/internal/registry"
	"github.com/serhatdk/passage/internal/sshx"
)

// TransferHandler serves the bulk-transfer endpoints that bypass the
// realtime channel: streamed single-file and archive downloads plus the
// JSON content fetch/save pair. Every endpoint requires an already
// registered file capability for the session.
type TransferHandler struct {
	reg *registry.Registry
}

func NewTransferHandler(reg *registry.Registry) *TransferHandler {
	return &TransferHandler{reg: reg}
}

// coordinator builds a request-scoped coordinator for the session, or
// reports the protocol-state error when no file capability is registered.
func (h *TransferHandler) coordinator(c *fiber.Ctx) (*fileops.Coordinator, sshx.RemoteFS, bool) {
	sid := c.Query("sid")
	fs, ok := h.reg.FS(sid)
	if !ok {
		return nil, nil, false
	}
	client, ok := h.reg.Transport(sid)
	if !ok {
		return nil, nil, false
	}
	return fileops.New(fs, &sshx.ClientRunner{Client: client}, protocol.Discard), fs, true
}

func noConnection(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":   true,
		"message": "No active connection for this session",
	})
}

// DownloadFile streams one remote file to the browser.
func (h *TransferHandler) DownloadFile(c *fiber.Ctx) error {
	_, fs, ok := h.coordinator(c)
	if !ok {
		return noConnection(c)
	}

	p := c.Query("path")
	if p == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Valid path is required",
		})
	}

	src, err := fs.OpenRead(p)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to open file: " + err.Error(),
		})
	}

	c.Set("Content-Type", "application/octet-stream")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(p)))
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer src.Close()
		if _, err := io.Copy(w, src); err != nil {
			slog.Warn("File download aborted", "path", p, "error", err)
		}
	})
	return nil
}

// DownloadArchive streams a zip of the remote directory tree, entry by
// entry, with no server-side temp file.
func (h *TransferHandler) DownloadArchive(c *fiber.Ctx) error {
	coord, _, ok := h.coordinator(c)
	if !ok {
		return noConnection(c)
	}

	p := c.Query("path")
	if p == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Valid path is required",
		})
	}

	c.Set("Content-Type", "application/zip")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(p)+".zip"))
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if err := coord.ZipDownload(p, w); err != nil {
			slog.Warn("Archive download aborted", "path", p, "error", err)
		}
	})
	return nil
}

// GetContent returns file content as JSON.
func (h *TransferHandler) GetContent(c *fiber.Ctx) error {
	coord, _, ok := h.coordinator(c)
	if !ok {
		return noConnection(c)
	}

	p := c.Query("path")
	if p == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Valid path is required",
		})
	}

	content, err := coord.ReadContent(p)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"path":    p,
		"content": content,
	})
}

// SaveContent writes file content from a JSON body.
func (h *TransferHandler) SaveContent(c *fiber.Ctx) error {
	coord, _, ok := h.coordinator(c)
	if !ok {
		return noConnection(c)
	}

	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}
	if req.Path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Valid path is required",
		})
	}

	if err := coord.SaveContent(req.Path, req.Content); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "File written successfully",
		"path":    req.Path,
		"size":    len(req.Content),
	})
}
