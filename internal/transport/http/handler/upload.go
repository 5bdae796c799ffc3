package handler

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/app"
	"chatrelay/internal/config"
	"chatrelay/internal/logger"
)

type UploadHandler struct {
	docService *app.DocumentService
	cfg        config.UploadConfig
	log        *logger.Logger
}

func NewUploadHandler(docService *app.DocumentService, cfg config.UploadConfig, log *logger.Logger) *UploadHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &UploadHandler{docService: docService, cfg: cfg, log: log}
}

func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file"})
		return
	}

	username := c.PostForm("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No username"})
		return
	}

	if h.cfg.MaxBytes > 0 && file.Size > h.cfg.MaxBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	// Keep the raw upload on disk alongside the extracted text.
	savePath := filepath.Join(h.cfg.Dir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, savePath); err != nil {
		h.log.Error("save upload failed", "filename", file.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}

	f, err := file.Open()
	if err != nil {
		h.log.Error("open upload failed", "filename", file.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}
	defer f.Close()

	if err := h.docService.Ingest(username, file.Filename, f); err != nil {
		h.log.Error("ingest upload failed", "username", username, "filename", file.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response": fmt.Sprintf("File '%s' uploaded and analyzed", file.Filename),
	})
}
