package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rmaraujo/fiscalflow/pkg/logger"
	"github.com/rmaraujo/fiscalflow/pkg/queue"
)

// BatchHandler exposes batch submission and status lookup. Batches are
// materialized as folders under the inbox root, mirroring what the
// mailbox ingestor produces, then handed to the task queue.
type BatchHandler struct {
	queue     queue.Queue
	inboxRoot string
	logger    logger.Logger
}

type SubmitResponse struct {
	TaskID    string `json:"taskId"`
	Folder    string `json:"folder"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

func NewBatchHandler(q queue.Queue, inboxRoot string, log logger.Logger) *BatchHandler {
	return &BatchHandler{queue: q, inboxRoot: inboxRoot, logger: log}
}

// SubmitBatch accepts a multipart upload of one email's attachments
// plus its metadata fields, writes them as a batch folder and enqueues
// it.
func (h *BatchHandler) SubmitBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	batchID := uuid.NewString()
	folder := filepath.Join(h.inboxRoot, batchID)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to create batch folder", err)
		return
	}

	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".pdf" && ext != ".xml" {
			continue
		}
		if err := saveUpload(fh, filepath.Join(folder, name)); err != nil {
			h.handleError(c, http.StatusInternalServerError, "Failed to save attachment", err)
			return
		}
	}

	meta := map[string]string{
		"email_subject":        c.PostForm("subject"),
		"email_sender_name":    c.PostForm("sender_name"),
		"email_sender_address": c.PostForm("sender_address"),
		"email_date":           c.PostForm("email_date"),
		"body_text":            c.PostForm("body_text"),
	}
	data, _ := json.MarshalIndent(meta, "", "  ")
	if err := os.WriteFile(filepath.Join(folder, "metadata.json"), data, 0o644); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to write metadata", err)
		return
	}

	task := &queue.BatchTask{ID: batchID, Folder: folder, CreatedAt: time.Now()}
	if err := h.queue.EnqueueBatch(c.Request.Context(), task); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to enqueue batch", err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{
		TaskID:    task.ID,
		Folder:    folder,
		Status:    "pending",
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	})
}

// SubmitFolder enqueues an already-materialized batch folder.
func (h *BatchHandler) SubmitFolder(c *gin.Context) {
	var req struct {
		Folder string `json:"folder" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if info, err := os.Stat(req.Folder); err != nil || !info.IsDir() {
		h.handleError(c, http.StatusBadRequest, "Folder does not exist", err)
		return
	}

	task := &queue.BatchTask{Folder: req.Folder, CreatedAt: time.Now()}
	if err := h.queue.EnqueueBatch(c.Request.Context(), task); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to enqueue batch", err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{
		TaskID:    task.ID,
		Folder:    req.Folder,
		Status:    "pending",
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	})
}

// GetStatus reports a submitted batch's task status.
func (h *BatchHandler) GetStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		h.handleError(c, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	status, err := h.queue.GetTaskStatus(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, http.StatusNotFound, "Task not found", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

func (h *BatchHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
