package handlers

import (
	"ShopHub/config"
	"ShopHub/models"
	"ShopHub/services"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// UploadHandler 附件管道：上传走普通 HTTP（不占长连接），
// 分类、落盘、挂消息，然后把带附件的消息经会话组重新广播。
type UploadHandler struct {
	cfg           *config.UploadConfig
	conversations *services.ConversationService
	messages      *services.MessageService
}

func NewUploadHandler(cfg *config.UploadConfig, conversations *services.ConversationService, messages *services.MessageService) *UploadHandler {
	return &UploadHandler{
		cfg:           cfg,
		conversations: conversations,
		messages:      messages,
	}
}

// 按扩展名分类
func classifyFileType(fileName string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	switch ext {
	case "pdf":
		return models.FileTypePDF
	case "jpg", "jpeg", "png", "gif", "webp":
		return models.FileTypeImage
	case "mp4", "avi", "mov", "webm":
		return models.FileTypeVideo
	default:
		return models.FileTypeOther
	}
}

func (h *UploadHandler) Upload(c echo.Context) error {
	conversationIDStr := c.FormValue("conversation_id")
	if conversationIDStr == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "conversation_id is required"})
	}
	conversationID64, err := strconv.ParseUint(conversationIDStr, 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation_id"})
	}
	conversationID := uint(conversationID64)

	var messageID *uint
	if v := c.FormValue("message_id"); v != "" {
		id64, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message_id"})
		}
		id := uint(id64)
		messageID = &id
	}

	// 权限跟查会话一致：坐席、归属客户、持对应游客标识
	ident := currentIdentity(c)
	if _, err := h.conversations.Authorize(conversationID, ident); err != nil {
		return conversationError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no file provided"})
	}
	if h.cfg.MaxSizeBytes > 0 && fileHeader.Size > h.cfg.MaxSizeBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
	}

	storedPath, err := h.store(fileHeader)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store file"})
	}

	attachment := &models.Attachment{
		FilePath: storedPath,
		FileType: classifyFileType(fileHeader.Filename),
		FileName: fileHeader.Filename,
		FileSize: fileHeader.Size,
	}

	msg, err := h.messages.AppendFile(conversationID, ident, messageID, attachment)
	if err != nil {
		switch err {
		case services.ErrMessageNotFound:
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		case services.ErrConversationNotFound:
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to save attachment"})
		}
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"attachment": attachment,
		"message":    services.MessageDTO(msg),
	})
}

// store 按日期分目录落盘，文件名用 UUID 防冲突，返回相对路径
func (h *UploadHandler) store(fileHeader *multipart.FileHeader) (string, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	now := time.Now()
	relDir := filepath.Join(now.Format("2006"), now.Format("01"), now.Format("02"))
	dir := filepath.Join(h.cfg.Dir, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s%s", uuid.New().String(), strings.ToLower(filepath.Ext(fileHeader.Filename)))
	dstPath := filepath.Join(dir, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return filepath.Join(relDir, name), nil
}
