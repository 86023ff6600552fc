package handlers

import (
	"ShopHub/config"
	"ShopHub/models"
	"ShopHub/services"
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFileType(t *testing.T) {
	cases := []struct {
		fileName string
		want     string
	}{
		{"invoice.pdf", models.FileTypePDF},
		{"Invoice.PDF", models.FileTypePDF},
		{"photo.jpg", models.FileTypeImage},
		{"photo.jpeg", models.FileTypeImage},
		{"photo.png", models.FileTypeImage},
		{"anim.gif", models.FileTypeImage},
		{"pic.webp", models.FileTypeImage},
		{"clip.mp4", models.FileTypeVideo},
		{"clip.avi", models.FileTypeVideo},
		{"clip.mov", models.FileTypeVideo},
		{"clip.webm", models.FileTypeVideo},
		{"archive.zip", models.FileTypeOther},
		{"noext", models.FileTypeOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyFileType(tc.fileName), tc.fileName)
	}
}

func newUploadTestHandler(t *testing.T) (*UploadHandler, *services.ConversationService, *recordingBus) {
	t.Helper()
	db := newTestDB(t)
	rec := &recordingBus{}
	convSvc := services.NewConversationService(db, rec, nil)
	msgSvc := services.NewMessageService(db, rec)
	cfg := &config.UploadConfig{Dir: t.TempDir(), MaxSizeBytes: 1 << 20}
	return NewUploadHandler(cfg, convSvc, msgSvc), convSvc, rec
}

func multipartUpload(t *testing.T, fields map[string]string, fileName string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/support/upload", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req, httptest.NewRecorder()
}

func TestUploadCreatesFileMessage(t *testing.T) {
	h, convSvc, _ := newUploadTestHandler(t)
	conv, err := convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	req, rr := multipartUpload(t, map[string]string{
		"conversation_id": strconv.FormatUint(uint64(conv.ID), 10),
	}, "screenshot.png", []byte("png-bytes"))
	req.Header.Set("X-Guest-Session", "g1")

	e := echo.New()
	c := e.NewContext(req, rr)
	require.NoError(t, h.Upload(c))
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Attachment models.Attachment      `json:"attachment"`
		Message    map[string]interface{} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.Equal(t, models.FileTypeImage, resp.Attachment.FileType)
	assert.Equal(t, "screenshot.png", resp.Attachment.FileName)
	assert.Equal(t, int64(len("png-bytes")), resp.Attachment.FileSize)
	assert.Equal(t, "file", resp.Message["message_type"])
	assert.Equal(t, "screenshot.png", resp.Message["content"])

	// 文件真的落了盘，路径相对上传目录
	stored := filepath.Join(h.cfg.Dir, resp.Attachment.FilePath)
	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestUploadNoFile(t *testing.T) {
	h, convSvc, _ := newUploadTestHandler(t)
	conv, err := convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	req, rr := multipartUpload(t, map[string]string{
		"conversation_id": strconv.FormatUint(uint64(conv.ID), 10),
	}, "", nil)
	req.Header.Set("X-Guest-Session", "g1")

	e := echo.New()
	require.NoError(t, h.Upload(e.NewContext(req, rr)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadMissingConversationID(t *testing.T) {
	h, _, _ := newUploadTestHandler(t)

	req, rr := multipartUpload(t, nil, "a.txt", []byte("x"))
	e := echo.New()
	require.NoError(t, h.Upload(e.NewContext(req, rr)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadWrongGuestSession(t *testing.T) {
	h, convSvc, _ := newUploadTestHandler(t)
	conv, err := convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	req, rr := multipartUpload(t, map[string]string{
		"conversation_id": strconv.FormatUint(uint64(conv.ID), 10),
	}, "a.txt", []byte("x"))
	req.Header.Set("X-Guest-Session", "g2")

	e := echo.New()
	require.NoError(t, h.Upload(e.NewContext(req, rr)))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestUploadTooLarge(t *testing.T) {
	h, convSvc, _ := newUploadTestHandler(t)
	h.cfg.MaxSizeBytes = 8
	conv, err := convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	req, rr := multipartUpload(t, map[string]string{
		"conversation_id": strconv.FormatUint(uint64(conv.ID), 10),
	}, "big.bin", []byte("way more than eight bytes"))
	req.Header.Set("X-Guest-Session", "g1")

	e := echo.New()
	require.NoError(t, h.Upload(e.NewContext(req, rr)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestUploadAttachToExistingMessage(t *testing.T) {
	h, convSvc, _ := newUploadTestHandler(t)
	conv, err := convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)
	base, err := h.messages.Append(conv.ID, services.GuestIdentity("g1"), "see attached")
	require.NoError(t, err)

	req, rr := multipartUpload(t, map[string]string{
		"conversation_id": strconv.FormatUint(uint64(conv.ID), 10),
		"message_id":      fmt.Sprintf("%d", base.ID),
	}, "doc.pdf", []byte("pdf"))
	req.Header.Set("X-Guest-Session", "g1")

	e := echo.New()
	require.NoError(t, h.Upload(e.NewContext(req, rr)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Message map[string]interface{} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, float64(base.ID), resp.Message["id"])
	assert.Equal(t, "see attached", resp.Message["content"])
}
