package handler

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"tender-match-go/internal/config"
	"tender-match-go/internal/model"
	"tender-match-go/internal/service"
	"tender-match-go/pkg/log"
)

// DocumentHandler 负责处理文档上传、入库与台账查询相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// IngestRequest 是同步入库接口的请求体。
type IngestRequest struct {
	DocumentName string                 `json:"document_name"`
	Segments     []string               `json:"segments"`
	Chunking     *config.ChunkingConfig `json:"chunking,omitempty"`
}

// Upload 处理 multipart 文件上传，字段 file 为文件，可选字段 chunking 为 JSON 格式的分块配置。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, "DocumentHandler", fmt.Errorf("%w: multipart field 'file' is required", model.ErrInvalidArgument))
		return
	}
	var chunking *config.ChunkingConfig
	if raw := c.PostForm("chunking"); raw != "" {
		chunking = &config.ChunkingConfig{}
		if err := json.Unmarshal([]byte(raw), chunking); err != nil {
			respondError(c, "DocumentHandler", fmt.Errorf("%w: chunking: %v", model.ErrInvalidArgument, err))
			return
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	defer file.Close()

	log.Infof("[DocumentHandler] 收到上传请求, file: %s, size: %d", fileHeader.Filename, fileHeader.Size)
	doc, err := h.docService.Upload(c.Request.Context(), fileHeader.Filename, file, chunking)
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	respondOK(c, "文件已上传，正在后台入库", doc)
}

// Ingest 处理同步入库请求，返回入库报告。
func (h *DocumentHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "DocumentHandler", fmt.Errorf("%w: %v", model.ErrInvalidArgument, err))
		return
	}
	report, err := h.docService.Ingest(c.Request.Context(), req.DocumentName, req.Segments, req.Chunking)
	if err != nil {
		if report != nil {
			// 部分完成时把报告一并返回
			c.JSON(statusFor(err), gin.H{"code": statusFor(err), "message": err.Error(), "data": report})
			return
		}
		respondError(c, "DocumentHandler", err)
		return
	}
	respondOK(c, "success", report)
}

// List 返回入库台账中的全部文档。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.List(c.Request.Context())
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	respondOK(c, "success", docs)
}

// Get 返回单个文档的入库详情。
func (h *DocumentHandler) Get(c *gin.Context) {
	detail, err := h.docService.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	respondOK(c, "success", detail)
}
