package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tender-match-go/internal/config"
	"tender-match-go/internal/model"
	"tender-match-go/internal/repository"
	"tender-match-go/pkg/llm"
	"tender-match-go/pkg/log"
)

// DraftService 根据项目信息与检索到的历史标书片段流式生成标书草稿。
type DraftService interface {
	StreamDraft(ctx context.Context, fields model.ProjectFields, writer llm.MessageWriter, shouldStop func() bool) (string, error)
	RecentDrafts(ctx context.Context, limit int) ([]model.DraftRecord, error)
	GetDraft(ctx context.Context, id string) (*model.DraftRecord, error)
}

type draftService struct {
	searchService SearchService
	llmClient     llm.Client
	prompt        config.LLMPromptConfig
	gen           *llm.GenerationParams
	contextTopK   int
	history       repository.DraftRepository
}

// NewDraftService 创建一个新的 DraftService 实例。contextTopK <= 0 时不检索参考资料；
// history 为 nil 时不保存草稿历史。
func NewDraftService(searchService SearchService, llmClient llm.Client, llmCfg config.LLMConfig, contextTopK int, history repository.DraftRepository) DraftService {
	return &draftService{
		searchService: searchService,
		llmClient:     llmClient,
		prompt:        llmCfg.Prompt,
		gen:           llm.ParamsFromConfig(llmCfg.Generation),
		contextTopK:   contextTopK,
		history:       history,
	}
}

// StreamDraft 协调 检索 -> 组装提示词 -> 流式生成 的流程，返回完整草稿文本。
// 检索失败不会中断起草，只是不带参考资料。
func (s *draftService) StreamDraft(ctx context.Context, fields model.ProjectFields, writer llm.MessageWriter, shouldStop func() bool) (string, error) {
	if strings.TrimSpace(fields.Title) == "" && strings.TrimSpace(fields.Description) == "" {
		return "", fmt.Errorf("%w: title or description is required", model.ErrInvalidArgument)
	}

	var matches []model.Match
	if s.contextTopK > 0 {
		result, err := s.searchService.Search(ctx, retrievalQuery(fields), s.contextTopK)
		if err != nil {
			log.Warnf("[DraftService] 检索参考资料失败, 不带参考资料继续起草: %v", err)
		} else {
			matches = result.Matches
		}
	}
	log.Infof("[DraftService] 开始起草, title: '%s', 参考片段: %d", fields.Title, len(matches))

	messages := []llm.Message{
		{Role: "system", Content: s.buildSystemMessage(buildContextText(matches))},
		{Role: "user", Content: buildDraftRequest(fields)},
	}

	answer := &strings.Builder{}
	interceptor := &chunkWriter{writer: writer, answer: answer, shouldStop: shouldStop}
	if err := s.llmClient.StreamChatMessages(ctx, messages, s.gen, interceptor); err != nil {
		return answer.String(), err
	}
	sendCompletion(writer)
	s.saveHistory(ctx, fields, answer.String(), matches, shouldStop != nil && shouldStop())
	return answer.String(), nil
}

func (s *draftService) RecentDrafts(ctx context.Context, limit int) ([]model.DraftRecord, error) {
	if s.history == nil {
		return []model.DraftRecord{}, nil
	}
	return s.history.Recent(ctx, limit)
}

func (s *draftService) GetDraft(ctx context.Context, id string) (*model.DraftRecord, error) {
	if s.history == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrDraftNotFound, id)
	}
	return s.history.FindByID(ctx, id)
}

func (s *draftService) saveHistory(ctx context.Context, fields model.ProjectFields, content string, matches []model.Match, stopped bool) {
	if s.history == nil {
		return
	}
	refs := make([]string, len(matches))
	for i, m := range matches {
		refs[i] = m.ID
	}
	record := &model.DraftRecord{Fields: fields, Content: content, References: refs, Stopped: stopped}
	if err := s.history.Save(ctx, record); err != nil {
		log.Warnf("[DraftService] 保存草稿历史失败: %v", err)
	}
}

func retrievalQuery(fields model.ProjectFields) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{fields.Title, fields.Location, fields.Description} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

func buildDraftRequest(fields model.ProjectFields) string {
	var b strings.Builder
	b.WriteString("请为以下项目起草标书:\n")
	fmt.Fprintf(&b, "项目名称: %s\n", fields.Title)
	fmt.Fprintf(&b, "项目地点: %s\n", fields.Location)
	fmt.Fprintf(&b, "预算: %s\n", fields.Budget)
	fmt.Fprintf(&b, "项目描述: %s\n", fields.Description)
	return b.String()
}

func buildContextText(matches []model.Match) string {
	if len(matches) == 0 {
		return ""
	}
	const maxSnippetLen = 2000
	var contextBuilder strings.Builder
	for i, m := range matches {
		snippet := m.Metadata.Text
		if len(snippet) > maxSnippetLen {
			snippet = snippet[:maxSnippetLen] + "…"
		}
		label := m.Metadata.DocumentName
		if m.Metadata.Section != "" {
			label += " / " + m.Metadata.Section
		}
		fmt.Fprintf(&contextBuilder, "[%d] (%s, %.3f) %s\n", i+1, label, m.Score, snippet)
	}
	return contextBuilder.String()
}

func (s *draftService) buildSystemMessage(contextText string) string {
	refStart := s.prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := s.prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}
	var sys strings.Builder
	if s.prompt.Rules != "" {
		sys.WriteString(s.prompt.Rules)
		sys.WriteString("\n\n")
	}
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := s.prompt.NoResultText
		if noRes == "" {
			noRes = "（无相似历史标书）"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

// chunkWriter 捕获生成的文本，并把每个分块包装为 {"chunk":"..."} 下发。
type chunkWriter struct {
	writer     llm.MessageWriter
	answer     *strings.Builder
	shouldStop func() bool
}

func (w *chunkWriter) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		return nil
	}
	w.answer.Write(data)
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.writer.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(writer llm.MessageWriter) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = writer.WriteMessage(websocket.TextMessage, b)
}
