package api

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/psp-tools/group-archive/app/database"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func NewHandler(messageRepo database.MessageRepository, stateRepo database.SyncStateRepository,
	db *database.DB) *Handler {
	return &Handler{
		messageRepo: messageRepo,
		stateRepo:   stateRepo,
		db:          db,
	}
}

func (h *Handler) ListMessages(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messages, hasMore, err := h.messageRepo.ListMessages(*filter)
	if err != nil {
		slog.Error("Database error", "operation", "list_messages", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := MessageListResponse{
		Messages: make([]MessageSummary, 0, len(messages)),
		HasMore:  hasMore,
	}
	for i := range messages {
		response.Messages = append(response.Messages, newMessageSummary(&messages[i]))
	}
	if hasMore && len(messages) > 0 {
		cursor := messages[len(messages)-1].ID
		response.NextCursor = &cursor
	}

	h.respondCached(c, response)
}

func (h *Handler) GetMessage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message id"})
		return
	}

	msg, err := h.messageRepo.GetMessage(id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_message", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	h.respondCached(c, newMessageDetail(msg))
}

func (h *Handler) GetTopicMessages(c *gin.Context) {
	topicID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid topic id"})
		return
	}

	messages, err := h.messageRepo.GetTopicMessages(topicID)
	if err != nil {
		slog.Error("Database error", "operation", "get_topic_messages", "topic_id", topicID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if len(messages) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Topic not found"})
		return
	}

	details := make([]MessageDetail, 0, len(messages))
	for i := range messages {
		details = append(details, newMessageDetail(&messages[i]))
	}

	h.respondCached(c, gin.H{
		"topic_id": topicID,
		"messages": details,
		"total":    len(details),
	})
}

func (h *Handler) ListHashtags(c *gin.Context) {
	hashtags, err := h.messageRepo.ListHashtags()
	if err != nil {
		slog.Error("Database error", "operation", "list_hashtags", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	views := make([]gin.H, 0, len(hashtags))
	for _, tag := range hashtags {
		views = append(views, gin.H{
			"name":  tag.Name,
			"color": tag.ColorHex,
			"count": tag.Count,
		})
	}

	h.respondCached(c, gin.H{
		"hashtags": views,
		"total":    len(views),
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	total, oldest, newest, err := h.messageRepo.GetArchiveStats()
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	stats := gin.H{
		"total_messages":    total,
		"oldest_message_at": oldest,
		"newest_message_at": newest,
	}

	if state, err := h.stateRepo.GetSyncState(); err == nil {
		stats["last_fetch_at"] = state.LastFetchAt
		stats["backfill"] = gin.H{
			"completed":         state.BackfillPageToken == nil && state.OldestMessageID != nil,
			"in_progress":       state.BackfillPageToken != nil,
			"oldest_message_id": state.OldestMessageID,
		}
	}

	h.respondCached(c, stats)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.db.Ping(); err != nil {
		slog.Error("Health check failed", "error", err)
		health["status"] = "degraded"
		health["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

// respondCached writes the payload with an ETag derived from its content and
// answers a matching If-None-Match with 304 and an empty body.
func (h *Handler) respondCached(c *gin.Context, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode response"})
		return
	}

	sum := md5.Sum(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	c.Header("ETag", etag)
	c.Header("Cache-Control", "public, max-age=60")

	if match := c.GetHeader("If-None-Match"); match != "" {
		for _, candidate := range strings.Split(match, ",") {
			if strings.TrimSpace(candidate) == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func parseListFilter(c *gin.Context) (*database.ListFilter, error) {
	filter := &database.ListFilter{Limit: defaultPageLimit}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return nil, errors.New("limit must be a positive integer")
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
		filter.Limit = limit
	}

	if raw := c.Query("cursor"); raw != "" {
		cursor, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || cursor < 1 {
			return nil, errors.New("cursor must be a positive integer")
		}
		filter.Cursor = &cursor
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.New("since must be an RFC 3339 timestamp")
		}
		filter.Since = &since
	}

	if raw := c.Query("hashtags"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				filter.Hashtags = append(filter.Hashtags, name)
			}
		}
	}

	if raw := strings.TrimSpace(c.Query("search")); raw != "" {
		filter.Search = sanitizeSearchQuery(raw)
	}

	return filter, nil
}

// sanitizeSearchQuery turns free-form user input into a safe FTS5 query:
// each term is quoted, so FTS operators and punctuation lose their meaning.
func sanitizeSearchQuery(input string) string {
	terms := strings.Fields(input)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ReplaceAll(term, `"`, "")
		if term != "" {
			quoted = append(quoted, `"`+term+`"`)
		}
	}
	return strings.Join(quoted, " ")
}
