package api

import (
	"time"

	"github.com/psp-tools/group-archive/app/database"
	"github.com/psp-tools/group-archive/app/message"
)

type Handler struct {
	messageRepo database.MessageRepository
	stateRepo   database.SyncStateRepository
	db          *database.DB
}

type HashtagView struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type AttachmentView struct {
	Index        int    `json:"index"`
	DownloadURL  string `json:"download_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Filename     string `json:"filename,omitempty"`
	MediaType    string `json:"media_type,omitempty"`
}

// MessageSummary is the list-view projection: everything a listing needs,
// without the full body.
type MessageSummary struct {
	ID             int64         `json:"id"`
	TopicID        int64         `json:"topic_id"`
	Created        time.Time     `json:"created"`
	Subject        string        `json:"subject"`
	Snippet        string        `json:"snippet"`
	SenderName     string        `json:"sender_name"`
	Price          string        `json:"price,omitempty"`
	Category       string        `json:"category"`
	IsReply        bool          `json:"is_reply"`
	Hashtags       []HashtagView `json:"hashtags"`
	HasAttachments bool          `json:"has_attachments"`
}

type MessageDetail struct {
	ID          int64            `json:"id"`
	TopicID     int64            `json:"topic_id"`
	GroupID     int64            `json:"group_id"`
	Created     time.Time        `json:"created"`
	Updated     *time.Time       `json:"updated,omitempty"`
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	Snippet     string           `json:"snippet"`
	SenderName  string           `json:"sender_name"`
	SenderEmail string           `json:"sender_email,omitempty"`
	Price       string           `json:"price,omitempty"`
	Category    string           `json:"category"`
	MsgNum      int64            `json:"msg_num"`
	IsReply     bool             `json:"is_reply"`
	ReplyTo     string           `json:"reply_to,omitempty"`
	Hashtags    []HashtagView    `json:"hashtags"`
	Attachments []AttachmentView `json:"attachments"`
}

type MessageListResponse struct {
	Messages   []MessageSummary `json:"messages"`
	HasMore    bool             `json:"has_more"`
	NextCursor *int64           `json:"next_cursor"`
}

func newHashtagViews(hashtags []message.Hashtag) []HashtagView {
	views := make([]HashtagView, 0, len(hashtags))
	for _, h := range hashtags {
		views = append(views, HashtagView{Name: h.Name, Color: h.Color})
	}
	return views
}

func newMessageSummary(msg *message.Message) MessageSummary {
	return MessageSummary{
		ID:             msg.ID,
		TopicID:        msg.TopicID,
		Created:        msg.Created,
		Subject:        msg.Subject,
		Snippet:        msg.Snippet,
		SenderName:     msg.SenderName,
		Price:          msg.Price,
		Category:       string(msg.Category()),
		IsReply:        msg.IsReply,
		Hashtags:       newHashtagViews(msg.Hashtags),
		HasAttachments: len(msg.Attachments) > 0,
	}
}

func newMessageDetail(msg *message.Message) MessageDetail {
	attachments := make([]AttachmentView, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachments = append(attachments, AttachmentView{
			Index:        a.Index,
			DownloadURL:  a.DownloadURL,
			ThumbnailURL: a.ThumbnailURL,
			Filename:     a.Filename,
			MediaType:    a.MediaType,
		})
	}

	return MessageDetail{
		ID:          msg.ID,
		TopicID:     msg.TopicID,
		GroupID:     msg.GroupID,
		Created:     msg.Created,
		Updated:     msg.Updated,
		Subject:     msg.Subject,
		Body:        msg.Body,
		Snippet:     msg.Snippet,
		SenderName:  msg.SenderName,
		SenderEmail: msg.SenderEmail,
		Price:       msg.Price,
		Category:    string(msg.Category()),
		MsgNum:      msg.MsgNum,
		IsReply:     msg.IsReply,
		ReplyTo:     msg.ReplyTo,
		Hashtags:    newHashtagViews(msg.Hashtags),
		Attachments: attachments,
	}
}
