package source

import "time"

// Direction selects the sort order of a page fetch. The upstream API
// expresses it as sort_dir.
type Direction string

const (
	DirectionNewest Direction = "desc"
	DirectionOldest Direction = "asc"
)

// RawMessage is a message record exactly as the upstream API returns it.
// Interpretation of missing fields happens in the normalizer, nowhere else.
type RawMessage struct {
	ID          int64           `json:"id"`
	TopicID     int64           `json:"topic_id"`
	GroupID     int64           `json:"group_id"`
	Created     *time.Time      `json:"created"`
	Updated     *time.Time      `json:"updated"`
	Subject     string          `json:"subject"`
	Body        string          `json:"body"`
	Snippet     string          `json:"snippet"`
	Name        string          `json:"name"`
	MsgNum      int64           `json:"msg_num"`
	IsReply     bool            `json:"is_reply"`
	IsPlainText bool            `json:"is_plain_text"`
	ReplyTo     string          `json:"reply_to"`
	Hashtags    []RawHashtag    `json:"hashtags"`
	Attachments []RawAttachment `json:"attachments"`
}

type RawHashtag struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type RawAttachment struct {
	DownloadURL  string `json:"download_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Filename     string `json:"filename"`
	MediaType    string `json:"media_type"`
}

// Page is one page of upstream records plus the continuation state
// needed to request the next one.
type Page struct {
	Records       []RawMessage
	NextPageToken *int64
	HasMore       bool
	TotalCount    int
}

type apiResponse struct {
	TotalCount    int          `json:"total_count"`
	HasMore       bool         `json:"has_more"`
	NextPageToken *int64       `json:"next_page_token"`
	Data          []RawMessage `json:"data"`
}
