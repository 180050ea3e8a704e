package message

import (
	"time"
)

// Category is derived from a message's hashtag set. It is never stored:
// DeriveCategory recomputes it from hashtags at any time.
type Category string

const (
	CategoryForSale       Category = "for-sale"
	CategoryForFree       Category = "for-free"
	CategoryInSearchOf    Category = "in-search-of"
	CategoryUncategorized Category = "uncategorized"
)

type Hashtag struct {
	Name  string
	Color string
}

type Attachment struct {
	Index        int
	DownloadURL  string
	ThumbnailURL string
	Filename     string
	MediaType    string
}

// Message is the fully-typed internal shape of one upstream post. Empty
// strings stand for fields the upstream left null; downstream code never
// re-interprets raw nulls.
type Message struct {
	ID          int64
	TopicID     int64
	GroupID     int64
	Created     time.Time
	Updated     *time.Time
	Subject     string
	Body        string
	Snippet     string
	SenderName  string
	SenderEmail string
	Price       string
	MsgNum      int64
	IsReply     bool
	IsPlainText bool
	ReplyTo     string
	SearchText  string
	FetchedAt   time.Time

	Hashtags    []Hashtag
	Attachments []Attachment
}

// Category derives the message category from its hashtags.
func (m *Message) Category() Category {
	return DeriveCategory(m.Hashtags)
}

// DecodeError marks a malformed upstream record. Drivers skip and log the
// record instead of aborting the page.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "malformed record: " + e.Reason
}
