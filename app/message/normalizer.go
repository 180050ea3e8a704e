package message

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/psp-tools/group-archive/app/source"
)

// Price patterns in priority order: an explicit currency amount beats the
// word-based phrasings, which are easier to match by accident.
var (
	priceCurrencyRe = regexp.MustCompile(`\$[0-9]+(?:,[0-9]{3})*(?:\.[0-9]{2})?`)
	priceAskingRe   = regexp.MustCompile(`(?i)asking\s*\$?[0-9]+(?:,[0-9]{3})*`)
	priceWordRe     = regexp.MustCompile(`(?i)[0-9]+(?:,[0-9]{3})*\s*(?:dollars|obo)`)

	emailRe = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalizer maps raw upstream records into the internal Message shape and
// derives price, sender email and search text. It does no I/O.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

func (n *Normalizer) Run(raw source.RawMessage) (*Message, error) {
	if raw.ID == 0 {
		return nil, &DecodeError{Reason: "missing message id"}
	}

	msg := &Message{
		ID:          raw.ID,
		TopicID:     raw.TopicID,
		GroupID:     raw.GroupID,
		Subject:     raw.Subject,
		Body:        raw.Body,
		Snippet:     raw.Snippet,
		SenderName:  raw.Name,
		SenderEmail: ExtractEmail(raw.Name),
		Price:       ExtractPrice(raw.Subject, raw.Body),
		MsgNum:      raw.MsgNum,
		IsReply:     raw.IsReply,
		IsPlainText: raw.IsPlainText,
		ReplyTo:     raw.ReplyTo,
		SearchText:  BuildSearchText(raw.Subject, raw.Body),
		FetchedAt:   time.Now().UTC(),
	}

	if raw.Created != nil {
		msg.Created = raw.Created.UTC()
	}
	if raw.Updated != nil {
		updated := raw.Updated.UTC()
		msg.Updated = &updated
	}

	for _, tag := range raw.Hashtags {
		name := strings.TrimSpace(tag.Name)
		if name == "" {
			continue
		}
		msg.Hashtags = append(msg.Hashtags, Hashtag{
			Name:  name,
			Color: tag.Color,
		})
	}

	for i, att := range raw.Attachments {
		thumbnail := att.ThumbnailURL
		if thumbnail == "" {
			thumbnail = att.DownloadURL
		}
		msg.Attachments = append(msg.Attachments, Attachment{
			Index:        i,
			DownloadURL:  att.DownloadURL,
			ThumbnailURL: thumbnail,
			Filename:     att.Filename,
			MediaType:    att.MediaType,
		})
	}

	return msg, nil
}

// ExtractPrice returns the first price-like phrase found in subject then
// body, or "" when neither contains one.
func ExtractPrice(subject, body string) string {
	text := subject + " " + body

	for _, re := range []*regexp.Regexp{priceCurrencyRe, priceAskingRe, priceWordRe} {
		if match := re.FindString(text); match != "" {
			return match
		}
	}

	return ""
}

// ExtractEmail pulls the address out of a "Display Name <addr>" sender
// field, or returns "" when the field carries no angle-bracket address.
func ExtractEmail(name string) string {
	match := emailRe.FindStringSubmatch(name)
	if match == nil {
		return ""
	}
	return match[1]
}

// DeriveCategory inspects the lowercased hashtag name set and returns the
// first match in priority order. It is a pure function of the hashtag set.
func DeriveCategory(hashtags []Hashtag) Category {
	names := make(map[string]bool, len(hashtags))
	for _, tag := range hashtags {
		names[strings.ToLower(tag.Name)] = true
	}

	switch {
	case names["forsale"]:
		return CategoryForSale
	case names["forfree"]:
		return CategoryForFree
	case names["iso"]:
		return CategoryInSearchOf
	default:
		return CategoryUncategorized
	}
}

// BuildSearchText produces the clean text the store's full-text index
// consumes: subject and body concatenated, markup stripped, whitespace
// collapsed, Unicode composed. Tokenization and stemming stay with the
// search engine.
func BuildSearchText(subject, body string) string {
	text := stripMarkup(subject) + " " + stripMarkup(body)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return norm.NFC.String(strings.TrimSpace(text))
}

func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isInvisibleTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isInvisibleTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isInvisibleTag(name string) bool {
	return name == "script" || name == "style"
}
