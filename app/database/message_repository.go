package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/psp-tools/group-archive/app/message"
)

var _ MessageRepository = (*messageRepository)(nil)

type messageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `m.id, m.topic_id, m.group_id, m.created, m.updated,
	m.subject, m.body, m.snippet, m.sender_name, m.sender_email, m.price,
	m.msg_num, m.is_reply, m.is_plain_text, m.reply_to, m.search_text, m.fetched_at`

func (r *messageRepository) InsertMessage(msg *message.Message) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// INSERT OR IGNORE makes the primary-key check and the write a single
	// atomic statement; a conflict means the message is already known.
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO messages (
			id, topic_id, group_id, created, updated, subject, body, snippet,
			sender_name, sender_email, price, msg_num, is_reply, is_plain_text,
			reply_to, search_text, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.TopicID, msg.GroupID, timeToMs(msg.Created), ptrTimeToMs(msg.Updated),
		msg.Subject, msg.Body, msg.Snippet, msg.SenderName, msg.SenderEmail, msg.Price,
		msg.MsgNum, msg.IsReply, msg.IsPlainText, msg.ReplyTo, msg.SearchText,
		timeToMs(msg.FetchedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	for _, tag := range msg.Hashtags {
		_, err := tx.Exec(`
			INSERT INTO hashtags (message_id, name, color_hex)
			VALUES (?, ?, ?)
		`, msg.ID, tag.Name, tag.Color)
		if err != nil {
			return false, fmt.Errorf("failed to insert hashtag: %w", err)
		}
	}

	for _, att := range msg.Attachments {
		_, err := tx.Exec(`
			INSERT INTO attachments (message_id, attachment_index, download_url, thumbnail_url, filename, media_type)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.ID, att.Index, att.DownloadURL, att.ThumbnailURL, att.Filename, att.MediaType)
		if err != nil {
			return false, fmt.Errorf("failed to insert attachment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit message insert: %w", err)
	}

	return true, nil
}

func (r *messageRepository) ListMessages(filter ListFilter) ([]message.Message, bool, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var conditions []string
	var args []interface{}

	if filter.Cursor != nil {
		conditions = append(conditions, "m.id < ?")
		args = append(args, *filter.Cursor)
	}
	if filter.Since != nil {
		conditions = append(conditions, "m.created > ?")
		args = append(args, filter.Since.UnixMilli())
	}
	if len(filter.Hashtags) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Hashtags)), ",")
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM hashtags h WHERE h.message_id = m.id AND lower(h.name) IN ("+placeholders+"))")
		for _, name := range filter.Hashtags {
			args = append(args, strings.ToLower(strings.TrimSpace(name)))
		}
	}
	if filter.Search != "" {
		conditions = append(conditions,
			"m.id IN (SELECT rowid FROM messages_fts WHERE messages_fts MATCH ?)")
		args = append(args, filter.Search)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Fetch one extra row to learn whether more pages exist.
	args = append(args, limit+1)

	query := fmt.Sprintf(`
		SELECT %s
		FROM messages m
		%s
		ORDER BY m.id DESC
		LIMIT ?
	`, messageColumns, whereClause)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	if err := r.attachRelated(messages); err != nil {
		return nil, false, err
	}

	return messages, hasMore, nil
}

func (r *messageRepository) GetMessage(id int64) (*message.Message, error) {
	row := r.db.QueryRow(fmt.Sprintf(`
		SELECT %s
		FROM messages m
		WHERE m.id = ?
	`, messageColumns), id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	msgs := []message.Message{*msg}
	if err := r.attachRelated(msgs); err != nil {
		return nil, err
	}

	return &msgs[0], nil
}

func (r *messageRepository) GetTopicMessages(topicID int64) ([]message.Message, error) {
	rows, err := r.db.Query(fmt.Sprintf(`
		SELECT %s
		FROM messages m
		WHERE m.topic_id = ?
		ORDER BY m.created ASC, m.id ASC
	`, messageColumns), topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to get topic messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	if err := r.attachRelated(messages); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *messageRepository) ListHashtags() ([]HashtagCount, error) {
	rows, err := r.db.Query(`
		SELECT name, MAX(color_hex), COUNT(*) AS cnt
		FROM hashtags
		GROUP BY lower(name)
		ORDER BY cnt DESC, lower(name)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hashtags: %w", err)
	}
	defer rows.Close()

	var hashtags []HashtagCount
	for rows.Next() {
		var h HashtagCount
		if err := rows.Scan(&h.Name, &h.ColorHex, &h.Count); err != nil {
			return nil, fmt.Errorf("failed to scan hashtag row: %w", err)
		}
		hashtags = append(hashtags, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hashtag rows: %w", err)
	}

	return hashtags, nil
}

func (r *messageRepository) GetArchiveStats() (int, *time.Time, *time.Time, error) {
	var total int
	var oldestMs, newestMs sql.NullInt64

	err := r.db.QueryRow(`
		SELECT COUNT(*), MIN(created), MAX(created) FROM messages
	`).Scan(&total, &oldestMs, &newestMs)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to get archive stats: %w", err)
	}

	return total, msToTime(oldestMs), msToTime(newestMs), nil
}

func (r *messageRepository) DeleteMessage(id int64) error {
	res, err := r.db.Exec("DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *messageRepository) ListMessagesForReindex(limit int) ([]ReindexRow, error) {
	rows, err := r.db.Query(`
		SELECT id, subject, body
		FROM messages
		WHERE search_text = '' AND (subject != '' OR body != '')
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for reindex: %w", err)
	}
	defer rows.Close()

	var result []ReindexRow
	for rows.Next() {
		var row ReindexRow
		if err := rows.Scan(&row.ID, &row.Subject, &row.Body); err != nil {
			return nil, fmt.Errorf("failed to scan reindex row: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reindex rows: %w", err)
	}

	return result, nil
}

func (r *messageRepository) UpdateDerivedFields(id int64, price, searchText string) error {
	_, err := r.db.Exec(`
		UPDATE messages
		SET price = ?, search_text = ?
		WHERE id = ?
	`, price, searchText, id)
	if err != nil {
		return fmt.Errorf("failed to update derived fields: %w", err)
	}
	return nil
}

// attachRelated loads hashtags and attachments for the given messages in
// two queries and distributes them in place.
func (r *messageRepository) attachRelated(messages []message.Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]interface{}, 0, len(messages))
	index := make(map[int64]*message.Message, len(messages))
	for i := range messages {
		ids = append(ids, messages[i].ID)
		index[messages[i].ID] = &messages[i]
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	tagRows, err := r.db.Query(`
		SELECT message_id, name, color_hex
		FROM hashtags
		WHERE message_id IN (`+placeholders+`)
		ORDER BY message_id, id
	`, ids...)
	if err != nil {
		return fmt.Errorf("failed to get hashtags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var messageID int64
		var tag message.Hashtag
		if err := tagRows.Scan(&messageID, &tag.Name, &tag.Color); err != nil {
			return fmt.Errorf("failed to scan hashtag row: %w", err)
		}
		if msg, ok := index[messageID]; ok {
			msg.Hashtags = append(msg.Hashtags, tag)
		}
	}
	if err := tagRows.Err(); err != nil {
		return fmt.Errorf("error iterating hashtag rows: %w", err)
	}

	attRows, err := r.db.Query(`
		SELECT message_id, attachment_index, download_url, thumbnail_url, filename, media_type
		FROM attachments
		WHERE message_id IN (`+placeholders+`)
		ORDER BY message_id, attachment_index
	`, ids...)
	if err != nil {
		return fmt.Errorf("failed to get attachments: %w", err)
	}
	defer attRows.Close()

	for attRows.Next() {
		var messageID int64
		var att message.Attachment
		if err := attRows.Scan(&messageID, &att.Index, &att.DownloadURL, &att.ThumbnailURL, &att.Filename, &att.MediaType); err != nil {
			return fmt.Errorf("failed to scan attachment row: %w", err)
		}
		if msg, ok := index[messageID]; ok {
			msg.Attachments = append(msg.Attachments, att)
		}
	}
	if err := attRows.Err(); err != nil {
		return fmt.Errorf("error iterating attachment rows: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*message.Message, error) {
	var msg message.Message
	var createdMs, updatedMs, msgNum, fetchedMs sql.NullInt64

	err := row.Scan(
		&msg.ID, &msg.TopicID, &msg.GroupID, &createdMs, &updatedMs,
		&msg.Subject, &msg.Body, &msg.Snippet, &msg.SenderName, &msg.SenderEmail,
		&msg.Price, &msgNum, &msg.IsReply, &msg.IsPlainText, &msg.ReplyTo,
		&msg.SearchText, &fetchedMs,
	)
	if err != nil {
		return nil, err
	}

	if t := msToTime(createdMs); t != nil {
		msg.Created = *t
	}
	msg.Updated = msToTime(updatedMs)
	if msgNum.Valid {
		msg.MsgNum = msgNum.Int64
	}
	if t := msToTime(fetchedMs); t != nil {
		msg.FetchedAt = *t
	}

	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]message.Message, error) {
	var messages []message.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, *msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

// Timestamps are stored as unix milliseconds; zero times become NULL.

func timeToMs(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func ptrTimeToMs(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func msToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
