package models

import "time"

// RecordKind distinguishes the two record units delivered by the source.
type RecordKind string

const (
	RecordChat    RecordKind = "chat"
	RecordMessage RecordKind = "message"
)

// Record is one chat or message unit fetched from the source. Content is
// opaque to the sync engine; the bridge has already parsed it.
type Record struct {
	Kind      RecordKind `json:"kind"`
	ID        string     `json:"id"`
	ChatJID   string     `json:"chat_jid"`
	Timestamp int64      `json:"timestamp"`
	Sender    string     `json:"sender,omitempty"`
	FromMe    bool       `json:"from_me,omitempty"`
	Content   string     `json:"content,omitempty"`

	// Chat-only fields.
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"is_group,omitempty"`
}

// RecordBatch is one page of records from the fetch collaborator. An empty
// Records slice means the source is exhausted.
type RecordBatch struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// Empty reports whether the batch carries no records.
func (b *RecordBatch) Empty() bool {
	return b == nil || len(b.Records) == 0
}

// LastTimestamp returns the timestamp of the final record, or 0 when empty.
func (b *RecordBatch) LastTimestamp() int64 {
	if b.Empty() {
		return 0
	}
	return b.Records[len(b.Records)-1].Timestamp
}

// Chat represents a conversation in the store.
type Chat struct {
	JID       string
	Name      string
	IsGroup   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents one stored message, keyed by (chat JID, id).
type Message struct {
	ID         string
	ChatJID    string
	Timestamp  int64
	Sender     string
	FromMe     bool
	Content    string
	SyncSource string
	CreatedAt  time.Time
}

// ChatRecord converts a chat record into its store form.
func (r Record) ChatRecord() *Chat {
	jid := r.ChatJID
	if jid == "" {
		jid = r.ID
	}
	return &Chat{
		JID:     jid,
		Name:    r.Name,
		IsGroup: r.IsGroup,
	}
}

// MessageRecord converts a message record into its store form.
func (r Record) MessageRecord(source string) *Message {
	return &Message{
		ID:         r.ID,
		ChatJID:    r.ChatJID,
		Timestamp:  r.Timestamp,
		Sender:     r.Sender,
		FromMe:     r.FromMe,
		Content:    r.Content,
		SyncSource: source,
	}
}
