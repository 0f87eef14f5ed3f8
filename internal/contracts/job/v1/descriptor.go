package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Descriptor v1: the JSON payload a producer pushes onto the job queue.
//   - job_id: identifier used for logs, per-job files and delivery
//   - kind: "telegram" or "url"; inferred from file_id / media_url when absent
//   - file_id: remote-file handle resolved through the bot file API (telegram)
//   - media_url: direct URL or storage://<key> (url)
//   - media_type: "image" or "video"
//   - music_url: optional background track (url kind only)
type Descriptor struct {
	JobID       string `json:"job_id"`
	ChatID      ChatID `json:"chat_id,omitempty"`
	Kind        string `json:"kind,omitempty"`
	FileID      string `json:"file_id,omitempty"`
	MediaURL    string `json:"media_url,omitempty"`
	MediaType   string `json:"media_type"`
	CaptionText string `json:"caption_text"`
	ApplyFade   bool   `json:"apply_fade"`
	MusicURL    string `json:"music_url,omitempty"`
}

// Media types.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

// Job kinds.
const (
	KindTelegram = "telegram"
	KindURL      = "url"
)

// ChatID accepts either a JSON string or a JSON number and always encodes
// as a string.
type ChatID string

func (c *ChatID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ChatID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("chat_id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("chat_id must be an integer: %s", n)
	}
	*c = ChatID(n.String())
	return nil
}

func (c ChatID) String() string { return string(c) }

// Decode parses a queue payload. It does not validate semantics.
func Decode(payload []byte) (Descriptor, error) {
	var d Descriptor
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&d); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}
