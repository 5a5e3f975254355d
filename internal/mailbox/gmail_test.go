package mailbox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	gmail "google.golang.org/api/gmail/v1"
)

func TestParseSender(t *testing.T) {
	address, name := parseSender("Alice Example <alice@example.com>")
	assert.Equal(t, "alice@example.com", address)
	assert.Equal(t, "Alice Example", name)

	address, name = parseSender("bob@example.com")
	assert.Equal(t, "bob@example.com", address)
	assert.Equal(t, "", name)

	// Unparseable headers fall back to the raw value.
	address, name = parseSender("not an address at all <<")
	assert.Equal(t, "not an address at all <<", address)
	assert.Equal(t, "", name)
}

func TestExtractBodyPrefersPlainText(t *testing.T) {
	part := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "text/html",
				Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("<p>hello</p>"))},
			},
			{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("hello"))},
			},
		},
	}

	assert.Equal(t, "hello", extractBody(part))
}

func TestExtractBodyFallsBackToHTML(t *testing.T) {
	part := &gmail.MessagePart{
		MimeType: "text/html",
		Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("<p>hello</p>"))},
	}

	assert.Equal(t, "<p>hello</p>", extractBody(part))
}

func TestExtractBodyEmptyPayload(t *testing.T) {
	assert.Equal(t, "", extractBody(&gmail.MessagePart{MimeType: "multipart/mixed"}))
}
