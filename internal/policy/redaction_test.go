package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskContacts(t *testing.T) {
	cases := map[string]string{
		"Email sent successfully to sam@example.com": "Email sent successfully to s***@example.com",
		"Call to +1 (555) 123-9876 completed":        "Call to *********76 completed",
		"card 4242 4242 4242 4242 on file":           "card [card] on file",
		"Message sent via slack":                     "Message sent via slack",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskContacts(in), in)
	}
}
