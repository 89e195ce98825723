package template

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/infinity-finance/backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBody(t *testing.T) {
	t.Parallel()

	user := UserDataFromModel(model.User{Username: "alice", FullName: "Alice Liddell", Email: "alice@example.com"})
	reset := ResetDataFromModel(model.PasswordResetToken{
		ID:        "abc-123",
		ExpiresAt: time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC),
	}, "http://localhost:8080/reset-password")

	tests := []struct {
		name  string
		body  string
		user  *UserData
		reset *ResetData
		want  string
	}{
		{
			name:  "all variables",
			body:  "Hi {{user.full_name}} ({{user.username}}, {{user.email}}): {{reset.link}} until {{reset.expires_at}}",
			user:  &user,
			reset: &reset,
			want:  "Hi Alice Liddell (alice, alice@example.com): http://localhost:8080/reset-password?token=abc-123 until 2026-10-16T09:30:00Z",
		},
		{
			name: "nil reset renders empty",
			body: "[{{reset.token}}][{{user.username}}]",
			user: &user,
			want: "[][alice]",
		},
		{
			name: "unknown variables untouched",
			body: "{{incident.id}}",
			want: "{{incident.id}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RenderBody(tt.body, tt.user, tt.reset))
		})
	}
}

func TestRenderJSONBodyEscapesValues(t *testing.T) {
	t.Parallel()

	user := UserData{Username: "bob", FullName: `Bob "The Builder" \ Jr`}
	out := RenderJSONBody(`{"name":"{{user.full_name}}","user":"{{user.username}}"}`, &user, nil)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, user.FullName, decoded["name"])
	assert.Equal(t, "bob", decoded["user"])
}

func TestRenderHTMLBodyEscapesValues(t *testing.T) {
	t.Parallel()

	user := UserData{FullName: `<script>alert("x")</script>`}
	reset := ResetData{Link: "https://app.example.com/reset?a=1&token=abc"}
	out := RenderHTMLBody(`<p>Hi {{user.full_name}}</p><a href="{{reset.link}}">reset</a>`, &user, &reset)

	assert.Equal(t, `<p>Hi &lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;</p><a href="https://app.example.com/reset?a=1&amp;token=abc">reset</a>`, out)
}

func TestResetLink(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://app.example.com/reset?lang=en&token=t1", ResetLink("https://app.example.com/reset?lang=en", "t1"))
	assert.Equal(t, "?token=t%2F1", ResetLink("", "t/1"))
}
