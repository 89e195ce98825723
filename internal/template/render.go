// Package template renders password reset notification bodies.
//
// Supported variables:
//
//	{{user.username}}, {{user.full_name}}, {{user.email}}
//
//	{{reset.token}}, {{reset.link}}, {{reset.expires_at}}
package template

import (
	"encoding/json"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/infinity-finance/backend/internal/model"
)

// UserData - user fields available to templates
type UserData struct {
	Username string
	FullName string
	Email    string
}

// ResetData - reset token fields available to templates
type ResetData struct {
	Token     string
	Link      string
	ExpiresAt time.Time
}

func UserDataFromModel(u model.User) UserData {
	return UserData{
		Username: u.Username,
		FullName: u.FullName,
		Email:    u.Email,
	}
}

// ResetDataFromModel builds the reset link by appending ?token=<id> to baseURL.
func ResetDataFromModel(t model.PasswordResetToken, baseURL string) ResetData {
	return ResetData{
		Token:     t.ID,
		Link:      ResetLink(baseURL, t.ID),
		ExpiresAt: t.ExpiresAt,
	}
}

func ResetLink(baseURL, tokenID string) string {
	u, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		return baseURL + "?token=" + url.QueryEscape(tokenID)
	}
	q := u.Query()
	q.Set("token", tokenID)
	u.RawQuery = q.Encode()
	return u.String()
}

// RenderBody - replaces template variables with their values.
//
// Variables of a nil argument render as empty strings.
func RenderBody(body string, user *UserData, reset *ResetData) string {
	return render(body, user, reset, func(s string) string { return s })
}

// RenderJSONBody is RenderBody with every value escaped for use inside a JSON
// string literal.
func RenderJSONBody(body string, user *UserData, reset *ResetData) string {
	return render(body, user, reset, jsonEscape)
}

// RenderHTMLBody is RenderBody with every value HTML-escaped, for bodies sent
// as text/html.
func RenderHTMLBody(body string, user *UserData, reset *ResetData) string {
	return render(body, user, reset, html.EscapeString)
}

func render(body string, user *UserData, reset *ResetData, escape func(string) string) string {
	pairs := make([]string, 0, 12)

	if user != nil {
		pairs = append(pairs,
			"{{user.username}}", escape(user.Username),
			"{{user.full_name}}", escape(user.FullName),
			"{{user.email}}", escape(user.Email),
		)
	} else {
		pairs = append(pairs,
			"{{user.username}}", "",
			"{{user.full_name}}", "",
			"{{user.email}}", "",
		)
	}

	if reset != nil {
		expiresAt := ""
		if !reset.ExpiresAt.IsZero() {
			expiresAt = reset.ExpiresAt.UTC().Format(time.RFC3339)
		}
		pairs = append(pairs,
			"{{reset.token}}", escape(reset.Token),
			"{{reset.link}}", escape(reset.Link),
			"{{reset.expires_at}}", expiresAt,
		)
	} else {
		pairs = append(pairs,
			"{{reset.token}}", "",
			"{{reset.link}}", "",
			"{{reset.expires_at}}", "",
		)
	}

	return strings.NewReplacer(pairs...).Replace(body)
}

func jsonEscape(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(b[1 : len(b)-1])
}
