package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "/chat", cfg.ChatAPI.ChatPath)
	assert.Equal(t, 10*time.Second, cfg.ChatAPI.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Widget.PopupDelay)
	assert.Equal(t, 400*time.Millisecond, cfg.Widget.TypingDelay)
	assert.Equal(t, 2*time.Second, cfg.Widget.ReplyDelay)
	assert.Equal(t, time.Hour, cfg.Admin.TokenTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CHAT_API_URL", "https://api.roofs.example/")
	t.Setenv("CHAT_API_CHAT_PATH", "")
	t.Setenv("POPUP_DELAY", "1500")
	t.Setenv("REPLY_DELAY", "1s")
	t.Setenv("TYPING_DELAY", "garbage")
	t.Setenv("ALLOWED_ORIGINS", "https://roofs.example, https://www.roofs.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "https://api.roofs.example", cfg.ChatAPI.URL)
	assert.Equal(t, "", cfg.ChatAPI.ChatPath)
	assert.Equal(t, 1500*time.Millisecond, cfg.Widget.PopupDelay)
	assert.Equal(t, time.Second, cfg.Widget.ReplyDelay)
	assert.Equal(t, 400*time.Millisecond, cfg.Widget.TypingDelay, "unparsable values fall back")
	assert.Equal(t, []string{"https://roofs.example", "https://www.roofs.example"}, cfg.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"empty port", map[string]string{"PORT": ""}},
		{"relative api url", map[string]string{"CHAT_API_URL": "/api"}},
		{"empty admin password", map[string]string{"ADMIN_PASSWORD": ""}},
		{"zero token ttl", map[string]string{"TOKEN_TTL": "0"}},
		{"no origins", map[string]string{"ALLOWED_ORIGINS": " , "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "")
	assert.True(t, (&Config{FrontendURL: "http://localhost:5173"}).IsDevelopment())
	assert.False(t, (&Config{FrontendURL: "https://roofs.example"}).IsDevelopment())

	t.Setenv("APP_ENV", "development")
	assert.True(t, (&Config{FrontendURL: "https://roofs.example"}).IsDevelopment())
}

func TestWidgetOrigin(t *testing.T) {
	assert.Equal(t, "*", (&Config{}).WidgetOrigin())
	assert.Equal(t, "https://roofs.example", (&Config{FrontendURL: "https://roofs.example/chats"}).WidgetOrigin())
}
