package notify

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	smtpmock "github.com/mocktools/go-smtp-mock/v2"
)

func TestEmail_Send(t *testing.T) {
	server := smtpmock.New(smtpmock.ConfigurationAttr{
		HostAddress: "127.0.0.1",
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start smtp mock: %v", err)
	}
	defer func() { _ = server.Stop() }()

	email, err := NewEmail(EmailConfig{
		Addr: fmt.Sprintf("127.0.0.1:%d", server.PortNumber()),
		From: "Warden <warden@example.com>",
		To:   []string{"ops@example.com"},
	})
	if err != nil {
		t.Fatalf("NewEmail failed: %v", err)
	}

	err = email.Send(context.Background(), Message{
		Recipients: []int64{42},
		Subject:    "Panel deactivated",
		Text:       "Panel: reseller1",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var msgs []smtpmock.Message
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs = server.Messages(); len(msgs) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}

	body := msgs[0].MsgRequest()
	if !strings.Contains(body, "Subject: Panel deactivated") {
		t.Errorf("Expected subject header in message, got %q", body)
	}
	if !strings.Contains(body, "Panel: reseller1") {
		t.Errorf("Expected body text in message, got %q", body)
	}
}

func TestNewEmail_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  EmailConfig
	}{
		{"missing addr", EmailConfig{From: "a@b.c", To: []string{"d@e.f"}}},
		{"bad from", EmailConfig{Addr: "x:25", From: "nope", To: []string{"d@e.f"}}},
		{"no recipients", EmailConfig{Addr: "x:25", From: "a@b.c"}},
		{"bad recipient", EmailConfig{Addr: "x:25", From: "a@b.c", To: []string{"nope"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEmail(tt.cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
