package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nvandessel/usersim/internal/panel"
)

type recordingSink struct {
	got []panel.Notification
}

func (r *recordingSink) Notify(ctx context.Context, n panel.Notification) {
	r.got = append(r.got, n)
}

func TestMulti_FansOutAndSkipsNil(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMulti(a, nil, b)
	if len(m) != 2 {
		t.Fatalf("len(Multi) = %d, want 2", len(m))
	}

	n := panel.NotificationFor(5, nil, 0.2)
	m.Notify(context.Background(), n)

	for i, s := range []*recordingSink{a, b} {
		if len(s.got) != 1 || s.got[0] != n {
			t.Errorf("sink %d got %+v", i, s.got)
		}
	}
}

func TestLogSink(t *testing.T) {
	tests := []struct {
		name      string
		n         panel.Notification
		wantLevel string
	}{
		{"success at info", panel.NotificationFor(10, nil, 0.5), "level=INFO"},
		{"error at warn", panel.NotificationFor(3, errors.New("boom"), 0.5), "level=WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			NewLogSink(logger).Notify(context.Background(), tt.n)

			out := buf.String()
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("log = %q, want %s", out, tt.wantLevel)
			}
			if !strings.Contains(out, tt.n.Title) {
				t.Errorf("log = %q, want title %q", out, tt.n.Title)
			}
		})
	}
}

func TestDesktop_ShowsTitleAndDescription(t *testing.T) {
	var gotTitle, gotMessage string
	d := NewDesktop(nil)
	d.show = func(title, message string) error {
		gotTitle, gotMessage = title, message
		return nil
	}

	n := panel.NotificationFor(7, errors.New("quota exceeded"), 0)
	d.Notify(context.Background(), n)

	if gotTitle != "Simulation Error" {
		t.Errorf("title = %q", gotTitle)
	}
	if gotMessage != "Updated 7 active users. But got error: quota exceeded" {
		t.Errorf("message = %q", gotMessage)
	}
}

func TestDesktop_FailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	d := NewDesktop(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	d.show = func(string, string) error { return errors.New("no dbus") }

	d.Notify(context.Background(), panel.NotificationFor(1, nil, 1))

	if !strings.Contains(buf.String(), "no dbus") {
		t.Errorf("log = %q, want failure logged", buf.String())
	}
}
