package clipboard

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/nudge/internal/models"
)

type sink struct{ events []models.BehaviorEvent }

func (s *sink) Append(e models.BehaviorEvent) { s.events = append(s.events, e) }

func scripted(outputs ...string) runner {
	return func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		out := outputs[0]
		if len(outputs) > 1 {
			outputs = outputs[1:]
		}
		if out == "<err>" {
			return nil, errors.New("exit status 1")
		}
		return []byte(out), nil
	}
}

func TestPollOnceEmitsOnChange(t *testing.T) {
	out := &sink{}
	p := newPoller(0, out, func() string { return "firefox" },
		scripted("old", "old", "<err>", "AAPL 182.5", "AAPL 182.5", "  "),
		[]string{"xclip", "-o"})

	for i := 0; i < 6; i++ {
		p.pollOnce(context.Background())
	}

	require.Len(t, out.events, 1)
	assert.Equal(t, models.KindClipboard, out.events[0].Kind)
	assert.Equal(t, "AAPL 182.5", out.events[0].Detail)
	assert.Equal(t, "firefox", out.events[0].Context)
}

func TestPollOnceFlattensAndTruncates(t *testing.T) {
	out := &sink{}
	long := strings.Repeat("word\n", 100)
	p := newPoller(0, out, nil, scripted("", long), []string{"wl-paste"})

	p.pollOnce(context.Background())
	p.pollOnce(context.Background())

	require.Len(t, out.events, 1)
	assert.NotContains(t, out.events[0].Detail, "\n")
	assert.LessOrEqual(t, len([]rune(out.events[0].Detail)), MaxDetail)
	assert.Empty(t, out.events[0].Context)
}

func TestPickCommand(t *testing.T) {
	all := func(string) (string, error) { return "/usr/bin/x", nil }
	onlyXclip := func(name string) (string, error) {
		if name == "xclip" {
			return "/usr/bin/xclip", nil
		}
		return "", errors.New("not found")
	}
	none := func(string) (string, error) { return "", errors.New("not found") }

	assert.Equal(t, "wl-paste", pickCommand(true, all)[0])
	assert.Equal(t, "xclip", pickCommand(false, all)[0])
	assert.Equal(t, "xclip", pickCommand(true, onlyXclip)[0])
	assert.Nil(t, pickCommand(false, none))
}
