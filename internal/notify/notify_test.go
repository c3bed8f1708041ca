package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehiclereport/internal/domain"
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newMockSlack(t *testing.T, ok bool) (*Slack, *[]string) {
	t.Helper()
	var posted []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/")
		switch path {
		case "chat.postMessage":
			_ = r.ParseForm()
			posted = append(posted, r.Form.Get("channel")+"|"+r.Form.Get("text"))
			if !ok {
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C_OPS", "ts": "1.23"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	t.Cleanup(server.Close)
	return NewSlack("xoxb-test", "C_OPS", quiet(), WithAPIURL(server.URL+"/api/")), &posted
}

func TestSlackNotify(t *testing.T) {
	s, posted := newMockSlack(t, true)
	require.NoError(t, s.Notify(context.Background(), "stats populated"))
	assert.Equal(t, []string{"C_OPS|stats populated"}, *posted)
}

func TestSlackNotifyError(t *testing.T) {
	s, _ := newMockSlack(t, false)
	err := s.Notify(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.Notify(context.Background(), "ignored"))
}

func TestReportFailure(t *testing.T) {
	uid := int64(9)
	r := domain.Report{UUID: "r-1", Tier: domain.TierPremium, Year: 2016, Make: "Honda", Model: "CR-V", Mileage: 65000, UserID: &uid}

	msg := ReportFailure(r, errors.New("generated analysis is malformed"), true)
	assert.Equal(t, ":warning: premium report r-1 failed for 2016 Honda CR-V (mileage 65000), user 9\n"+
		"Error: generated analysis is malformed\nCredits were refunded.", msg)

	r.UserID = nil
	assert.Equal(t, ":warning: premium report r-1 failed for 2016 Honda CR-V (mileage 65000)", ReportFailure(r, nil, false))
}
