package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeadManSwitch/config"
	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/internal/model"
	"DeadManSwitch/pkg/errors"
)

type botServer struct {
	mu      sync.Mutex
	updates string
	sent    []string
}

func (b *botServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"dms","username":"dms_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/getUpdates"):
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, b.updates)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		b.sent = append(b.sent, r.FormValue("text"))
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":1700000000,"chat":{"id":42,"type":"private"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestService(t *testing.T, bot http.Handler, mutate ...func(*config.Config)) *CheckInService {
	t.Helper()
	srv := httptest.NewServer(bot)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		StoreDriver:          config.StoreDriverMemory,
		StoreKey:             "dmsDB.json",
		LockDriver:           config.LockDriverLocal,
		LockTTL:              time.Minute,
		CycleTimeout:         10 * time.Second,
		TelegramToken:        "test-token",
		TelegramChatID:       42,
		TelegramReadTimeout:  5,
		TelegramAPIEndpoint:  srv.URL + "/bot%s/%s",
		ReminderText:         "Please check in",
		SMTPServer:           "smtp.invalid",
		SMTPPort:             465,
		EmailUsername:        "me@example.com",
		EmailPassword:        "secret",
		EscalationRecipients: []string{"a@example.com"},
		EscalationSubject:    "One last time...",
		EscalationThreshold:  84,
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	svc, err := NewCheckInService(context.Background(), cfg)
	require.NoError(t, err)
	return svc
}

func TestServiceFirstCycleRemindsAndCreatesRecord(t *testing.T) {
	bot := &botServer{updates: "[]"}
	svc := newTestService(t, bot)
	ctx := context.Background()

	_, err := svc.Current(ctx)
	assert.ErrorIs(t, err, errors.RecordNotFound)

	outcome, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkin.ActionTick, outcome.Action)
	assert.True(t, outcome.NewRecord)
	assert.True(t, outcome.ReminderSent)
	assert.Equal(t, []string{"Please check in"}, bot.sent)

	rec, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.DaysElapsed)
	assert.Equal(t, model.StatusNotCheckedIn, rec.Status)
	assert.Equal(t, 84, svc.Threshold())
}

func TestServiceRecordsCheckIn(t *testing.T) {
	bot := &botServer{updates: `[{"update_id":1,"message":{"message_id":1,"date":1700000000,"chat":{"id":42,"type":"private"},"from":{"id":42,"is_bot":false,"first_name":"u"},"text":"still here"}}]`}
	svc := newTestService(t, bot)
	ctx := context.Background()

	_, err := svc.RunCycle(ctx)
	require.NoError(t, err)

	rec, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedIn, rec.Status)
	assert.Equal(t, "still here", rec.LastMessage)
	assert.Empty(t, bot.sent)

	rec, err = svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNotCheckedIn, rec.Status)
	assert.Equal(t, 1, rec.DaysElapsed)
}

func TestServiceCycleRunsWhileTelegramIsDown(t *testing.T) {
	down := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "bad gateway")
	})

	// 已关闭端口上的 SMTP 立即拒绝连接
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	smtpPort := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	svc := newTestService(t, down, func(cfg *config.Config) {
		cfg.EscalationThreshold = 2
		cfg.SMTPServer = "127.0.0.1"
		cfg.SMTPPort = smtpPort
	})
	ctx := context.Background()

	outcome, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkin.ActionTick, outcome.Action)
	assert.True(t, outcome.NewRecord)
	assert.True(t, outcome.InboxUnavailable)
	assert.False(t, outcome.ReminderSent)
	assert.Error(t, outcome.ReminderErr)

	outcome, err = svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkin.ActionTick, outcome.Action)
	assert.True(t, outcome.InboxUnavailable)
	assert.Equal(t, 2, outcome.Record.DaysElapsed)

	// 到达阈值后照常尝试升级，失败来自邮件而不是收件箱
	_, err = svc.RunCycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.EscalationFailed)

	rec, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.DaysElapsed)
	assert.False(t, rec.EmailSent)
}

func TestNewStateStoreRejectsUnknownDriver(t *testing.T) {
	_, err := newStateStore(context.Background(), &config.Config{StoreDriver: "dropbox"})
	assert.Error(t, err)

	_, err = newLocker(&config.Config{LockDriver: "zookeeper"})
	assert.Error(t, err)
}

func TestNewSMSConfigNormalizesPhones(t *testing.T) {
	cfg := &config.Config{
		SMSEnabled:       true,
		SMSProvider:      "mock",
		SMSSignName:      "DMS",
		SMSTemplateCode:  "SMS_0001",
		EscalationPhones: []string{"+86 138 0000 0000", "13900000000"},
	}

	smsCfg, err := newSMSConfig(cfg)
	require.NoError(t, err)
	assert.NotNil(t, smsCfg.Client)
	assert.Equal(t, []string{"13800000000", "13900000000"}, smsCfg.Phones)

	cfg.EscalationPhones = []string{"+1 415 555 0100"}
	_, err = newSMSConfig(cfg)
	assert.ErrorContains(t, err, "ESCALATION_PHONES")

	smsCfg, err = newSMSConfig(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, smsCfg.Client)
}
