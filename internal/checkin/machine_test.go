package checkin

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeadManSwitch/internal/model"
	"DeadManSwitch/pkg/errors"
)

const testKey = "dmsDB.json"

var testNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu       sync.Mutex
	docs     map[string][]byte
	saves    int
	loadErr  error
	saveErr  error
	failSave int // 第 n 次 Save 失败，0 表示不失败
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string][]byte{}}
}

func (s *fakeStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	doc, ok := s.docs[key]
	if !ok {
		return nil, errors.RecordNotFound
	}
	return doc, nil
}

func (s *fakeStore) Save(_ context.Context, key string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil && (s.failSave == 0 || s.failSave == s.saves) {
		return s.saveErr
	}
	s.docs[key] = append([]byte(nil), doc...)
	return nil
}

func (s *fakeStore) put(t *testing.T, rec model.CheckInRecord) {
	t.Helper()
	doc, err := model.EncodeRecord(rec)
	require.NoError(t, err)
	s.docs[testKey] = doc
}

func (s *fakeStore) get(t *testing.T) model.CheckInRecord {
	t.Helper()
	rec, err := model.DecodeRecord(s.docs[testKey])
	require.NoError(t, err)
	return rec
}

type fakeInbox struct {
	msg InboxMessage
	ok  bool
	err error
}

func (i *fakeInbox) FetchLatest(context.Context) (InboxMessage, bool, error) {
	return i.msg, i.ok, i.err
}

type fakeNotifier struct {
	reminders   []string
	chatIDs     []int64
	escalations []EscalationEmail
	reminderErr error
	emailErr    error
}

func (n *fakeNotifier) SendReminder(_ context.Context, chatID int64, text string) error {
	n.chatIDs = append(n.chatIDs, chatID)
	if n.reminderErr != nil {
		return n.reminderErr
	}
	n.reminders = append(n.reminders, text)
	return nil
}

func (n *fakeNotifier) SendEscalationEmail(_ context.Context, email EscalationEmail) error {
	if n.emailErr != nil {
		return n.emailErr
	}
	n.escalations = append(n.escalations, email)
	return nil
}

type fakeEvents struct {
	outcomes []Outcome
	err      error
}

func (e *fakeEvents) PublishCycleCompleted(_ context.Context, o Outcome) error {
	e.outcomes = append(e.outcomes, o)
	return e.err
}

func testOptions() Options {
	return Options{
		Key:          testKey,
		Threshold:    DefaultEscalationThreshold,
		ChatID:       4242,
		ReminderText: "Please check in",
		Escalation: EscalationEmail{
			Recipients: []string{"a@example.com", "b@example.com"},
			Subject:    "One last time...",
			PlainBody:  "plain",
			HTMLBody:   "<p>html</p>",
		},
	}
}

func newTestMachine(store StateStore, inbox MessageInbox, n Notifier, opts ...Option) *Machine {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewMachine(store, inbox, n, testOptions(), opts...)
}

func record(days int, status model.CheckInStatus, emailSent bool) model.CheckInRecord {
	return model.CheckInRecord{
		Source:      model.RecordSource,
		LastMessage: "",
		Status:      status,
		EmailSent:   emailSent,
		LastChecked: testNow.Add(-24 * time.Hour),
		DaysElapsed: days,
	}
}

func TestDecide(t *testing.T) {
	const threshold = 84
	tests := []struct {
		name       string
		rec        model.CheckInRecord
		hasMessage bool
		expected   Action
	}{
		{"escalate at threshold", record(84, model.StatusNotCheckedIn, false), false, ActionEscalate},
		{"escalate wins over message", record(84, model.StatusNotCheckedIn, false), true, ActionEscalate},
		{"reset after escalation", record(85, model.StatusNotCheckedIn, true), false, ActionReset},
		{"reset at threshold when checked in", record(84, model.StatusCheckedIn, false), false, ActionReset},
		{"reset at threshold when email already sent", record(84, model.StatusNotCheckedIn, true), true, ActionReset},
		{"reset beyond threshold", record(300, model.StatusCheckedIn, true), true, ActionReset},
		{"record check-in", record(10, model.StatusNotCheckedIn, false), true, ActionRecordCheckIn},
		{"record check-in just before threshold", record(83, model.StatusNotCheckedIn, false), true, ActionRecordCheckIn},
		{"tick without message", record(10, model.StatusNotCheckedIn, false), false, ActionTick},
		{"tick when already checked in", record(10, model.StatusCheckedIn, false), true, ActionTick},
		{"tick on template", record(1, model.StatusNotCheckedIn, false), false, ActionTick},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, Decide(test.rec, test.hasMessage, threshold))
		})
	}
}

func TestRunCycleTickSendsReminderAndIncrements(t *testing.T) {
	for _, days := range []int{1, 2, 40, 83} {
		store := newFakeStore()
		store.put(t, record(days, model.StatusNotCheckedIn, false))
		n := &fakeNotifier{}

		out, err := newTestMachine(store, &fakeInbox{}, n).RunCycle(context.Background())
		require.NoError(t, err)

		assert.Equal(t, ActionTick, out.Action)
		assert.True(t, out.ReminderSent)
		assert.Equal(t, []string{"Please check in"}, n.reminders)
		assert.Equal(t, []int64{4242}, n.chatIDs)
		assert.Empty(t, n.escalations)

		got := store.get(t)
		assert.Equal(t, days+1, got.DaysElapsed)
		assert.Equal(t, model.StatusNotCheckedIn, got.Status)
		assert.True(t, got.LastChecked.Equal(testNow))
	}
}

func TestRunCycleEscalatesOnce(t *testing.T) {
	store := newFakeStore()
	store.put(t, record(DefaultEscalationThreshold, model.StatusNotCheckedIn, false))
	n := &fakeNotifier{}
	m := newTestMachine(store, &fakeInbox{}, n)

	out, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, out.Action)

	require.Len(t, n.escalations, 1)
	assert.Equal(t, testOptions().Escalation, n.escalations[0])
	assert.Empty(t, n.reminders)

	got := store.get(t)
	assert.True(t, got.EmailSent)
	assert.Equal(t, DefaultEscalationThreshold+1, got.DaysElapsed)
	assert.True(t, got.LastChecked.Equal(testNow))

	// 下一个周期进入重置，而不是再次发送
	out, err = m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionReset, out.Action)
	assert.Len(t, n.escalations, 1)
	assert.Equal(t, model.NewTemplate(testNow), store.get(t))
}

func TestRunCycleResetsToTemplateAtOrBeyondThreshold(t *testing.T) {
	tests := []model.CheckInRecord{
		record(DefaultEscalationThreshold, model.StatusCheckedIn, false),
		record(DefaultEscalationThreshold, model.StatusNotCheckedIn, true),
		record(DefaultEscalationThreshold+1, model.StatusNotCheckedIn, true),
		record(DefaultEscalationThreshold+7, model.StatusCheckedIn, true),
	}

	for _, rec := range tests {
		rec.LastMessage = "old"
		store := newFakeStore()
		store.put(t, rec)
		n := &fakeNotifier{}

		out, err := newTestMachine(store, &fakeInbox{msg: InboxMessage{Text: "hi"}, ok: true}, n).RunCycle(context.Background())
		require.NoError(t, err)

		assert.Equal(t, ActionReset, out.Action)
		assert.Equal(t, model.NewTemplate(testNow), store.get(t))
		assert.Empty(t, n.reminders)
		assert.Empty(t, n.escalations)
	}
}

func TestRunCycleRecordsCheckIn(t *testing.T) {
	store := newFakeStore()
	store.put(t, record(20, model.StatusNotCheckedIn, false))
	n := &fakeNotifier{}
	inbox := &fakeInbox{msg: InboxMessage{Text: "still here", SentAt: testNow.Add(-time.Hour)}, ok: true}

	out, err := newTestMachine(store, inbox, n).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ActionRecordCheckIn, out.Action)
	assert.False(t, out.ReminderSent)
	assert.Empty(t, n.reminders)

	got := store.get(t)
	assert.Equal(t, model.StatusCheckedIn, got.Status)
	assert.Equal(t, "still here", got.LastMessage)
	assert.Equal(t, 21, got.DaysElapsed)
}

func TestRunCycleCheckedInIsQuiet(t *testing.T) {
	store := newFakeStore()
	rec := record(30, model.StatusCheckedIn, false)
	rec.LastMessage = "ok"
	store.put(t, rec)
	n := &fakeNotifier{}

	out, err := newTestMachine(store, &fakeInbox{}, n).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ActionTick, out.Action)
	assert.Empty(t, n.reminders)
	assert.Empty(t, n.chatIDs)
	assert.Empty(t, n.escalations)

	got := store.get(t)
	assert.Equal(t, model.StatusCheckedIn, got.Status)
	assert.Equal(t, "ok", got.LastMessage)
	assert.Equal(t, 31, got.DaysElapsed)
}

func TestRunCycleFirstInvocationCreatesRecord(t *testing.T) {
	store := newFakeStore()
	n := &fakeNotifier{}

	out, err := newTestMachine(store, &fakeInbox{}, n).RunCycle(context.Background())
	require.NoError(t, err)

	assert.True(t, out.NewRecord)
	assert.Equal(t, ActionTick, out.Action)
	assert.Len(t, n.reminders, 1)
	assert.Equal(t, 2, store.saves, "template is written before the cycle and again after it")

	got := store.get(t)
	assert.Equal(t, 1, got.DaysElapsed, "new record must not be incremented")
	assert.Equal(t, model.StatusNotCheckedIn, got.Status)
	assert.False(t, got.EmailSent)
}

func TestRunCycleFirstInvocationWithMessage(t *testing.T) {
	store := newFakeStore()
	inbox := &fakeInbox{msg: InboxMessage{Text: "hello"}, ok: true}

	out, err := newTestMachine(store, inbox, &fakeNotifier{}).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ActionRecordCheckIn, out.Action)
	got := store.get(t)
	assert.Equal(t, model.StatusCheckedIn, got.Status)
	assert.Equal(t, 2, got.DaysElapsed)
}

func TestRunCycleInboxFailureIsEmpty(t *testing.T) {
	store := newFakeStore()
	store.put(t, record(5, model.StatusNotCheckedIn, false))
	n := &fakeNotifier{}
	inbox := &fakeInbox{msg: InboxMessage{Text: "ignored"}, ok: true, err: stderrors.New("timeout")}

	out, err := newTestMachine(store, inbox, n).RunCycle(context.Background())
	require.NoError(t, err)

	assert.True(t, out.InboxUnavailable)
	assert.Equal(t, ActionTick, out.Action)
	assert.Len(t, n.reminders, 1)
	assert.Equal(t, 6, store.get(t).DaysElapsed)
}

func TestRunCycleLoadFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.loadErr = stderrors.New("network down")
	n := &fakeNotifier{}

	out, err := newTestMachine(store, &fakeInbox{}, n).RunCycle(context.Background())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, stderrors.Is(err, errors.StoreFailed))
	assert.Zero(t, store.saves)
	assert.Empty(t, n.reminders)
}

func TestRunCycleCorruptRecordAborts(t *testing.T) {
	store := newFakeStore()
	store.docs[testKey] = []byte(`{"status":"unknown"}`)

	_, err := newTestMachine(store, &fakeInbox{}, &fakeNotifier{}).RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.RecordCorrupt))
	assert.Zero(t, store.saves)
}

func TestRunCycleSaveFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.put(t, record(5, model.StatusNotCheckedIn, false))
	store.saveErr = stderrors.New("quota exceeded")
	events := &fakeEvents{}

	_, err := newTestMachine(store, &fakeInbox{}, &fakeNotifier{}, WithEvents(events)).RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.StoreFailed))
	assert.Equal(t, 5, store.get(t).DaysElapsed)
	assert.Empty(t, events.outcomes)
}

func TestRunCycleEscalationFailureDoesNotPersist(t *testing.T) {
	store := newFakeStore()
	store.put(t, record(DefaultEscalationThreshold, model.StatusNotCheckedIn, false))
	n := &fakeNotifier{emailErr: stderrors.New("smtp: auth failed")}
	m := newTestMachine(store, &fakeInbox{}, n)

	_, err := m.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.EscalationFailed))
	assert.Zero(t, store.saves)

	got := store.get(t)
	assert.False(t, got.EmailSent)
	assert.Equal(t, DefaultEscalationThreshold, got.DaysElapsed)

	// 下一次触发重新尝试升级
	n.emailErr = nil
	out, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, out.Action)
	assert.Len(t, n.escalations, 1)
}

func TestRunCycleReminderFailureStillTicks(t *testing.T) {
	store := newFakeStore()
	store.put(t, record(9, model.StatusNotCheckedIn, false))
	n := &fakeNotifier{reminderErr: stderrors.New("telegram: 502")}

	out, err := newTestMachine(store, &fakeInbox{}, n).RunCycle(context.Background())
	require.NoError(t, err)

	assert.False(t, out.ReminderSent)
	assert.Error(t, out.ReminderErr)
	assert.Equal(t, 10, store.get(t).DaysElapsed)
}

func TestRunCycleFullPeriodWithoutCheckIn(t *testing.T) {
	const threshold = 4
	store := newFakeStore()
	n := &fakeNotifier{}
	opts := testOptions()
	opts.Threshold = threshold
	m := NewMachine(store, &fakeInbox{}, n, opts, WithClock(func() time.Time { return testNow }))

	var actions []Action
	for i := 0; i < 6; i++ {
		out, err := m.RunCycle(context.Background())
		require.NoError(t, err)
		actions = append(actions, out.Action)
	}

	assert.Equal(t, []Action{
		ActionTick,     // 新记录 days=1
		ActionTick,     // 2
		ActionTick,     // 3
		ActionTick,     // 4
		ActionEscalate, // 5
		ActionReset,    // 1
	}, actions)
	assert.Len(t, n.escalations, 1)
	assert.Len(t, n.reminders, 4)
	assert.Equal(t, 1, store.get(t).DaysElapsed)
}

func TestRunCycleRespectsLock(t *testing.T) {
	store := newFakeStore()
	locker := NewLocalLocker()
	token, ok, err := locker.TryLock(context.Background(), "cycle:"+testKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	n := &fakeNotifier{}
	_, err = newTestMachine(store, &fakeInbox{}, n, WithLocker(locker)).RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.CycleInProgress))
	assert.Zero(t, store.saves)
	assert.Empty(t, n.reminders)

	require.NoError(t, locker.Unlock(context.Background(), "cycle:"+testKey, token))
	_, err = newTestMachine(store, &fakeInbox{}, n, WithLocker(locker)).RunCycle(context.Background())
	require.NoError(t, err)

	_, ok, _ = locker.TryLock(context.Background(), "cycle:"+testKey, time.Minute)
	assert.True(t, ok, "lock is released after the cycle")
}

func TestRunCyclePublishesEvent(t *testing.T) {
	store := newFakeStore()
	store.put(t, record(3, model.StatusNotCheckedIn, false))
	events := &fakeEvents{err: stderrors.New("broker unavailable")}
	ids := WithIDGenerator(func() (int64, error) { return 77, nil })

	out, err := newTestMachine(store, &fakeInbox{}, &fakeNotifier{}, WithEvents(events), ids).RunCycle(context.Background())
	require.NoError(t, err, "publish failures are best-effort")

	require.Len(t, events.outcomes, 1)
	assert.Equal(t, int64(77), out.CycleID)
	assert.Equal(t, int64(77), events.outcomes[0].CycleID)
	assert.Equal(t, 4, events.outcomes[0].Record.DaysElapsed)
}

func TestCurrentAndReset(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, &fakeInbox{}, &fakeNotifier{})

	_, err := m.Current(context.Background())
	assert.True(t, stderrors.Is(err, errors.RecordNotFound))

	store.put(t, record(50, model.StatusCheckedIn, false))
	rec, err := m.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, rec.DaysElapsed)

	rec, err = m.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.NewTemplate(testNow), rec)
	assert.Equal(t, rec, store.get(t))
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "escalate", ActionEscalate.String())
	assert.Equal(t, "record_check_in", ActionRecordCheckIn.String())
	assert.Equal(t, "reset", ActionReset.String())
	assert.Equal(t, "tick", ActionTick.String())
	assert.Equal(t, "unknown", Action(9).String())
}
