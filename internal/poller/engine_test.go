package poller

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/mailherald/mailherald/internal/config"
	apperrors "github.com/mailherald/mailherald/internal/errors"
	"github.com/mailherald/mailherald/internal/history"
	"github.com/mailherald/mailherald/internal/logging"
	"github.com/mailherald/mailherald/internal/metrics"
	"github.com/mailherald/mailherald/internal/summarize"
	"github.com/mailherald/mailherald/internal/userstore"
)

type fakeMailbox struct {
	mu       sync.Mutex
	unread   []*gmailapi.Message
	full     map[string]*gmailapi.Message
	marked   []string
	getErr   error
	listErr  error
	markErr  error
	lastMax  int64
	lastTime int64
}

func (m *fakeMailbox) ListUnreadAfter(_ context.Context, after, max int64) ([]*gmailapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTime = after
	m.lastMax = max
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.unread, nil
}

func (m *fakeMailbox) GetMessage(_ context.Context, id string) (*gmailapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	msg, ok := m.full[id]
	if !ok {
		return nil, fmt.Errorf("no such message %s", id)
	}
	return msg, nil
}

func (m *fakeMailbox) MarkRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.marked = append(m.marked, id)
	return nil
}

func (m *fakeMailbox) markedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.marked))
	copy(out, m.marked)
	return out
}

type fakeResolver struct {
	mailbox Mailbox
	err     error
}

func (r *fakeResolver) Resolve(context.Context, int64) (Mailbox, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.mailbox, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []string
	once    map[string]int
	sendErr error
}

func (n *fakeNotifier) SendMarkdown(_ int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, text)
	return nil
}

func (n *fakeNotifier) SendOnce(key string, chatID int64, text string) error {
	n.mu.Lock()
	if n.once == nil {
		n.once = make(map[string]int)
	}
	n.once[key]++
	repeat := n.once[key] > 1
	n.mu.Unlock()
	if repeat {
		return nil
	}
	return n.SendMarkdown(chatID, text)
}

func (n *fakeNotifier) sentTexts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	copy(out, n.sent)
	return out
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (s *fakeSummarizer) Summarize(context.Context, string, string, string) (string, error) {
	return s.summary, s.err
}

func fullMessage(id, from, subject, body string) *gmailapi.Message {
	return &gmailapi.Message{
		Id: id,
		Payload: &gmailapi.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "Subject", Value: subject},
			},
			Body: &gmailapi.MessagePartBody{
				Data: base64.URLEncoding.EncodeToString([]byte(body)),
			},
		},
	}
}

func testEngine(t *testing.T, resolver MailboxResolver, notifier Notifier, summarizer *fakeSummarizer) (*Engine, *userstore.Store, *history.Store) {
	t.Helper()
	users := userstore.NewStore(t.TempDir())
	histories := history.NewStore(t.TempDir())
	logger := logging.NewLogger(logging.WithOutput(os.Stderr), logging.WithLevel(logging.LevelError))
	cfg := config.PollerConfig{Interval: time.Hour, MaxResults: 10, Timeout: 5 * time.Second}

	var sum summarize.Summarizer
	if summarizer != nil {
		sum = summarizer
	}

	engine := NewEngine(users, histories, resolver, notifier, sum, metrics.NewMetrics("test"), logger, cfg)
	return engine, users, histories
}

func authorize(t *testing.T, users *userstore.Store, chatID int64, authorizedAt int64) {
	t.Helper()
	require.NoError(t, users.SaveCredential(chatID, &userstore.Credential{AccessToken: "tok"}))
	require.NoError(t, users.SaveMeta(chatID, &userstore.Meta{AuthorizedAt: authorizedAt}))
}

func TestPollSkipsHistoryAndNotifiesNew(t *testing.T) {
	mailbox := &fakeMailbox{
		unread: []*gmailapi.Message{{Id: "m1"}, {Id: "m2"}},
		full: map[string]*gmailapi.Message{
			"m1": fullMessage("m1", "a@x.com", "old", "old body"),
			"m2": fullMessage("m2", "b@x.com", "new", "new body"),
		},
	}
	notifier := &fakeNotifier{}
	engine, users, histories := testEngine(t, &fakeResolver{mailbox: mailbox}, notifier, nil)

	authorize(t, users, 42, 1700000000)
	require.NoError(t, histories.Save(42, map[string]bool{"m1": true}, ""))

	engine.poll(context.Background())
	engine.wg.Wait()

	sent := notifier.sentTexts()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "b@x.com")
	assert.Contains(t, sent[0], "new body")

	assert.Equal(t, []string{"m2"}, mailbox.markedIDs())
	assert.Equal(t, map[string]bool{"m1": true, "m2": true}, histories.Load(42, ""))
	assert.Equal(t, int64(1700000000), mailbox.lastTime)
	assert.Equal(t, int64(10), mailbox.lastMax)
}

func TestPollUsesSummaryWhenAvailable(t *testing.T) {
	mailbox := &fakeMailbox{
		unread: []*gmailapi.Message{{Id: "m1"}},
		full:   map[string]*gmailapi.Message{"m1": fullMessage("m1", "a@x.com", "subj", "long body")},
	}
	notifier := &fakeNotifier{}
	engine, users, _ := testEngine(t, &fakeResolver{mailbox: mailbox}, notifier, &fakeSummarizer{summary: "the gist"})
	authorize(t, users, 42, 0)

	engine.poll(context.Background())
	engine.wg.Wait()

	sent := notifier.sentTexts()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "the gist")
	assert.NotContains(t, sent[0], "long body")
}

func TestPollFallsBackWhenSummarizerFails(t *testing.T) {
	mailbox := &fakeMailbox{
		unread: []*gmailapi.Message{{Id: "m1"}},
		full:   map[string]*gmailapi.Message{"m1": fullMessage("m1", "a@x.com", "subj", "raw body")},
	}
	notifier := &fakeNotifier{}
	engine, users, _ := testEngine(t, &fakeResolver{mailbox: mailbox}, notifier, &fakeSummarizer{err: fmt.Errorf("model down")})
	authorize(t, users, 42, 0)

	engine.poll(context.Background())
	engine.wg.Wait()

	sent := notifier.sentTexts()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "📧 *New Email*")
	assert.Contains(t, sent[0], "raw body")
}

func TestFailedSendStaysOutOfHistory(t *testing.T) {
	mailbox := &fakeMailbox{
		unread: []*gmailapi.Message{{Id: "m1"}},
		full:   map[string]*gmailapi.Message{"m1": fullMessage("m1", "a@x.com", "subj", "body")},
	}
	notifier := &fakeNotifier{sendErr: fmt.Errorf("telegram down")}
	engine, users, histories := testEngine(t, &fakeResolver{mailbox: mailbox}, notifier, nil)
	authorize(t, users, 42, 0)

	engine.poll(context.Background())
	engine.wg.Wait()

	assert.Empty(t, histories.Load(42, ""))
	assert.Empty(t, mailbox.markedIDs())
}

func TestUnusableCredentialNotifiesOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	resolver := &fakeResolver{err: &apperrors.ErrCredentialUnusable{ChatID: 42, Reason: "expired"}}
	engine, users, _ := testEngine(t, resolver, notifier, nil)
	authorize(t, users, 42, 0)

	engine.poll(context.Background())
	engine.wg.Wait()
	engine.poll(context.Background())
	engine.wg.Wait()

	sent := notifier.sentTexts()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "expired")
}

func TestListErrorLeavesHistoryUntouched(t *testing.T) {
	mailbox := &fakeMailbox{listErr: fmt.Errorf("quota exceeded")}
	notifier := &fakeNotifier{}
	engine, users, histories := testEngine(t, &fakeResolver{mailbox: mailbox}, notifier, nil)
	authorize(t, users, 42, 0)
	require.NoError(t, histories.Save(42, map[string]bool{"m1": true}, ""))

	engine.poll(context.Background())
	engine.wg.Wait()

	assert.Empty(t, notifier.sentTexts())
	assert.Equal(t, map[string]bool{"m1": true}, histories.Load(42, ""))
}

func TestMarkReadFailureStillRecordsHistory(t *testing.T) {
	mailbox := &fakeMailbox{
		unread:  []*gmailapi.Message{{Id: "m1"}},
		full:    map[string]*gmailapi.Message{"m1": fullMessage("m1", "a@x.com", "subj", "body")},
		markErr: fmt.Errorf("modify denied"),
	}
	notifier := &fakeNotifier{}
	engine, users, histories := testEngine(t, &fakeResolver{mailbox: mailbox}, notifier, nil)
	authorize(t, users, 42, 0)

	engine.poll(context.Background())
	engine.wg.Wait()

	require.Len(t, notifier.sentTexts(), 1)
	assert.True(t, histories.Load(42, "")["m1"])
}

func TestStartStopLifecycle(t *testing.T) {
	engine, _, _ := testEngine(t, &fakeResolver{mailbox: &fakeMailbox{}}, &fakeNotifier{}, nil)

	require.NoError(t, engine.Start(context.Background()))
	assert.True(t, engine.IsRunning())
	assert.Error(t, engine.Start(context.Background()))

	require.NoError(t, engine.Stop())
	assert.False(t, engine.IsRunning())
	require.NoError(t, engine.Stop())
}
