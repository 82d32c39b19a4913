package middleware

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/mother-bot/internal/contextkeys"
	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/internal/onboarding"
	"github.com/BatmanBruc/mother-bot/internal/utils"
	"github.com/BatmanBruc/mother-bot/types"
)

type fakeResolver struct {
	codes  []string
	status types.UserStatus
	err    error
}

func (f *fakeResolver) EnsureUser(_ context.Context, p onboarding.Profile, code string) (*types.User, bool, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, false, f.err
	}
	status := f.status
	if status == "" {
		status = types.UserActive
	}
	return &types.User{UserID: p.UserID, LanguageCode: p.LanguageCode, Status: status}, true, nil
}

type fakeStatuses struct {
	set map[int64]types.UserStatus
}

func (f *fakeStatuses) SetUserStatus(_ context.Context, id int64, s types.UserStatus) error {
	f.set[id] = s
	return nil
}

type fakeMembers struct {
	member bool
	err    error
	calls  int
}

func (f *fakeMembers) CheckMembership(context.Context, int64, string) (bool, error) {
	f.calls++
	return f.member, f.err
}

type fakeOut struct {
	texts    []string
	answered []string
}

func (f *fakeOut) SendMessage(_ context.Context, p *bot.SendMessageParams) error {
	f.texts = append(f.texts, p.Text)
	return nil
}

func (f *fakeOut) AnswerCallback(_ context.Context, id, _ string) {
	f.answered = append(f.answered, id)
}

type captured struct {
	ctx    context.Context
	called int
}

func (c *captured) handler(ctx context.Context, _ *bot.Bot, _ *models.Update) {
	c.ctx = ctx
	c.called++
}

func quiet() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func textUpdate(text string) *models.Update {
	return &models.Update{Message: &models.Message{
		Text: text,
		Chat: models.Chat{ID: 42},
		From: &models.User{ID: 42, FirstName: "Ann", LanguageCode: "en"},
	}}
}

func callbackUpdate(data string) *models.Update {
	return &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:      "cb1",
		Data:    data,
		From:    models.User{ID: 42, LanguageCode: "ru"},
		Message: models.MaybeInaccessibleMessage{Message: &models.Message{Chat: models.Chat{ID: 42}}},
	}}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want contextkeys.Command
		ok   bool
	}{
		{"/start", contextkeys.Command{Name: "start"}, true},
		{"/start ABCD1234", contextkeys.Command{Name: "start", Args: "ABCD1234"}, true},
		{"/Users@MotherBot 2", contextkeys.Command{Name: "users", Args: "2"}, true},
		{"  /approve   shop-1 ", contextkeys.Command{Name: "approve", Args: "shop-1"}, true},
		{"/", contextkeys.Command{}, false},
		{"hello /start", contextkeys.Command{}, false},
		{"/@bot", contextkeys.Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalyzeMessage(t *testing.T) {
	m := New(&fakeResolver{}, nil, nil, "", &fakeOut{}, quiet())
	c := &captured{}
	chain := m.AnalyzeMessageMiddleware(c.handler)

	chain(context.Background(), nil, textUpdate("My Shop"))
	mt, _ := contextkeys.GetMessageType(c.ctx)
	assert.Equal(t, contextkeys.MessageTypeText, mt)

	photo := textUpdate("")
	photo.Message.Photo = []models.PhotoSize{
		{FileID: "small", FileSize: 100, Width: 90, Height: 90},
		{FileID: "large", FileSize: 9000, Width: 800, Height: 800},
		{FileID: "medium", FileSize: 2000, Width: 320, Height: 320},
	}
	chain(context.Background(), nil, photo)
	mt, _ = contextkeys.GetMessageType(c.ctx)
	assert.Equal(t, contextkeys.MessageTypePhoto, mt)
	ref, ok := contextkeys.GetFileRef(c.ctx)
	require.True(t, ok)
	assert.Equal(t, "large", ref)

	doc := textUpdate("")
	doc.Message.Document = &models.Document{FileID: "scan", MimeType: "image/png"}
	chain(context.Background(), nil, doc)
	mt, _ = contextkeys.GetMessageType(c.ctx)
	assert.Equal(t, contextkeys.MessageTypePhoto, mt)
	ref, _ = contextkeys.GetFileRef(c.ctx)
	fileID, isDocument := types.ParseReceipt(ref)
	assert.True(t, isDocument)
	assert.Equal(t, "scan", fileID)

	contact := textUpdate("")
	contact.Message.Contact = &models.Contact{PhoneNumber: "998901234567"}
	chain(context.Background(), nil, contact)
	mt, _ = contextkeys.GetMessageType(c.ctx)
	assert.Equal(t, contextkeys.MessageTypeContact, mt)

	chain(context.Background(), nil, textUpdate("/start REF1"))
	cmd, ok := contextkeys.GetCommand(c.ctx)
	require.True(t, ok)
	assert.Equal(t, "REF1", cmd.Args)
}

func TestAnalyzeMessage_DropsUnknownCallbacks(t *testing.T) {
	out := &fakeOut{}
	m := New(&fakeResolver{}, nil, nil, "", out, quiet())
	c := &captured{}
	chain := m.AnalyzeMessageMiddleware(c.handler)

	chain(context.Background(), nil, callbackUpdate("menu_batch"))
	assert.Equal(t, 0, c.called)
	assert.Equal(t, []string{"cb1"}, out.answered)

	chain(context.Background(), nil, callbackUpdate("plan:vip"))
	require.Equal(t, 1, c.called)
	cb, ok := contextkeys.GetCallback(c.ctx)
	require.True(t, ok)
	assert.Equal(t, utils.Callback{Action: utils.CbPlan, Arg: "vip"}, cb)
}

func TestResolveUser(t *testing.T) {
	resolver := &fakeResolver{status: types.UserBlocked}
	statuses := &fakeStatuses{set: map[int64]types.UserStatus{}}
	m := New(resolver, statuses, nil, "", &fakeOut{}, quiet())
	c := &captured{}
	chain := m.AnalyzeMessageMiddleware(m.ResolveUserMiddleware(c.handler))

	chain(context.Background(), nil, textUpdate("/start ABCD1234"))
	require.Equal(t, 1, c.called)
	assert.Equal(t, []string{"ABCD1234"}, resolver.codes)
	u, ok := contextkeys.GetUser(c.ctx)
	require.True(t, ok)
	assert.Equal(t, types.UserActive, u.Status)
	assert.Equal(t, types.UserActive, statuses.set[42])
	assert.Equal(t, i18n.EN, contextkeys.GetLang(c.ctx))

	chain(context.Background(), nil, textUpdate("hello"))
	assert.Equal(t, "", resolver.codes[1])
}

func TestResolveUser_StoreFailure(t *testing.T) {
	out := &fakeOut{}
	m := New(&fakeResolver{err: errors.New("db down")}, nil, nil, "", out, quiet())
	c := &captured{}
	m.ResolveUserMiddleware(c.handler)(context.Background(), nil, textUpdate("hi"))
	assert.Equal(t, 0, c.called)
	assert.Len(t, out.texts, 1)
}

func TestMembershipGate(t *testing.T) {
	members := &fakeMembers{}
	out := &fakeOut{}
	m := New(&fakeResolver{}, nil, members, "@shopnews", out, quiet())
	c := &captured{}
	chain := m.AnalyzeMessageMiddleware(m.MembershipGateMiddleware(c.handler))

	chain(context.Background(), nil, textUpdate("/status"))
	assert.Equal(t, 1, c.called)
	assert.Equal(t, 0, members.calls)

	chain(context.Background(), nil, textUpdate("/start"))
	assert.Equal(t, 1, c.called)
	assert.Equal(t, 1, members.calls)
	require.Len(t, out.texts, 1)
	assert.Contains(t, out.texts[0], "@shopnews")

	chain(context.Background(), nil, callbackUpdate("menu_create"))
	assert.Equal(t, 1, c.called)
	assert.Equal(t, []string{"cb1"}, out.answered)

	members.member = true
	chain(context.Background(), nil, textUpdate("/start"))
	assert.Equal(t, 2, c.called)
}

func TestMembershipGate_Disabled(t *testing.T) {
	members := &fakeMembers{}
	m := New(&fakeResolver{}, nil, members, "", &fakeOut{}, quiet())
	c := &captured{}
	m.AnalyzeMessageMiddleware(m.MembershipGateMiddleware(c.handler))(context.Background(), nil, textUpdate("/start"))
	assert.Equal(t, 1, c.called)
	assert.Equal(t, 0, members.calls)
}
