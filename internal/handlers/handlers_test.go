package handlers

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/mother-bot/internal/admin"
	"github.com/BatmanBruc/mother-bot/internal/config"
	"github.com/BatmanBruc/mother-bot/internal/contextkeys"
	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/internal/messages"
	"github.com/BatmanBruc/mother-bot/internal/payments"
	"github.com/BatmanBruc/mother-bot/internal/referral"
	"github.com/BatmanBruc/mother-bot/internal/transport"
	"github.com/BatmanBruc/mother-bot/internal/utils"
	"github.com/BatmanBruc/mother-bot/internal/workflow"
	"github.com/BatmanBruc/mother-bot/store"
	"github.com/BatmanBruc/mother-bot/types"
)

const (
	ownerID = 42
	adminID = 900
)

type call struct {
	key types.SessionKey
	ev  workflow.Event
}

type fakeFlow struct {
	calls []call
	err   error
}

func (f *fakeFlow) HandleEvent(_ context.Context, key types.SessionKey, _ int64, ev workflow.Event) (workflow.Result, error) {
	f.calls = append(f.calls, call{key: key, ev: ev})
	return workflow.Result{}, f.err
}

type sent struct {
	chatID int64
	text   string
	markup models.ReplyMarkup
}

type fakeOut struct {
	messages []sent
	photos    []*bot.SendPhotoParams
	documents []*bot.SendDocumentParams
	answered []string
	err      error
}

func (f *fakeOut) SendMessage(_ context.Context, p *bot.SendMessageParams) error {
	f.messages = append(f.messages, sent{chatID: p.ChatID.(int64), text: p.Text, markup: p.ReplyMarkup})
	return f.err
}

func (f *fakeOut) SendPhoto(_ context.Context, p *bot.SendPhotoParams) error {
	f.photos = append(f.photos, p)
	return f.err
}

func (f *fakeOut) SendDocument(_ context.Context, p *bot.SendDocumentParams) error {
	f.documents = append(f.documents, p)
	return f.err
}

func (f *fakeOut) AnswerCallback(_ context.Context, id, _ string) {
	f.answered = append(f.answered, id)
}

func (f *fakeOut) texts() []string {
	out := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m.text)
	}
	return out
}

type fakeDecider struct {
	outcome *payments.Outcome
	err     error
}

func (f *fakeDecider) Decide(context.Context, string, types.Decision, int64) (*payments.Outcome, error) {
	return f.outcome, f.err
}

func (f *fakeDecider) Pending(context.Context, int) ([]types.Payment, error) {
	return []types.Payment{{ID: "p1", UserID: ownerID, Plan: "basic", ReceiptRef: "file-1"}}, nil
}

type fixture struct {
	h       *Handlers
	flow    *fakeFlow
	out     *fakeOut
	decider *fakeDecider
	mem     *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	ctx := context.Background()
	for _, id := range []int64{ownerID, adminID} {
		_, err := mem.InsertUser(ctx, &types.User{UserID: id, LanguageCode: "en", ReferralCode: "CODE" + string(rune('A'+id%26)), Status: types.UserActive})
		require.NoError(t, err)
	}

	out := &fakeOut{}
	flow := &fakeFlow{}
	decider := &fakeDecider{}
	presenter := NewPresenter(out, mem, messages.NewRenderer(catalog, "8600 0000 0000 0000"), catalog, []int64{adminID}, log)
	adm := admin.NewService([]int64{adminID}, mem, mem, decider, presenter, nil, log)

	h := NewHandlers(Deps{
		Flow:        flow,
		Admin:       adm,
		Sessions:    mem,
		Shops:       mem,
		Out:         out,
		Presenter:   presenter,
		BotUsername: "MotherBot",
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		Log:         log,
	})
	return &fixture{h: h, flow: flow, out: out, decider: decider, mem: mem}
}

func userCtx(t *testing.T, m *store.MemoryStore, id int64, mt contextkeys.MessageType) context.Context {
	t.Helper()
	u, err := m.GetUser(context.Background(), id)
	require.NoError(t, err)
	ctx := contextkeys.WithUser(context.Background(), u)
	ctx = contextkeys.WithLang(ctx, i18n.EN)
	return contextkeys.WithMessageType(ctx, mt)
}

func message(from int64, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		Text: text,
		Chat: models.Chat{ID: from},
		From: &models.User{ID: from},
	}}
}

func callback(from int64, cb utils.Callback) *models.Update {
	return &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:      "cb-1",
		Data:    cb.Data(),
		From:    models.User{ID: from},
		Message: models.MaybeInaccessibleMessage{Message: &models.Message{Chat: models.Chat{ID: from}}},
	}}
}

func command(ctx context.Context, name, args string) context.Context {
	return contextkeys.WithCommand(ctx, contextkeys.Command{Name: name, Args: args})
}

func TestMainHandler_TextRouting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.h.MainHandler(userCtx(t, f.mem, ownerID, contextkeys.MessageTypeText), nil, message(ownerID, "My Shop"))
	require.Len(t, f.flow.calls, 1)
	assert.Equal(t, types.SessionKey{UserID: ownerID, Role: types.RoleUser}, f.flow.calls[0].key)
	assert.Equal(t, workflow.EvText{Text: "My Shop"}, f.flow.calls[0].ev)

	// An administrator without an open broadcast types into their own onboarding.
	f.h.MainHandler(userCtx(t, f.mem, adminID, contextkeys.MessageTypeText), nil, message(adminID, "hello"))
	assert.Equal(t, types.RoleUser, f.flow.calls[1].key.Role)

	require.NoError(t, f.mem.SaveSession(ctx, &types.Session{
		Key:   types.SessionKey{UserID: adminID, Role: types.RoleAdmin},
		State: types.StateAwaitingBroadcastText,
	}))
	f.h.MainHandler(userCtx(t, f.mem, adminID, contextkeys.MessageTypeText), nil, message(adminID, "Sale today"))
	assert.Equal(t, types.SessionKey{UserID: adminID, Role: types.RoleAdmin}, f.flow.calls[2].key)
}

func TestMainHandler_ContactAndPhoto(t *testing.T) {
	f := newFixture(t)

	contact := message(ownerID, "")
	contact.Message.Contact = &models.Contact{PhoneNumber: "+998901234567", UserID: ownerID}
	f.h.MainHandler(userCtx(t, f.mem, ownerID, contextkeys.MessageTypeContact), nil, contact)

	ctx := contextkeys.WithFileRef(userCtx(t, f.mem, ownerID, contextkeys.MessageTypePhoto), "photo-1")
	f.h.MainHandler(ctx, nil, message(ownerID, ""))

	require.Len(t, f.flow.calls, 2)
	assert.Equal(t, workflow.EvText{Text: "+998901234567"}, f.flow.calls[0].ev)
	assert.Equal(t, workflow.EvPhoto{FileRef: "photo-1"}, f.flow.calls[1].ev)
}

func TestMainHandler_RejectsSomeoneElsesContact(t *testing.T) {
	f := newFixture(t)

	contact := message(ownerID, "")
	contact.Message.Contact = &models.Contact{PhoneNumber: "+998907654321", UserID: 777}
	f.h.MainHandler(userCtx(t, f.mem, ownerID, contextkeys.MessageTypeContact), nil, contact)

	unsent := message(ownerID, "")
	unsent.Message.Contact = &models.Contact{PhoneNumber: "+998907654321"}
	f.h.MainHandler(userCtx(t, f.mem, ownerID, contextkeys.MessageTypeContact), nil, unsent)

	assert.Empty(t, f.flow.calls)
	require.Len(t, f.out.messages, 2)
	assert.Equal(t, messages.ForeignContact(i18n.EN), f.out.messages[0].text)
	assert.Equal(t, utils.PhoneKeyboard(i18n.EN), f.out.messages[0].markup)
}

func TestMainHandler_Unsupported(t *testing.T) {
	f := newFixture(t)
	f.h.MainHandler(userCtx(t, f.mem, ownerID, contextkeys.MessageTypeUnknown), nil, message(ownerID, ""))
	assert.Empty(t, f.flow.calls)
	assert.Equal(t, []string{messages.ErrorUnsupportedMessageType(i18n.EN)}, f.out.texts())
}

func TestMainHandler_FlowErrorRepliesGenerically(t *testing.T) {
	f := newFixture(t)
	f.flow.err = errors.New("redis down")
	f.h.MainHandler(userCtx(t, f.mem, ownerID, contextkeys.MessageTypeText), nil, message(ownerID, "x"))
	assert.Equal(t, []string{messages.ErrorDefault(i18n.EN)}, f.out.texts())
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name    string
		user    int64
		command string
		args    string
		event   workflow.Event
		role    types.Role
		reply   string
	}{
		{name: "start", user: ownerID, command: "start", event: workflow.EvStart{}, role: types.RoleUser},
		{name: "cancel", user: ownerID, command: "cancel", event: workflow.EvCancel{}, role: types.RoleUser},
		{name: "renew explicit plan", user: ownerID, command: "renew", args: "pro", event: workflow.EvRenew{Plan: "pro"}, role: types.RoleUser},
		{name: "broadcast", user: adminID, command: "broadcast", event: workflow.EvBroadcastStart{}, role: types.RoleAdmin},
		{name: "broadcast by user", user: ownerID, command: "broadcast", reply: messages.NotAdmin(i18n.EN)},
		{name: "unknown", user: ownerID, command: "convert", reply: messages.ErrorUnknownCommand(i18n.EN)},
		{name: "bad page", user: adminID, command: "users", args: "zero", reply: messages.Usage("users", "[page]")},
		{name: "approve without id", user: adminID, command: "approve", reply: messages.Usage("approve", "<shop_id>")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := command(userCtx(t, f.mem, tt.user, contextkeys.MessageTypeCommand), tt.command, tt.args)
			f.h.MainHandler(ctx, nil, message(tt.user, "/"+tt.command))

			if tt.event != nil {
				require.Len(t, f.flow.calls, 1)
				assert.Equal(t, tt.event, f.flow.calls[0].ev)
				assert.Equal(t, tt.role, f.flow.calls[0].key.Role)
			} else {
				assert.Empty(t, f.flow.calls)
			}
			if tt.reply != "" {
				assert.Equal(t, []string{tt.reply}, f.out.texts())
			}
		})
	}
}

func TestCommand_RenewDefaultsToCurrentPlan(t *testing.T) {
	f := newFixture(t)
	_, err := f.mem.MutateSubscription(context.Background(), ownerID, func(sub *types.Subscription) error {
		sub.Plan = "basic"
		return nil
	})
	require.NoError(t, err)

	ctx := command(userCtx(t, f.mem, ownerID, contextkeys.MessageTypeCommand), "renew", "")
	f.h.MainHandler(ctx, nil, message(ownerID, "/renew"))
	require.Len(t, f.flow.calls, 1)
	assert.Equal(t, workflow.EvRenew{Plan: "basic"}, f.flow.calls[0].ev)
}

func TestCommand_Referral(t *testing.T) {
	f := newFixture(t)
	ctx := command(userCtx(t, f.mem, ownerID, contextkeys.MessageTypeCommand), "referral", "")
	f.h.MainHandler(ctx, nil, message(ownerID, "/referral"))
	require.Len(t, f.out.messages, 1)
	assert.Contains(t, f.out.messages[0].text, "https://t.me/MotherBot?start=CODE")
}

func TestCommand_ApproveUnknownShop(t *testing.T) {
	f := newFixture(t)
	ctx := command(userCtx(t, f.mem, adminID, contextkeys.MessageTypeCommand), "approve", "missing")
	f.h.MainHandler(ctx, nil, message(adminID, "/approve missing"))
	require.Len(t, f.out.messages, 1)
	assert.Contains(t, f.out.messages[0].text, "missing")
}

func TestCommand_PendingShowsReceipts(t *testing.T) {
	f := newFixture(t)
	ctx := command(userCtx(t, f.mem, adminID, contextkeys.MessageTypeCommand), "pending", "")
	f.h.MainHandler(ctx, nil, message(adminID, "/pending"))
	require.Len(t, f.out.photos, 1)
	assert.Equal(t, int64(adminID), f.out.photos[0].ChatID)
	assert.Equal(t, utils.ReviewKeyboard("p1"), f.out.photos[0].ReplyMarkup)
}

func TestPresenter_ForwardsDocumentReceipt(t *testing.T) {
	f := newFixture(t)
	payment := &types.Payment{ID: "p2", UserID: ownerID, Plan: "basic", ReceiptRef: types.DocumentReceipt("doc-7")}

	require.NoError(t, f.h.presenter.ForwardReceipt(context.Background(), payment))

	assert.Empty(t, f.out.photos)
	require.Len(t, f.out.documents, 1)
	assert.Equal(t, int64(adminID), f.out.documents[0].ChatID)
	assert.Equal(t, &models.InputFileString{Data: "doc-7"}, f.out.documents[0].Document)
	assert.Equal(t, utils.ReviewKeyboard("p2"), f.out.documents[0].ReplyMarkup)
}

func TestCallbacks_Flow(t *testing.T) {
	tests := []struct {
		cb    utils.Callback
		event workflow.Event
	}{
		{utils.Callback{Action: utils.CbPlan, Arg: "pro"}, workflow.EvSelectPlan{Plan: "pro"}},
		{utils.Callback{Action: utils.CbPaid}, workflow.EvPaymentDone{}},
		{utils.Callback{Action: utils.CbCancel}, workflow.EvCancel{}},
		{utils.Callback{Action: utils.CbMenuCreate}, workflow.EvStart{}},
	}
	for _, tt := range tests {
		t.Run(tt.cb.Data(), func(t *testing.T) {
			f := newFixture(t)
			ctx := contextkeys.WithCallback(userCtx(t, f.mem, ownerID, contextkeys.MessageTypeClickButton), tt.cb)
			f.h.MainHandler(ctx, nil, callback(ownerID, tt.cb))

			require.Len(t, f.flow.calls, 1)
			assert.Equal(t, tt.event, f.flow.calls[0].ev)
			assert.Equal(t, []string{"cb-1"}, f.out.answered)
		})
	}
}

func TestCallbacks_BroadcastConfirmRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	cb := utils.Callback{Action: utils.CbBroadcastConfirm}
	update := callback(ownerID, cb)
	ctx := contextkeys.WithCallback(userCtx(t, f.mem, ownerID, contextkeys.MessageTypeClickButton), cb)
	f.h.MainHandler(ctx, nil, update)
	assert.Empty(t, f.flow.calls)
	assert.Equal(t, []string{messages.NotAdmin(i18n.EN)}, f.out.texts())

	update = callback(adminID, cb)
	ctx = contextkeys.WithCallback(userCtx(t, f.mem, adminID, contextkeys.MessageTypeClickButton), cb)
	f.h.MainHandler(ctx, nil, update)
	require.Len(t, f.flow.calls, 1)
	assert.Equal(t, types.SessionKey{UserID: adminID, Role: types.RoleAdmin}, f.flow.calls[0].key)
}

func TestCallbacks_DecidePayment(t *testing.T) {
	f := newFixture(t)
	paid := &types.Payment{ID: "p1", UserID: ownerID, Status: types.PaymentConfirmed, VerifiedBy: adminID}
	f.decider.outcome = &payments.Outcome{
		Payment: paid,
		Credits: []referral.Credit{{ReferrerID: ownerID, Level: 1, Bonus: decimal.NewFromInt(2000)}},
	}

	cb := utils.Callback{Action: utils.CbPayConfirm, Arg: "p1"}
	update := callback(adminID, cb)
	ctx := contextkeys.WithCallback(userCtx(t, f.mem, adminID, contextkeys.MessageTypeClickButton), cb)
	f.h.MainHandler(ctx, nil, update)

	require.Len(t, f.out.messages, 2)
	assert.Equal(t, int64(ownerID), f.out.messages[0].chatID)
	assert.Equal(t, messages.ReferralBonus(i18n.EN, 1, decimal.NewFromInt(2000)), f.out.messages[0].text)
	assert.Equal(t, messages.PaymentDecidedAdmin(paid), f.out.messages[1].text)
	assert.Equal(t, []string{"cb-1"}, f.out.answered)
}

func TestCallbacks_AlreadyDecided(t *testing.T) {
	f := newFixture(t)
	already := &types.AlreadyDecidedError{PaymentID: "p1", Status: types.PaymentRejected, By: 901, At: time.Unix(0, 0)}
	f.decider.err = already

	cb := utils.Callback{Action: utils.CbPayReject, Arg: "p1"}
	update := callback(adminID, cb)
	ctx := contextkeys.WithCallback(userCtx(t, f.mem, adminID, contextkeys.MessageTypeClickButton), cb)
	f.h.MainHandler(ctx, nil, update)

	assert.Equal(t, []string{messages.AlreadyDecided(already)}, f.out.texts())
}

func TestKeyboardFor(t *testing.T) {
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)

	tests := []struct {
		key  workflow.PromptKey
		want models.ReplyMarkup
	}{
		{workflow.PromptChoosePlan, utils.PlanKeyboard(i18n.EN, catalog.Plans)},
		{workflow.PromptPaymentDetails, utils.PaidKeyboard(i18n.EN)},
		{workflow.PromptAskShopName, utils.CancelKeyboard(i18n.EN)},
		{workflow.PromptAskPhone, utils.PhoneKeyboard(i18n.EN)},
		{workflow.PromptConfirmBroadcast, utils.BroadcastConfirmKeyboard(i18n.EN)},
		{workflow.PromptShopCreatedActive, &models.ReplyKeyboardRemove{RemoveKeyboard: true}},
		{workflow.PromptIdleHint, utils.MainMenuKeyboard(i18n.EN)},
		{workflow.PromptReceiptReceived, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			assert.Equal(t, tt.want, keyboardFor(i18n.EN, tt.key, catalog))
		})
	}
}

func TestPresenter_MarksUnreachableUsers(t *testing.T) {
	f := newFixture(t)
	f.out.err = transport.ErrBlocked

	err := f.h.presenter.Present(context.Background(), ownerID, ownerID, []workflow.Prompt{{Key: workflow.PromptIdleHint}})
	require.NoError(t, err)

	u, err := f.mem.GetUser(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, types.UserBlocked, u.Status)
}
