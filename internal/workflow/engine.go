// Package workflow is the conversation state machine for shop onboarding and
// admin broadcast composition. Transition does no I/O: lookups arrive as Facts and
// side effects leave as Commands.
package workflow

import (
	"errors"
	"time"

	"github.com/BatmanBruc/mother-bot/types"
)

type Input struct {
	Key     types.SessionKey
	ChatID  int64
	Session *types.Session // nil when the actor is idle
	Event   Event
	Facts   Facts
	Now     time.Time
}

// Result of a transition. Next nil means the session must be deleted (or stay absent).
// Err carries the recoverable validation or conflict that shaped the result.
type Result struct {
	Next     *types.Session
	State    types.SessionState
	Commands []Command
	Prompts  []Prompt
	Err      error
}

type Engine struct {
	catalog *types.Catalog
}

func NewEngine(catalog *types.Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Needs reports which Facts the caller must resolve for ev.
func Needs(s *types.Session, ev Event) Need {
	switch e := ev.(type) {
	case EvStart:
		return NeedHasShop | NeedUnprovisioned
	case EvRenew:
		return NeedHasShop
	case EvText:
		if s != nil && s.State == types.StateAwaitingBotToken {
			if _, err := ValidateBotToken(e.Text); err == nil {
				return NeedTokenInUse
			}
		}
	}
	return 0
}

func (e *Engine) Transition(in Input) Result {
	switch ev := in.Event.(type) {
	case EvCancel:
		if in.Session == nil {
			return idle(Prompt{Key: PromptNothingToCancel})
		}
		return ended(types.StateCancelled, nil, Prompt{Key: PromptCancelled})
	case EvTimeout:
		if in.Session == nil {
			return idle()
		}
		return ended(types.StateCancelled, nil, Prompt{Key: PromptTimedOut})
	case EvStart:
		if in.Key.Role != types.RoleUser {
			return e.unexpected(in)
		}
		return e.start(in)
	case EvRenew:
		if in.Key.Role != types.RoleUser {
			return e.unexpected(in)
		}
		return e.renew(in, ev)
	case EvBroadcastStart:
		if in.Key.Role != types.RoleAdmin {
			return e.unexpected(in)
		}
		next := fresh(in, types.StateAwaitingBroadcastText)
		return stay(next, Prompt{Key: PromptAskBroadcastText})
	}

	if in.Session == nil {
		return idle(Prompt{Key: PromptIdleHint})
	}

	switch in.Session.State {
	case types.StateAwaitingPlanSelection:
		return e.onPlanSelection(in)
	case types.StateAwaitingPaymentAck:
		if _, ok := in.Event.(EvPaymentDone); ok {
			next := touch(in.Session, in.Now)
			next.State = types.StateAwaitingReceipt
			return stay(next, Prompt{Key: PromptSendReceipt})
		}
	case types.StateAwaitingReceipt:
		if ev, ok := in.Event.(EvPhoto); ok && ev.FileRef != "" {
			return e.onReceipt(in, ev)
		}
	case types.StateAwaitingShopName:
		if ev, ok := in.Event.(EvText); ok {
			return e.onShopName(in, ev)
		}
	case types.StateAwaitingBotToken:
		if ev, ok := in.Event.(EvText); ok {
			return e.onBotToken(in, ev)
		}
	case types.StateAwaitingPhone:
		if ev, ok := in.Event.(EvText); ok {
			return e.onPhone(in, ev)
		}
	case types.StateAwaitingBroadcastText:
		if ev, ok := in.Event.(EvText); ok {
			return e.onBroadcastText(in, ev)
		}
	case types.StateAwaitingBroadcastConfirm:
		if _, ok := in.Event.(EvBroadcastConfirm); ok {
			cmd := CmdBroadcast{AdminID: in.Key.UserID, Text: in.Session.Collected.BroadcastText}
			return ended(types.StateCompleted, []Command{cmd}, Prompt{Key: PromptBroadcastQueued})
		}
	}
	return e.unexpected(in)
}

// Resume re-enters provisioning for a paid plan after its payment was confirmed.
func (e *Engine) Resume(key types.SessionKey, chatID int64, plan, paymentID string, now time.Time) Result {
	next := fresh(Input{Key: key, ChatID: chatID, Now: now}, types.StateAwaitingShopName)
	next.Collected.SelectedPlan = plan
	next.Collected.Purpose = types.PaymentSubscription
	next.Collected.PaymentID = paymentID
	return stay(next, Prompt{Key: PromptProvisioningResume, Plan: plan}, Prompt{Key: PromptAskShopName})
}

func (e *Engine) start(in Input) Result {
	if in.Facts.HasShop {
		res := e.keep(in, Prompt{Key: PromptAlreadyHasShop})
		res.Err = &types.ConflictError{Kind: types.ConflictHasShop}
		return res
	}
	if p := in.Facts.Unprovisioned; p != nil {
		return e.Resume(in.Key, in.ChatID, p.Plan, p.ID, in.Now)
	}
	return stay(fresh(in, types.StateAwaitingPlanSelection), Prompt{Key: PromptChoosePlan})
}

func (e *Engine) renew(in Input, ev EvRenew) Result {
	if !in.Facts.HasShop {
		return e.keep(in, Prompt{Key: PromptNoShopToRenew})
	}
	plan, ok := e.catalog.Plan(ev.Plan)
	if !ok || plan.Free() {
		res := e.keep(in, Prompt{Key: PromptPlanUnavailable, Plan: ev.Plan})
		res.Err = &types.ValidationError{Field: "plan", Reason: "not_renewable"}
		return res
	}
	next := fresh(in, types.StateAwaitingPaymentAck)
	next.Collected.SelectedPlan = plan.ID
	next.Collected.Purpose = types.PaymentRenewal
	return stay(next, Prompt{Key: PromptPaymentDetails, Plan: plan.ID, Amount: plan.Price})
}

func (e *Engine) onPlanSelection(in Input) Result {
	ev, ok := in.Event.(EvSelectPlan)
	if !ok {
		return e.unexpected(in)
	}
	plan, ok := e.catalog.Plan(ev.Plan)
	if !ok {
		res := stay(touch(in.Session, in.Now), Prompt{Key: PromptChoosePlan})
		res.Err = &types.ValidationError{Field: "plan", Reason: "unknown"}
		return res
	}

	next := touch(in.Session, in.Now)
	next.Collected.SelectedPlan = plan.ID
	if plan.Free() {
		next.State = types.StateAwaitingShopName
		return stay(next, Prompt{Key: PromptAskShopName})
	}
	next.State = types.StateAwaitingPaymentAck
	next.Collected.Purpose = types.PaymentSubscription
	return stay(next, Prompt{Key: PromptPaymentDetails, Plan: plan.ID, Amount: plan.Price})
}

func (e *Engine) onReceipt(in Input, ev EvPhoto) Result {
	c := in.Session.Collected
	plan, ok := e.catalog.Plan(c.SelectedPlan)
	if !ok {
		return ended(types.StateCancelled, nil, Prompt{Key: PromptPlanUnavailable, Plan: c.SelectedPlan})
	}
	purpose := c.Purpose
	if purpose == "" {
		purpose = types.PaymentSubscription
	}
	cmds := []Command{
		CmdCreatePayment{
			UserID:     in.Key.UserID,
			Plan:       plan.ID,
			Amount:     plan.Price,
			Purpose:    purpose,
			ReceiptRef: ev.FileRef,
		},
		CmdNotifyAdmin{UserID: in.Key.UserID, ReceiptRef: ev.FileRef},
	}
	return ended(types.StateCompleted, cmds, Prompt{Key: PromptReceiptReceived, Plan: plan.ID})
}

func (e *Engine) onShopName(in Input, ev EvText) Result {
	name, err := ValidateShopName(ev.Text)
	if err != nil {
		res := stay(touch(in.Session, in.Now), Prompt{Key: PromptInvalidShopName, Reason: reason(err)})
		res.Err = err
		return res
	}
	next := touch(in.Session, in.Now)
	next.Collected.ShopName = name
	next.State = types.StateAwaitingBotToken
	return stay(next, Prompt{Key: PromptAskBotToken})
}

func (e *Engine) onBotToken(in Input, ev EvText) Result {
	token, err := ValidateBotToken(ev.Text)
	if err != nil {
		res := stay(touch(in.Session, in.Now), Prompt{Key: PromptInvalidBotToken})
		res.Err = err
		return res
	}
	if in.Facts.TokenInUse {
		res := stay(touch(in.Session, in.Now), Prompt{Key: PromptBotTokenInUse})
		res.Err = &types.ConflictError{Kind: types.ConflictBotToken}
		return res
	}
	next := touch(in.Session, in.Now)
	next.Collected.BotToken = token
	next.State = types.StateAwaitingPhone
	return stay(next, Prompt{Key: PromptAskPhone})
}

func (e *Engine) onPhone(in Input, ev EvText) Result {
	phone, err := NormalizePhone(ev.Text)
	if err != nil {
		res := stay(touch(in.Session, in.Now), Prompt{Key: PromptInvalidPhone})
		res.Err = err
		return res
	}

	c := in.Session.Collected
	shop := CmdCreateShop{
		OwnerID:   in.Key.UserID,
		Name:      c.ShopName,
		BotToken:  c.BotToken,
		Plan:      c.SelectedPlan,
		PaymentID: c.PaymentID,
	}
	plan, known := e.catalog.Plan(c.SelectedPlan)
	if known {
		shop.MaxProducts = plan.MaxProducts
	}

	if c.PaymentID != "" {
		shop.Status = types.ShopPending
		cmds := []Command{shop, CmdUpdatePhone{UserID: in.Key.UserID, Phone: phone}}
		return ended(types.StateCompleted, cmds, Prompt{Key: PromptShopCreatedPending, Plan: c.SelectedPlan})
	}
	if !known || !plan.Free() {
		return ended(types.StateCancelled, nil, Prompt{Key: PromptPlanUnavailable, Plan: c.SelectedPlan})
	}

	shop.Status = types.ShopActive
	cmds := []Command{
		shop,
		CmdUpdatePhone{UserID: in.Key.UserID, Phone: phone},
		CmdActivatePlan{UserID: in.Key.UserID, Plan: plan.ID, DurationDays: plan.DurationDays},
	}
	return ended(types.StateCompleted, cmds, Prompt{Key: PromptShopCreatedActive, Plan: plan.ID})
}

func (e *Engine) onBroadcastText(in Input, ev EvText) Result {
	text, err := ValidateBroadcastText(ev.Text)
	if err != nil {
		res := stay(touch(in.Session, in.Now), Prompt{Key: PromptInvalidBroadcast, Reason: reason(err)})
		res.Err = err
		return res
	}
	next := touch(in.Session, in.Now)
	next.Collected.BroadcastText = text
	next.State = types.StateAwaitingBroadcastConfirm
	return stay(next, Prompt{Key: PromptConfirmBroadcast, Text: text})
}

// unexpected re-issues the prompt of the current state.
func (e *Engine) unexpected(in Input) Result {
	if in.Session == nil {
		return idle(Prompt{Key: PromptIdleHint})
	}
	c := in.Session.Collected
	var p Prompt
	switch in.Session.State {
	case types.StateAwaitingPlanSelection:
		p = Prompt{Key: PromptChoosePlan}
	case types.StateAwaitingPaymentAck:
		plan, _ := e.catalog.Plan(c.SelectedPlan)
		p = Prompt{Key: PromptPaymentDetails, Plan: c.SelectedPlan, Amount: plan.Price}
	case types.StateAwaitingReceipt:
		p = Prompt{Key: PromptSendReceipt}
	case types.StateAwaitingShopName:
		p = Prompt{Key: PromptAskShopName}
	case types.StateAwaitingBotToken:
		p = Prompt{Key: PromptAskBotToken}
	case types.StateAwaitingPhone:
		p = Prompt{Key: PromptAskPhone}
	case types.StateAwaitingBroadcastText:
		p = Prompt{Key: PromptAskBroadcastText}
	case types.StateAwaitingBroadcastConfirm:
		p = Prompt{Key: PromptConfirmBroadcast, Text: c.BroadcastText}
	default:
		p = Prompt{Key: PromptIdleHint}
	}
	return stay(touch(in.Session, in.Now), p)
}

// keep leaves any existing session as it was.
func (e *Engine) keep(in Input, prompts ...Prompt) Result {
	if in.Session == nil {
		return idle(prompts...)
	}
	return stay(touch(in.Session, in.Now), prompts...)
}

func fresh(in Input, state types.SessionState) *types.Session {
	return &types.Session{
		Key:            in.Key,
		ChatID:         in.ChatID,
		State:          state,
		CreatedAt:      in.Now,
		LastActivityAt: in.Now,
	}
}

func touch(s *types.Session, now time.Time) *types.Session {
	next := *s
	next.LastActivityAt = now
	return &next
}

func stay(next *types.Session, prompts ...Prompt) Result {
	return Result{Next: next, State: next.State, Prompts: prompts}
}

func ended(state types.SessionState, cmds []Command, prompts ...Prompt) Result {
	return Result{State: state, Commands: cmds, Prompts: prompts}
}

func idle(prompts ...Prompt) Result {
	return Result{State: types.StateIdle, Prompts: prompts}
}

func reason(err error) string {
	var ve *types.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}
