package workflow

import (
	"github.com/shopspring/decimal"

	"github.com/BatmanBruc/mother-bot/types"
)

// Command is a side effect requested by a transition. The caller executes commands in
// order and persists the next session only after all of them succeed.
type Command interface {
	isCommand()
}

type CmdCreatePayment struct {
	UserID     int64
	Plan       string
	Amount     decimal.Decimal
	Purpose    types.PaymentType
	ReceiptRef string
}

// CmdNotifyAdmin forwards the payment created earlier in the same command list.
type CmdNotifyAdmin struct {
	UserID     int64
	ReceiptRef string
}

// CmdCreateShop provisions the shop. PaymentID, when set, is the confirmed payment that
// unlocked provisioning and gets the new shop attached to it.
type CmdCreateShop struct {
	OwnerID     int64
	Name        string
	BotToken    string
	Plan        string
	Status      types.ShopStatus
	MaxProducts int
	PaymentID   string
}

type CmdUpdatePhone struct {
	UserID int64
	Phone  string
}

type CmdActivatePlan struct {
	UserID       int64
	Plan         string
	DurationDays int
}

type CmdBroadcast struct {
	AdminID int64
	Text    string
}

func (CmdCreatePayment) isCommand() {}
func (CmdNotifyAdmin) isCommand()   {}
func (CmdCreateShop) isCommand()    {}
func (CmdUpdatePhone) isCommand()   {}
func (CmdActivatePlan) isCommand()  {}
func (CmdBroadcast) isCommand()     {}

type PromptKey string

const (
	PromptIdleHint           PromptKey = "idle_hint"
	PromptNothingToCancel    PromptKey = "nothing_to_cancel"
	PromptChoosePlan         PromptKey = "choose_plan"
	PromptAlreadyHasShop     PromptKey = "already_has_shop"
	PromptNoShopToRenew      PromptKey = "no_shop_to_renew"
	PromptPlanUnavailable    PromptKey = "plan_unavailable"
	PromptPaymentDetails     PromptKey = "payment_details"
	PromptSendReceipt        PromptKey = "send_receipt"
	PromptReceiptReceived    PromptKey = "receipt_received"
	PromptAskShopName        PromptKey = "ask_shop_name"
	PromptInvalidShopName    PromptKey = "invalid_shop_name"
	PromptAskBotToken        PromptKey = "ask_bot_token"
	PromptInvalidBotToken    PromptKey = "invalid_bot_token"
	PromptBotTokenInUse      PromptKey = "bot_token_in_use"
	PromptAskPhone           PromptKey = "ask_phone"
	PromptInvalidPhone       PromptKey = "invalid_phone"
	PromptShopCreatedActive  PromptKey = "shop_created_active"
	PromptShopCreatedPending PromptKey = "shop_created_pending"
	PromptProvisioningResume PromptKey = "provisioning_resume"
	PromptCancelled          PromptKey = "cancelled"
	PromptTimedOut           PromptKey = "timed_out"
	PromptAskBroadcastText   PromptKey = "ask_broadcast_text"
	PromptInvalidBroadcast   PromptKey = "invalid_broadcast"
	PromptConfirmBroadcast   PromptKey = "confirm_broadcast"
	PromptBroadcastQueued    PromptKey = "broadcast_queued"
)

// Prompt is a message for the actor. Rendering into text and keyboards happens in the
// messages package; only the parameters a template needs are carried here.
type Prompt struct {
	Key    PromptKey
	Plan   string
	Amount decimal.Decimal
	Text   string
	Reason string
}
