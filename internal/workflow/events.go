package workflow

import "github.com/BatmanBruc/mother-bot/types"

// Event is the closed set of inputs the engine understands. Transport code parses
// raw updates into one of these once; nothing downstream looks at raw strings.
type Event interface {
	isEvent()
}

// EvStart begins shop creation.
type EvStart struct{}

type EvSelectPlan struct {
	Plan string
}

// EvPaymentDone is the user's acknowledgement that the transfer was made.
type EvPaymentDone struct{}

// EvPhoto carries a receipt reference issued by the file store.
type EvPhoto struct {
	FileRef string
}

type EvText struct {
	Text string
}

type EvCancel struct{}

// EvTimeout is raised by the inactivity sweep, never by user input.
type EvTimeout struct{}

// EvRenew starts a renewal payment for Plan on an existing shop.
type EvRenew struct {
	Plan string
}

type EvBroadcastStart struct{}

type EvBroadcastConfirm struct{}

func (EvStart) isEvent()            {}
func (EvSelectPlan) isEvent()       {}
func (EvPaymentDone) isEvent()      {}
func (EvPhoto) isEvent()            {}
func (EvText) isEvent()             {}
func (EvCancel) isEvent()           {}
func (EvTimeout) isEvent()          {}
func (EvRenew) isEvent()            {}
func (EvBroadcastStart) isEvent()   {}
func (EvBroadcastConfirm) isEvent() {}

// Kind is a short label used in logs and metrics.
func Kind(ev Event) string {
	switch ev.(type) {
	case EvStart:
		return "start"
	case EvSelectPlan:
		return "select_plan"
	case EvPaymentDone:
		return "payment_done"
	case EvPhoto:
		return "photo"
	case EvText:
		return "text"
	case EvCancel:
		return "cancel"
	case EvTimeout:
		return "timeout"
	case EvRenew:
		return "renew"
	case EvBroadcastStart:
		return "broadcast_start"
	case EvBroadcastConfirm:
		return "broadcast_confirm"
	default:
		return "unknown"
	}
}

// Facts are lookups the caller resolves before calling Transition, as reported by Needs.
type Facts struct {
	HasShop    bool
	TokenInUse bool
	// Unprovisioned is a confirmed subscription payment still waiting for its shop.
	Unprovisioned *types.Payment
}

type Need uint8

const (
	NeedHasShop Need = 1 << iota
	NeedTokenInUse
	NeedUnprovisioned
)

func (n Need) Has(flag Need) bool {
	return n&flag != 0
}
