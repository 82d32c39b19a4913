package utils

import (
	"fmt"
	"strings"
)

type CallbackAction string

const (
	CbPlan             CallbackAction = "plan"
	CbPaid             CallbackAction = "paid"
	CbCancel           CallbackAction = "cancel"
	CbBroadcastConfirm CallbackAction = "bc_confirm"
	CbPayConfirm       CallbackAction = "pay_confirm"
	CbPayReject        CallbackAction = "pay_reject"
	CbMenuCreate       CallbackAction = "menu_create"
	CbMenuStatus       CallbackAction = "menu_status"
	CbMenuReferral     CallbackAction = "menu_referral"
	CbMenuRenew        CallbackAction = "menu_renew"
)

// maxCallbackData is the Bot API limit for callback_data.
const maxCallbackData = 64

var withArg = map[CallbackAction]bool{
	CbPlan:       true,
	CbPayConfirm: true,
	CbPayReject:  true,
}

var bare = map[CallbackAction]bool{
	CbPaid:             true,
	CbCancel:           true,
	CbBroadcastConfirm: true,
	CbMenuCreate:       true,
	CbMenuStatus:       true,
	CbMenuReferral:     true,
	CbMenuRenew:        true,
}

// Callback is a parsed button press.
type Callback struct {
	Action CallbackAction
	Arg    string
}

func (c Callback) Data() string {
	if c.Arg == "" {
		return string(c.Action)
	}
	return string(c.Action) + ":" + c.Arg
}

func ParseCallback(data string) (Callback, error) {
	data = strings.TrimSpace(data)
	if data == "" || len(data) > maxCallbackData {
		return Callback{}, fmt.Errorf("invalid callback data %q", data)
	}
	action, arg, hasArg := strings.Cut(data, ":")
	a := CallbackAction(action)
	switch {
	case withArg[a] && hasArg && arg != "":
		return Callback{Action: a, Arg: arg}, nil
	case bare[a] && !hasArg:
		return Callback{Action: a}, nil
	}
	return Callback{}, fmt.Errorf("unknown callback %q", data)
}
