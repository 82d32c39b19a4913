package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/mother-bot/internal/i18n"
	"github.com/BatmanBruc/mother-bot/types"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data string
		want Callback
	}{
		{"plan:professional", Callback{Action: CbPlan, Arg: "professional"}},
		{"paid", Callback{Action: CbPaid}},
		{"cancel", Callback{Action: CbCancel}},
		{"bc_confirm", Callback{Action: CbBroadcastConfirm}},
		{"pay_confirm:7f1c0c3e-9a8b-4d4c-8f3a-2b1e0f9d8c7b", Callback{Action: CbPayConfirm, Arg: "7f1c0c3e-9a8b-4d4c-8f3a-2b1e0f9d8c7b"}},
		{"pay_reject:abc", Callback{Action: CbPayReject, Arg: "abc"}},
		{" menu_status ", Callback{Action: CbMenuStatus}},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := ParseCallback(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, strings.TrimSpace(tt.data), got.Data())
		})
	}
}

func TestParseCallback_Rejects(t *testing.T) {
	for _, data := range []string{"", "plan", "plan:", "paid:1", "menu_batch", "pay_confirm", strings.Repeat("x", 65)} {
		_, err := ParseCallback(data)
		assert.Error(t, err, data)
	}
}

func TestPlanKeyboard(t *testing.T) {
	plans := []types.Plan{{ID: "free", Name: "Free"}, {ID: "vip", Name: "VIP"}}
	kb := PlanKeyboard(i18n.EN, plans)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "plan:free", kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "plan:vip", kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "cancel", kb.InlineKeyboard[2][0].CallbackData)
}

func TestBuildInlineKeyboard_Rows(t *testing.T) {
	buttons := make([]Button, 5)
	for i := range buttons {
		buttons[i] = Button{Text: "b", Callback: Callback{Action: CbPaid}}
	}
	kb := BuildInlineKeyboard(buttons, 2)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Len(t, kb.InlineKeyboard[2], 1)
}
