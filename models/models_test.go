package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimStatusVocabulary(t *testing.T) {
	all := ClaimStatuses()
	require.Len(t, all, 5)
	for i, s := range all {
		assert.True(t, s.Valid())
		assert.Equal(t, i, s.Index())
	}
	assert.Equal(t, "Under Review", StatusProcessing.Label())
	assert.Equal(t, "purple", StatusPaid.Color())
	assert.False(t, ClaimStatus("rejected").Valid())
	assert.Equal(t, -1, ClaimStatus("").Index())

	all[0] = "mutated"
	assert.Equal(t, StatusUnfiled, ClaimStatuses()[0])
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleEmployee.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("owner").Valid())
	assert.True(t, RoleManager.CanApprove())
	assert.False(t, RoleEmployee.CanApprove())
}

func TestExpenseInputRejectsZeroAmount(t *testing.T) {
	in := ExpenseInput{Date: NewDate(time.Now()), Description: "Taxi", Amount: decimal.Zero}
	assert.ErrorIs(t, in.Validate(), ErrAmountNotPositive)

	in.Amount = decimal.NewFromInt(-3)
	assert.ErrorIs(t, in.Validate(), ErrAmountNotPositive)

	// rounds to 0.00 when stored
	in.Amount = decimal.RequireFromString("0.004")
	assert.ErrorIs(t, in.Validate(), ErrAmountNotPositive)

	in.Amount = decimal.RequireFromString("0.005")
	require.NoError(t, in.Validate())
	var e Expense
	in.Apply(&e)
	assert.True(t, e.Amount.IsPositive())
}

func TestExpenseInputValidate(t *testing.T) {
	in := ExpenseInput{Date: NewDate(time.Now()), Description: "  Lunch ", Amount: decimal.RequireFromString("12.345"), Currency: "usd"}
	require.NoError(t, in.Validate())
	assert.Equal(t, "Lunch", in.Description)
	assert.Equal(t, "USD", in.Currency)

	var e Expense
	in.Apply(&e)
	assert.Equal(t, "12.35", e.Amount.StringFixed(2))

	blank := ExpenseInput{Date: NewDate(time.Now()), Description: " ", Amount: decimal.NewFromInt(1)}
	assert.ErrorIs(t, blank.Validate(), ErrDescriptionRequired)

	badCur := ExpenseInput{Date: NewDate(time.Now()), Description: "x", Amount: decimal.NewFromInt(1), Currency: "XXX"}
	assert.ErrorIs(t, badCur.Validate(), ErrUnknownCurrency)

	noDate := ExpenseInput{Description: "x", Amount: decimal.NewFromInt(1)}
	assert.ErrorIs(t, noDate.Validate(), ErrDateRequired)

	noCur := ExpenseInput{Date: NewDate(time.Now()), Description: "x", Amount: decimal.NewFromInt(1)}
	require.NoError(t, noCur.Validate())
	assert.Equal(t, "GBP", noCur.Currency)
}

func TestBankAccount(t *testing.T) {
	b := BankAccount{AccountName: " Eve ", IBAN: "gb29 nwbk 6016 1331 9268 19"}.Normalize()
	assert.Equal(t, "Eve", b.AccountName)
	assert.Equal(t, "GB29NWBK60161331926819", b.IBAN)
	require.NoError(t, b.Validate())
	assert.Equal(t, "GB29NWBK60161331926819", b.Columns()["bank_iban"])

	require.NoError(t, BankAccount{}.Validate())
	assert.ErrorIs(t, BankAccount{IBAN: "GB29"}.Validate(), ErrBankNameRequired)
	assert.ErrorIs(t, BankAccount{AccountName: "Eve", SortCode: "12-34-56"}.Validate(), ErrBankAccountIncomplete)
}

func TestClaimInputValidate(t *testing.T) {
	assert.ErrorIs(t, ClaimInput{Title: "   "}.Validate(), ErrTitleRequired)
	assert.NoError(t, ClaimInput{Title: "Berlin trip"}.Validate())
}

func TestDateJSON(t *testing.T) {
	var in ExpenseInput
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-03-14","description":"Taxi","amount":"12.50"}`), &in))
	assert.Equal(t, 2025, in.Date.Year())
	assert.Equal(t, time.March, in.Date.Month())
	assert.True(t, in.Amount.Equal(decimal.RequireFromString("12.50")))

	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-03-14T18:30:00Z"}`), &in))
	assert.Equal(t, 14, in.Date.Day())

	assert.Error(t, json.Unmarshal([]byte(`{"date":"14/03/2025"}`), &in))

	b, err := json.Marshal(NewDate(time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-02"`, string(b))
}
