package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"boringexpenses/models"
	"boringexpenses/pkg/currency"
	"boringexpenses/pkg/ocr"
	"boringexpenses/pkg/store"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// Operator commands: password resets, monthly reports and OCR debugging.

func newResetPasswordCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a user's password and revoke their refresh tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(password) < minPasswordLen {
				return fmt.Errorf("password too short (min %d)", minPasswordLen)
			}
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var user models.User
			if err := db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
				return fmt.Errorf("user not found: %w", err)
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			if err := db.WithContext(ctx).Model(&user).Update("hashed_password", hash).Error; err != nil {
				return fmt.Errorf("update failed: %w", err)
			}
			if err := db.WithContext(ctx).Model(&models.RefreshToken{}).Where("user_id = ?", user.ID).Update("revoked", true).Error; err != nil {
				return fmt.Errorf("revoke sessions: %w", err)
			}
			fmt.Printf("Password reset for user %s\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user to reset")
	cmd.Flags().StringVar(&password, "password", "", "new plaintext password (min 6 chars)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// monthRange returns [start, end) of a YYYY-MM month in UTC.
func monthRange(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM", month)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// writeReport prints totals per currency for expenses, and each row if list is set.
func writeReport(w io.Writer, who, month string, expenses []models.Expense, list bool) {
	totals := map[string]decimal.Decimal{}
	for _, e := range expenses {
		totals[e.Currency] = totals[e.Currency].Add(e.Amount)
	}
	codes := make([]string, 0, len(totals))
	for code := range totals {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	fmt.Fprintf(w, "Report for user=%s month=%s (UTC):\n", who, month)
	fmt.Fprintf(w, "  records=%d\n", len(expenses))
	for _, code := range codes {
		fmt.Fprintf(w, "  total %s %s\n", code, currency.Format(totals[code], code))
	}
	if !list {
		return
	}
	for _, e := range expenses {
		claim := "-"
		if e.ClaimID != nil {
			claim = e.ClaimID.String()
		}
		fmt.Fprintf(w, "%s|%s|%s|%s|%s\n", e.ID, e.Date.Format("2006-01-02"), currency.Format(e.Amount, e.Currency), e.Description, claim)
	}
}

func newReportCmd() *cobra.Command {
	var user, month string
	var list bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a user's expense totals for one month",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := monthRange(month)
			if err != nil {
				return err
			}
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := lookupProfile(ctx, db, user)
			if err != nil {
				return fmt.Errorf("user %q: %w", user, err)
			}
			expenses, err := store.New(db).ListExpenses(ctx, store.ExpenseFilter{UserID: p.ID, From: &start, To: &end})
			if err != nil {
				return err
			}
			writeReport(os.Stdout, p.Email, month, expenses, list)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "email or id")
	cmd.Flags().StringVar(&month, "month", time.Now().UTC().Format("2006-01"), "month as YYYY-MM")
	cmd.Flags().BoolVar(&list, "list", false, "also list every expense")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newOCRCmd() *cobra.Command {
	var showText bool
	cmd := &cobra.Command{
		Use:   "ocr <image>",
		Short: "Run receipt OCR on one image and print what was found",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ocr.ExtractReceipt(args[0])
			if err != nil {
				return fmt.Errorf("ocr error: %w", err)
			}
			date := "-"
			if !res.Date.IsZero() {
				date = res.Date.Format("2006-01-02")
			}
			fmt.Printf("amount=%s currency=%s date=%s conf=%.4f found=%q\n",
				res.Amount.StringFixed(2), res.Currency, date, res.Confidence, res.Raw)
			if showText {
				fmt.Println(res.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showText, "text", false, "print the recognized text")
	return cmd
}
