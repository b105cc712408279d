package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

func money(minor int64, c domain.Currency) string {
	return fmt.Sprintf("%s %s", c, decimal.New(minor, -2).StringFixed(2))
}

// render builds the plain-text e-mail for a notification.
func render(n domain.Notification) (subject, body string) {
	var b strings.Builder
	name := n.UserName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)

	switch n.Kind {
	case domain.NotificationApproval:
		subject = fmt.Sprintf("Your payout %s has been approved", n.Reference)
		fmt.Fprintf(&b, "Your payout request for %q has been approved and will be sent shortly.\n\n", n.SubjectTitle)
	case domain.NotificationCompletion:
		subject = fmt.Sprintf("Your payout %s is complete", n.Reference)
		fmt.Fprintf(&b, "Your payout for %q has been paid.\n\n", n.SubjectTitle)
	case domain.NotificationFailure:
		subject = fmt.Sprintf("Your payout %s could not be completed", n.Reference)
		fmt.Fprintf(&b, "Unfortunately your payout for %q failed.\n", n.SubjectTitle)
		if n.FailureReason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", n.FailureReason)
		}
		b.WriteString("You can submit a new request once the issue is resolved.\n\n")
	default:
		subject = fmt.Sprintf("Update on your payout %s", n.Reference)
	}

	fmt.Fprintf(&b, "Payout ID: %s\n", n.PayoutID)
	fmt.Fprintf(&b, "Reference: %s\n", n.Reference)
	fmt.Fprintf(&b, "Amount: %s\n", money(n.Amount, n.Currency))
	fmt.Fprintf(&b, "Fees: %s\n", money(n.Fees, n.Currency))
	fmt.Fprintf(&b, "Net amount: %s\n", money(n.NetAmount, n.Currency))
	fmt.Fprintf(&b, "Provider: %s\n", n.Provider)

	if n.BankDetails != nil {
		fmt.Fprintf(&b, "\nPaid to %s, account %s (%s)\n",
			n.BankDetails.BankName,
			n.BankDetails.MaskedAccountNumber(),
			n.BankDetails.AccountName,
		)
	}

	b.WriteString("\nThe ChainFund team\n")
	return subject, b.String()
}
