package valueobject

import "testing"

func TestTransactionStatusTransitions(t *testing.T) {
	cases := []struct {
		from    TransactionStatus
		to      TransactionStatus
		allowed bool
	}{
		{TransactionStatusPending, TransactionStatusAccepted, true},
		{TransactionStatusPending, TransactionStatusCancelled, true},
		{TransactionStatusPending, TransactionStatusFunded, false},
		{TransactionStatusAccepted, TransactionStatusFunded, true},
		{TransactionStatusAccepted, TransactionStatusDelivered, false},
		{TransactionStatusFunded, TransactionStatusDelivered, true},
		{TransactionStatusFunded, TransactionStatusDisputed, true},
		{TransactionStatusFunded, TransactionStatusCancelled, false},
		{TransactionStatusDelivered, TransactionStatusCompleted, true},
		{TransactionStatusDelivered, TransactionStatusDisputed, true},
		{TransactionStatusDisputed, TransactionStatusCompleted, true},
		{TransactionStatusDisputed, TransactionStatusRefunded, true},
		{TransactionStatusCompleted, TransactionStatusDisputed, false},
		{TransactionStatusCancelled, TransactionStatusAccepted, false},
		{TransactionStatusRefunded, TransactionStatusCompleted, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: ожидали %v, получили %v", c.from, c.to, c.allowed, got)
		}
	}
}

func TestTransactionStatusTerminal(t *testing.T) {
	terminal := []TransactionStatus{TransactionStatusCompleted, TransactionStatusCancelled, TransactionStatusRefunded}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s должен быть терминальным", s)
		}
	}
	if TransactionStatusDisputed.IsTerminal() {
		t.Error("disputed не терминальный статус")
	}
}

func TestNewTransactionStatus(t *testing.T) {
	if _, err := NewTransactionStatus("funded"); err != nil {
		t.Fatalf("funded валиден, получили ошибку: %v", err)
	}
	if _, err := NewTransactionStatus("paid"); err == nil {
		t.Fatal("неизвестный статус должен отклоняться")
	}
}

func TestMilestoneStatusTransitions(t *testing.T) {
	cases := []struct {
		from    MilestoneStatus
		to      MilestoneStatus
		allowed bool
	}{
		{MilestoneStatusPending, MilestoneStatusInProgress, true},
		{MilestoneStatusPending, MilestoneStatusSubmitted, true},
		{MilestoneStatusPending, MilestoneStatusApproved, false},
		{MilestoneStatusInProgress, MilestoneStatusSubmitted, true},
		{MilestoneStatusSubmitted, MilestoneStatusApproved, true},
		{MilestoneStatusSubmitted, MilestoneStatusReleased, false},
		{MilestoneStatusApproved, MilestoneStatusReleased, true},
		{MilestoneStatusReleased, MilestoneStatusApproved, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: ожидали %v, получили %v", c.from, c.to, c.allowed, got)
		}
	}
}

func TestDisputeResolutionIsValid(t *testing.T) {
	for _, r := range []DisputeResolution{DisputeResolutionRelease, DisputeResolutionRefund, DisputeResolutionSplit} {
		if !r.IsValid() {
			t.Errorf("%s должно быть валидным решением", r)
		}
	}
	if DisputeResolution("partial").IsValid() {
		t.Error("неизвестное решение не должно проходить проверку")
	}
}
