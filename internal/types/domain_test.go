package types

import "testing"

func TestDaysThreshold(t *testing.T) {
	cases := []struct {
		days int
		want ThresholdID
	}{
		{60, "60d"},
		{30, "30d"},
		{14, "14d"},
		{7, "7d"},
		{1, "1d"},
	}
	for _, tc := range cases {
		if got := DaysThreshold(tc.days); got != tc.want {
			t.Errorf("DaysThreshold(%d) = %s, want %s", tc.days, got, tc.want)
		}
	}
}

func TestReminderLedgerNilReadsAllFalse(t *testing.T) {
	var ledger ReminderLedger
	if ledger.Notified("60d") {
		t.Error("nil ledger reported a fired threshold")
	}
}

func TestReminderLedgerMarkNotified(t *testing.T) {
	ledger := ReminderLedger{}

	if !ledger.MarkNotified("60d") {
		t.Error("first mark should report a change")
	}
	if !ledger.Notified("60d") {
		t.Error("threshold not recorded as fired")
	}

	// Flags are monotonic; a second mark is a no-op.
	if ledger.MarkNotified("60d") {
		t.Error("second mark should report no change")
	}

	// Other thresholds are independent.
	if ledger.Notified("30d") {
		t.Error("unmarked threshold reported as fired")
	}
	if !ledger.MarkNotified("30d") {
		t.Error("independent threshold failed to mark")
	}
}

func TestNotificationStatusTerminal(t *testing.T) {
	cases := []struct {
		status NotificationStatus
		want   bool
	}{
		{NotificationPending, false},
		{NotificationSent, true},
		{NotificationFailed, true},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.want {
			t.Errorf("Terminal(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}
