package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "valid uppercase", input: "SENT", want: StatusSent},
		{name: "valid lowercase with spaces", input: " draft ", want: StatusDraft},
		{name: "invalid", input: "archived", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseDecisionFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseDecisionFromString(" accept ")
	if err != nil {
		t.Fatalf("ParseDecisionFromString() unexpected error = %v", err)
	}
	if got != DecisionAccept {
		t.Fatalf("ParseDecisionFromString() = %s, want %s", got, DecisionAccept)
	}
	if got.Status() != StatusAccepted {
		t.Fatalf("Status() = %s, want %s", got.Status(), StatusAccepted)
	}

	_, err = ParseDecisionFromString("maybe")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseDecisionFromString() error = %v, want ErrValidation", err)
	}
}

func TestQuotationCanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "sent to viewed", from: StatusSent, to: StatusViewed, want: true},
		{name: "draft to viewed", from: StatusDraft, to: StatusViewed, want: false},
		{name: "viewed to viewed", from: StatusViewed, to: StatusViewed, want: false},
		{name: "sent to accepted", from: StatusSent, to: StatusAccepted, want: true},
		{name: "viewed to rejected", from: StatusViewed, to: StatusRejected, want: true},
		{name: "draft to accepted", from: StatusDraft, to: StatusAccepted, want: false},
		{name: "accepted is terminal", from: StatusAccepted, to: StatusViewed, want: false},
		{name: "rejected is terminal", from: StatusRejected, to: StatusSent, want: false},
		{name: "resend stays sent", from: StatusSent, to: StatusSent, want: true},
		{name: "viewed re-enters sent on resend", from: StatusViewed, to: StatusSent, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := Quotation{Status: tt.from}
			if got := q.CanTransitionTo(tt.to); got != tt.want {
				t.Fatalf("CanTransitionTo(%s) from %s = %v, want %v", tt.to, tt.from, got, tt.want)
			}
		})
	}
}

func TestQuotationIsExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	q := Quotation{ValidUntil: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)}
	if !q.IsExpired(now) {
		t.Error("quotation valid until yesterday should be expired")
	}

	q.ValidUntil = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if q.IsExpired(now) {
		t.Error("quotation valid until today should not be expired")
	}

	q.ValidUntil = time.Time{}
	if q.IsExpired(now) {
		t.Error("quotation without validity date never expires")
	}
}

func TestQuotationEditable(t *testing.T) {
	t.Parallel()

	q := Quotation{Status: StatusDraft}
	if !q.Editable() {
		t.Error("draft quotation should be editable")
	}

	q.ApprovalLocked = true
	if q.Editable() {
		t.Error("approval-locked quotation must not be editable")
	}

	q = Quotation{Status: StatusSent}
	if q.Editable() {
		t.Error("sent quotation must not be editable")
	}
}
