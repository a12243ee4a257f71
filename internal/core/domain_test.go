package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRecordValidate(t *testing.T) {
	good := Record{
		Category:  CategoryFood,
		Amount:    decimal.NewFromInt(10),
		CreatedAt: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	noCategory := good
	noCategory.Category = " "
	if err := noCategory.Validate(); err != ErrEmptyCategory {
		t.Fatalf("expected ErrEmptyCategory, got %v", err)
	}

	noDate := good
	noDate.CreatedAt = time.Time{}
	if err := noDate.Validate(); err != ErrMissingCreated {
		t.Fatalf("expected ErrMissingCreated, got %v", err)
	}

	negative := good
	negative.Amount = decimal.NewFromInt(-1)
	if err := negative.Validate(); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestContributorLabel(t *testing.T) {
	cases := []struct {
		c    Contributor
		want string
	}{
		{Contributor{Name: "Julinda", UserID: "u1"}, "Julinda"},
		{Contributor{UserID: "u2"}, "u2"},
		{Contributor{}, "Sin nombre"},
	}
	for _, tc := range cases {
		if got := tc.c.Label(); got != tc.want {
			t.Fatalf("Label() = %q, want %q", got, tc.want)
		}
	}
}

func TestCategoryTable(t *testing.T) {
	cats := Categories()
	if len(cats) != 7 {
		t.Fatalf("expected 7 categories, got %d", len(cats))
	}
	if cats[0] != CategoryFood || cats[6] != CategoryVladimir {
		t.Fatalf("unexpected category order: %v", cats)
	}
	for _, c := range cats {
		info, ok := LookupCategory(c)
		if !ok {
			t.Fatalf("category %s missing from table", c)
		}
		if info.Emoji == "" || len(info.Color) != 6 {
			t.Fatalf("category %s has incomplete presentation: %+v", c, info)
		}
	}
	if Category("Viajes").Known() {
		t.Fatal("unknown category reported as known")
	}
	if got := Category("Viajes").Emoji(); got != DefaultEmoji {
		t.Fatalf("unknown emoji = %q, want %q", got, DefaultEmoji)
	}
}

func TestChatBindingAndMarkValidate(t *testing.T) {
	if err := (ChatBinding{}).Validate(); err != ErrInvalidChatID {
		t.Fatalf("expected ErrInvalidChatID, got %v", err)
	}
	if err := (ChatBinding{ChatID: 42}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (DeliveryMark{}).Validate(); err != ErrEmptyPeriodKey {
		t.Fatalf("expected ErrEmptyPeriodKey, got %v", err)
	}
}
