package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// A pledge created without an explicit donor must pick up the registered
// donor for its phone number.
func TestCreatePledgeLinksDonorByPhone(t *testing.T) {
	ctx := setupFundingOwner(t)

	event, err := CreateEvent(ctx, &NewEvent{
		Name:        "Harambee",
		TotalBudget: decimal.RequireFromString("10000"),
		EventDate:   time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	donor, err := CreateDonor(ctx, &NewDonor{
		Name:        "Wanjiku",
		PhoneNumber: "+254712345678",
	})
	if err != nil {
		t.Fatalf("CreateDonor: %v", err)
	}

	pledge, err := CreatePledge(ctx, &NewPledge{
		EventId:       event.ID,
		Name:          "Wanjiku",
		PhoneNumber:   "0712345678",
		AmountPledged: decimal.RequireFromString("2000"),
	})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}
	if pledge.DonorId == nil || *pledge.DonorId != donor.ID {
		t.Fatalf("pledge should link donor %d, got %v", donor.ID, pledge.DonorId)
	}
}
