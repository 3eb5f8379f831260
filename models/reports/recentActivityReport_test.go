package reports

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/models"
	"github.com/zawadi/eventfund_backend/utils"
)

func setupReportOwner(t *testing.T) context.Context {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	username := fmt.Sprintf("report_%d", time.Now().UnixNano())
	user, err := models.RegisterUser(context.Background(), &models.NewUser{
		Username: username,
		Password: "test-password",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	return utils.SetUserIdInContext(context.Background(), user.ID)
}

// Vendor payments hang off budget items rather than events directly; the
// activity feed must resolve the event through the item so the entry links
// like every other kind.
func TestRecentActivityVendorPaymentCarriesEventId(t *testing.T) {
	ctx := setupReportOwner(t)

	event, err := models.CreateEvent(ctx, &models.NewEvent{
		Name:        "Gala",
		TotalBudget: decimal.RequireFromString("10000"),
		EventDate:   time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	item, err := models.CreateBudgetItem(ctx, &models.NewBudgetItem{
		EventId:         event.ID,
		Category:        "Catering",
		EstimatedBudget: decimal.RequireFromString("5000"),
	})
	if err != nil {
		t.Fatalf("CreateBudgetItem: %v", err)
	}
	provider, err := models.CreateServiceProvider(ctx, &models.NewServiceProvider{
		BudgetItemId:  item.ID,
		Name:          "Mama Njeri Catering",
		AmountCharged: decimal.RequireFromString("3000"),
	})
	if err != nil {
		t.Fatalf("CreateServiceProvider: %v", err)
	}
	if _, err := models.CreateVendorPayment(ctx, &models.NewVendorPayment{
		ServiceProviderId: provider.ID,
		Amount:            decimal.RequireFromString("1000"),
		PaymentMethod:     models.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("CreateVendorPayment: %v", err)
	}

	entries, err := GetRecentActivity(ctx)
	if err != nil {
		t.Fatalf("GetRecentActivity: %v", err)
	}
	var found bool
	for _, e := range entries {
		if e.Kind == "vendor_payment" {
			found = true
			if e.EventId != event.ID {
				t.Fatalf("vendor payment entry event_id expected %d, got %d", event.ID, e.EventId)
			}
		}
	}
	if !found {
		t.Fatal("expected a vendor_payment entry in the activity feed")
	}
}
