package workflow

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/models"
	"github.com/zawadi/eventfund_backend/utils"
)

// Regression test against a real MySQL instance. Skipped unless
// INTEGRATION_TESTS=1 and the DB_* environment is set.
func TestProcessMobileMoneyNotification_Regression(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	logger := config.GetLogger()

	suffix := time.Now().UnixNano()
	username := fmt.Sprintf("recon_%d", suffix)
	shortCode := fmt.Sprintf("%d", suffix%10000000)

	user, err := models.RegisterUser(context.Background(), &models.NewUser{
		Username: username,
		Password: "test-password",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	ctx := utils.SetUserIdInContext(context.Background(), user.ID)

	if _, err := models.UpdateUserSettings(ctx, &models.UpdateUserSettingsInput{
		MpesaPaybillNumber: &shortCode,
	}); err != nil {
		t.Fatalf("UpdateUserSettings: %v", err)
	}

	event, err := models.CreateEvent(ctx, &models.NewEvent{
		Name:        "Harambee",
		TotalBudget: decimal.RequireFromString("10000"),
		EventDate:   time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	phone := "+254712345678"
	if _, err := models.CreatePledge(ctx, &models.NewPledge{
		EventId:       event.ID,
		Name:          "Wanjiku",
		PhoneNumber:   phone,
		AmountPledged: decimal.RequireFromString("5000"),
	}); err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}

	payload := &MobileMoneyNotification{
		TransactionId:    fmt.Sprintf("TX%d", suffix),
		PhoneNumber:      phone,
		Amount:           "KES 3,000",
		ShortCode:        shortCode,
		AccountReference: fmt.Sprintf("EVT-%d", event.ID),
	}

	first, err := ProcessMobileMoneyNotification(ctx, logger, payload)
	if err != nil {
		t.Fatalf("first notification: %v", err)
	}
	if !first.Matched || first.PledgeId == nil {
		t.Fatal("payment should have matched the pledge")
	}

	// The gateway retries: same transaction id must not apply twice.
	second, err := ProcessMobileMoneyNotification(ctx, logger, payload)
	if err != nil {
		t.Fatalf("retried notification: %v", err)
	}
	if !second.AlreadyProcessed {
		t.Fatal("retry should report already-processed")
	}

	pledge, err := models.GetPledge(ctx, *first.PledgeId)
	if err != nil {
		t.Fatalf("GetPledge: %v", err)
	}
	if pledge.TotalPaid.StringFixed(2) != "3000.00" {
		t.Fatalf("pledge total_paid expected 3000.00, got %s", pledge.TotalPaid.StringFixed(2))
	}
	if pledge.IsFulfilled {
		t.Fatal("pledge must not be fulfilled at 3000 of 5000")
	}

	refreshed, err := models.GetEvent(ctx, event.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if refreshed.IsFunded {
		t.Fatal("event must not be funded at 3000 of 10000")
	}

	metrics, err := refreshed.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if metrics.TotalReceived.StringFixed(2) != "3000.00" {
		t.Fatalf("total received expected 3000.00, got %s", metrics.TotalReceived.StringFixed(2))
	}
	if metrics.PercentageCovered.String() != "60" {
		t.Fatalf("percentage covered expected 60, got %s", metrics.PercentageCovered.String())
	}
}

// Distinct notifications for one owner arriving at the same time must each
// be applied exactly once with consistent totals: GET_LOCK and the posting
// writes run on the same tx connection, so two workers cannot interleave
// inside the apply step.
func TestProcessMobileMoneyNotification_ConcurrentDeliveries(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	logger := config.GetLogger()

	suffix := time.Now().UnixNano()
	shortCode := fmt.Sprintf("%d", suffix%10000000)

	user, err := models.RegisterUser(context.Background(), &models.NewUser{
		Username: fmt.Sprintf("recon_cc_%d", suffix),
		Password: "test-password",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	ctx := utils.SetUserIdInContext(context.Background(), user.ID)

	if _, err := models.UpdateUserSettings(ctx, &models.UpdateUserSettingsInput{
		MpesaPaybillNumber: &shortCode,
	}); err != nil {
		t.Fatalf("UpdateUserSettings: %v", err)
	}

	event, err := models.CreateEvent(ctx, &models.NewEvent{
		Name:        "Harambee",
		TotalBudget: decimal.RequireFromString("10000"),
		EventDate:   time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	const workers = 6
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := ProcessMobileMoneyNotification(ctx, logger, &MobileMoneyNotification{
				TransactionId:    fmt.Sprintf("TXC%d-%d", suffix, n),
				PhoneNumber:      "0712345678",
				Amount:           500,
				ShortCode:        shortCode,
				AccountReference: fmt.Sprintf("EVT-%d", event.ID),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ProcessMobileMoneyNotification: %v", err)
		}
	}

	refreshed, err := models.GetEvent(ctx, event.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	metrics, err := refreshed.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if metrics.TotalReceived.StringFixed(2) != "3000.00" {
		t.Fatalf("total received expected 3000.00, got %s", metrics.TotalReceived.StringFixed(2))
	}
}
