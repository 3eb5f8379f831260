// funding-status-rebuild recomputes every denormalized funding flag
// (event is_funded, budget item is_funded, pledge total_paid/is_fulfilled,
// vendor payment confirmed) from the raw transaction streams. Run after
// manual data surgery; the normal write paths keep these current on their
// own.
//
// Usage:
//
//	go run ./cmd/funding-status-rebuild            # all owners
//	go run ./cmd/funding-status-rebuild -owner 42  # one owner
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/models"
	"github.com/zawadi/eventfund_backend/utils"
)

func main() {
	ownerFlag := flag.Int("owner", 0, "rebuild a single owner id (default: all owners)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx := utils.SetSkipOwnerScopeInContext(context.Background(), true)

	var ownerIds []int
	if *ownerFlag > 0 {
		ownerIds = []int{*ownerFlag}
	} else {
		if err := db.WithContext(ctx).Model(&models.User{}).Pluck("id", &ownerIds).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to list owners: %v\n", err)
			os.Exit(1)
		}
	}

	failed := 0
	for _, ownerId := range ownerIds {
		ownerCtx := utils.SetUserIdInContext(ctx, ownerId)
		if err := models.RebuildOwnerFundingStatus(ownerCtx, ownerId); err != nil {
			fmt.Fprintf(os.Stderr, "owner %d: rebuild failed: %v\n", ownerId, err)
			failed++
			continue
		}
		fmt.Printf("owner %d: rebuilt\n", ownerId)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
