package models

import (
	"log"

	"github.com/zawadi/eventfund_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{}, &UserSettings{},
		&Event{}, &BudgetItem{}, &Task{},
		&ServiceProvider{}, &VendorPayment{},
		&Donor{}, &Pledge{},
		&MobileMoneyPayment{}, &ManualPayment{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
