package reports

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"github.com/zawadi/eventfund_backend/models"
	"github.com/zawadi/eventfund_backend/utils"
)

// ExportPledges writes the organizer's pledge register as an xlsx workbook,
// optionally scoped to one event.
func ExportPledges(ctx context.Context, w io.Writer, eventId *int) error {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return errors.New("user id is required")
	}

	pledges, err := models.GetPledges(ctx, eventId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Pledges"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headers := []string{"Name", "Phone Number", "Event", "Amount Pledged", "Total Paid", "Balance", "Fulfilled", "Created"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	eventNames := map[int]string{}
	for i, p := range pledges {
		name, known := eventNames[p.EventId]
		if !known {
			event, err := models.GetEvent(ctx, p.EventId)
			if err == nil {
				name = event.Name
			}
			eventNames[p.EventId] = name
		}

		row := i + 2
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), p.Name)
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), p.PhoneNumber)
		f.SetCellValue(sheet, "C"+fmt.Sprint(row), name)
		f.SetCellValue(sheet, "D"+fmt.Sprint(row), p.AmountPledged.StringFixed(2))
		f.SetCellValue(sheet, "E"+fmt.Sprint(row), p.TotalPaid.StringFixed(2))
		f.SetCellValue(sheet, "F"+fmt.Sprint(row), p.Balance().StringFixed(2))
		f.SetCellValue(sheet, "G"+fmt.Sprint(row), p.IsFulfilled)
		f.SetCellValue(sheet, "H"+fmt.Sprint(row), p.CreatedAt.Format("2006-01-02"))
	}

	return f.Write(w)
}
