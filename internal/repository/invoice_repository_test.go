package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

func TestInvoiceRepository_SaveFiscalDataUpserts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvoiceRepository(db)
	user := createTestUser(t, db, "ana@example.com", 0)

	fd := &models.FiscalData{UserID: user.ID, TaxID: "XAXX010101000", LegalName: "Ana SA"}
	if err := repo.SaveFiscalData(fd); err != nil {
		t.Fatalf("SaveFiscalData() failed: %v", err)
	}

	again := &models.FiscalData{UserID: user.ID, TaxID: "XAXX010101000", LegalName: "Ana SA de CV"}
	if err := repo.SaveFiscalData(again); err != nil {
		t.Fatalf("SaveFiscalData() update failed: %v", err)
	}
	if again.ID != fd.ID {
		t.Errorf("Expected the same record to be updated, got %d vs %d", again.ID, fd.ID)
	}

	items, _ := repo.ListFiscalData(user.ID)
	if len(items) != 1 || items[0].LegalName != "Ana SA de CV" {
		t.Errorf("Unexpected fiscal data: %+v", items)
	}

	latest, err := repo.LatestFiscalData(user.ID)
	if err != nil || latest.ID != fd.ID {
		t.Errorf("Unexpected latest fiscal data: %+v (%v)", latest, err)
	}

	if _, err := repo.LatestFiscalData(999); !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestInvoiceRepository_SearchAndListForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvoiceRepository(db)
	user := createTestUser(t, db, "ana@example.com", 0)
	d := createTestDonation(t, db, &user.ID, nil, "100", models.DonationCompleted, time.Now().UTC())

	fd := &models.FiscalData{UserID: user.ID, TaxID: "XAXX010101000", LegalName: "Ana SA"}
	if err := repo.SaveFiscalData(fd); err != nil {
		t.Fatalf("SaveFiscalData() failed: %v", err)
	}

	inv := &models.Invoice{
		DonationID:   d.ID,
		FiscalDataID: fd.ID,
		Number:       "FAC-2024-00001",
		IssuedAt:     time.Now().UTC(),
		Subtotal:     d.Amount,
		Total:        d.Amount,
		Taxes:        decimal.Zero,
		PDFURL:       "/storage/facturas/FAC-2024-00001.pdf",
		State:        models.InvoiceIssued,
	}
	if err := repo.Create(inv); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	found, total, err := repo.Search("xaxx", Pagination{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if total != 1 || found[0].Number != "FAC-2024-00001" {
		t.Errorf("Unexpected search result: %+v", found)
	}

	mine, total, err := repo.ListForUser(user.ID, Pagination{Page: 1, Limit: 10})
	if err != nil || total != 1 || len(mine) != 1 {
		t.Errorf("Expected one invoice for user, got %d (%v)", total, err)
	}

	duplicate := *inv
	duplicate.ID = 0
	duplicate.Number = "FAC-2024-00002"
	if err := repo.Create(&duplicate); !IsDuplicate(err) {
		t.Errorf("Expected duplicate error for a second invoice on the same donation, got %v", err)
	}
}
