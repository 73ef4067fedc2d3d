package mappers

import (
	"github.com/storesync/storesync/internal/domain/ledger"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/persistence/models"
)

func LedgerEntryToModel(e *ledger.Entry) *models.LedgerEntryModel {
	return &models.LedgerEntryModel{
		ID:            e.ID(),
		TransactionID: e.TransactionID(),
		UserID:        e.UserID(),
		PlanID:        e.PlanID(),
		Platform:      e.Platform().String(),
		AnchorID:      e.AnchorID(),
		Environment:   e.Environment().String(),
		Status:        string(e.Status()),
		Amount:        e.Amount(),
		Currency:      e.Currency(),
		PaidAt:        e.PaidAt(),
		RefundedAt:    e.RefundedAt(),
		CreatedAt:     e.CreatedAt(),
		UpdatedAt:     e.UpdatedAt(),
	}
}

func LedgerEntryToEntity(m *models.LedgerEntryModel) (*ledger.Entry, error) {
	return ledger.ReconstructEntry(m.ID, ledger.EntryParams{
		TransactionID: m.TransactionID,
		UserID:        m.UserID,
		PlanID:        m.PlanID,
		Platform:      vo.DeviceType(m.Platform),
		AnchorID:      m.AnchorID,
		Environment:   vo.Environment(m.Environment),
		Amount:        m.Amount,
		Currency:      m.Currency,
		PaidAt:        m.PaidAt.UTC(),
	}, ledger.Status(m.Status), utcPtr(m.RefundedAt), m.CreatedAt, m.UpdatedAt)
}
