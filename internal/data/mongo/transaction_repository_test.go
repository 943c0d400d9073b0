package mongo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	"github.com/pi-escrow-ledger/internal/platform/persistence"
	"github.com/pi-escrow-ledger/internal/security"
)

func newMockMongo(t *testing.T) *mtest.T {
	clientOpts := options.Client().SetRegistry(persistence.NewBSONRegistry())
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock).ClientOptions(clientOpts))
}

func newTestRepository(t *testing.T, mt *mtest.T) *TransactionRepository {
	cipher, err := security.NewCipherFromKey([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTransactionRepository(logger, mt.DB, cipher)
}

func testTransaction(t *testing.T) *transaction.Transaction {
	paymentID := uuid.New()
	occurred := time.Date(2024, 5, 15, 11, 0, 0, 0, time.UTC)
	tx, err := transaction.New(transaction.CreateRequest{
		ID:        transaction.DeriveID(paymentID, transaction.TypePurchase, "completed"),
		Type:      transaction.TypePurchase,
		Amount:    decimal.RequireFromString("1500"),
		Status:    payment.StatusCompleted,
		BuyerID:   "buyer-1",
		SellerID:  "seller-1",
		ListingID: "listing-1",
		PaymentID: paymentID,
		Market: transaction.MarketContext{
			AmountEGP:    decimal.RequireFromString("46875"),
			ExchangeRate: decimal.RequireFromString("31.25"),
			Jurisdiction: "EG",
		},
		Details:           transaction.Details{Purchase: &transaction.PurchaseDetails{ListingID: "listing-1"}},
		ExternalLedgerRef: "pi-tx-987",
		OccurredAt:        occurred,
	}, transaction.CategoryThresholds{
		HighValue:   decimal.NewFromInt(10000),
		MediumValue: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	return tx
}

// storedDocument renders tx the way the repository writes it, as a mock
// server reply document.
func storedDocument(t *testing.T, repo *TransactionRepository, tx *transaction.Transaction) bson.D {
	doc, err := repo.toDocument(tx)
	require.NoError(t, err)
	raw, err := bson.MarshalWithRegistry(persistence.NewBSONRegistry(), doc)
	require.NoError(t, err)
	var d bson.D
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func TestTransactionRepository_Create(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("success", func(mt *mtest.T) {
		repo := newTestRepository(mt.T, mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		assert.NoError(mt, repo.Create(context.Background(), testTransaction(mt.T)))
	})

	mt.Run("duplicate id", func(mt *mtest.T) {
		repo := newTestRepository(mt.T, mt)
		tx := testTransaction(mt.T)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := repo.Create(context.Background(), tx)
		assert.True(mt, errors.Is(err, transaction.ErrDuplicateTransaction{TransactionID: tx.ID}))
	})
}

func TestTransactionRepository_GetByID(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("decrypts sealed fields", func(mt *mtest.T) {
		repo := newTestRepository(mt.T, mt)
		tx := testTransaction(mt.T)
		ns := mt.DB.Name() + "." + TransactionCollectionName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, storedDocument(mt.T, repo, tx)))

		got, err := repo.GetByID(context.Background(), tx.ID)
		require.NoError(mt, err)
		assert.Equal(mt, tx.ID, got.ID)
		assert.Equal(mt, tx.PaymentID, got.PaymentID)
		assert.Equal(mt, "buyer-1", got.BuyerID)
		assert.Equal(mt, "pi-tx-987", got.Metadata.ExternalLedgerRef)
		assert.True(mt, tx.Amount.Equal(got.Amount))
		assert.Equal(mt, transaction.CategoryMediumValue, got.Metadata.RegulatoryCategory)
		require.Len(mt, got.Metadata.AuditTrail, 1)
		assert.Equal(mt, transaction.ActionCreated, got.Metadata.AuditTrail[0].Action)
		require.NotNil(mt, got.Details.Purchase)
		assert.Equal(mt, "listing-1", got.Details.Purchase.ListingID)
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := newTestRepository(mt.T, mt)
		ns := mt.DB.Name() + "." + TransactionCollectionName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		id := uuid.New()
		got, err := repo.GetByID(context.Background(), id)
		assert.Nil(mt, got)
		assert.True(mt, errors.Is(err, shared.NotFoundError{Resource: "transaction", ID: id.String()}))
	})
}

func TestTransactionRepository_AppendAudit(t *testing.T) {
	mt := newMockMongo(t)
	entry := transaction.NewAuditEntry(transaction.ActionStatusChanged, "buyer-1", "COMPLETED", time.Now().UTC())

	mt.Run("appended", func(mt *mtest.T) {
		repo := newTestRepository(mt.T, mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		assert.NoError(mt, repo.AppendAudit(context.Background(), uuid.New(), entry))
	})

	mt.Run("entry already present", func(mt *mtest.T) {
		repo := newTestRepository(mt.T, mt)
		ns := mt.DB.Name() + "." + TransactionCollectionName
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}),
		)

		assert.NoError(mt, repo.AppendAudit(context.Background(), uuid.New(), entry))
	})

	mt.Run("missing transaction", func(mt *mtest.T) {
		repo := newTestRepository(mt.T, mt)
		ns := mt.DB.Name() + "." + TransactionCollectionName
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		err := repo.AppendAudit(context.Background(), uuid.New(), entry)
		assert.True(mt, errors.Is(err, shared.NotFoundError{Resource: "transaction"}))
	})
}

func TestTransactionRepository_MarkArchived(t *testing.T) {
	mt := newMockMongo(t)
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		modified int
		want     bool
	}{
		{name: "archived now", modified: 1, want: true},
		{name: "already archived", modified: 0, want: false},
	}

	for _, tt := range tests {
		mt.Run(tt.name, func(mt *mtest.T) {
			repo := newTestRepository(mt.T, mt)
			mt.AddMockResponses(mtest.CreateSuccessResponse(
				bson.E{Key: "n", Value: tt.modified},
				bson.E{Key: "nModified", Value: tt.modified},
			))

			archived, err := repo.MarkArchived(context.Background(), uuid.New(), at)
			require.NoError(mt, err)
			assert.Equal(mt, tt.want, archived)

			// the ARCHIVED audit entry travels in the same update
			started := mt.GetStartedEvent()
			require.NotNil(mt, started)
			_, err = started.Command.LookupErr("updates", "0", "u", "$push", "metadata.audit_trail")
			assert.NoError(mt, err)
		})
	}
}

func TestTransactionRepository_DeleteExpired(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("reports deleted count", func(mt *mtest.T) {
		repo := newTestRepository(mt.T, mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}))

		deleted, err := repo.DeleteExpired(context.Background(), time.Now().AddDate(-7, 0, 0))
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), deleted)
	})
}
