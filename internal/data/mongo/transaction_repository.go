package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	"github.com/pi-escrow-ledger/internal/security"
)

const (
	// TransactionCollectionName is the name of the transaction collection in MongoDB
	TransactionCollectionName = "transactions"
)

// transactionDocument is the stored shape of a transaction. Buyer, seller,
// amount and the ledger reference are also kept sealed in Sealed; the
// plaintext copies exist only for indexing and reporting.
type transactionDocument struct {
	ID        string                    `bson:"_id"`
	Type      transaction.Type          `bson:"type"`
	Amount    decimal.Decimal           `bson:"amount"`
	Status    payment.Status            `bson:"status"`
	BuyerID   string                    `bson:"buyer_id"`
	SellerID  string                    `bson:"seller_id"`
	ListingID string                    `bson:"listing_id"`
	PaymentID string                    `bson:"payment_id"`
	EscrowID  string                    `bson:"escrow_id,omitempty"`
	Market    transaction.MarketContext `bson:"market"`
	Details   transaction.Details       `bson:"details"`
	Metadata  transaction.Metadata      `bson:"metadata"`
	Sealed    []byte                    `bson:"sealed"`
	CreatedAt time.Time                 `bson:"created_at"`
}

type sealedFields struct {
	BuyerID           string          `json:"buyer_id"`
	SellerID          string          `json:"seller_id"`
	Amount            decimal.Decimal `json:"amount"`
	ExternalLedgerRef string          `json:"external_ledger_ref,omitempty"`
}

// TransactionRepository implements the transaction.Repository interface for MongoDB
type TransactionRepository struct {
	db     *mongo.Database
	cipher security.Cipher
	logger *slog.Logger
}

// NewTransactionRepository creates a new MongoDB transaction repository
func NewTransactionRepository(logger *slog.Logger, db *mongo.Database, cipher security.Cipher) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		cipher: cipher,
		logger: logger,
	}
}

func (r *TransactionRepository) collection() *mongo.Collection {
	return r.db.Collection(TransactionCollectionName)
}

// EnsureIndexes creates the secondary indexes used by payment lookups and
// the archival sweep.
func (r *TransactionRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "payment_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.is_archived", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "buyer_id", Value: 1}}},
	}
	if _, err := r.collection().Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}
	return nil
}

// Create inserts the transaction. Returns ErrDuplicateTransaction if the id
// is already recorded.
func (r *TransactionRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	doc, err := r.toDocument(tx)
	if err != nil {
		return err
	}

	if _, err := r.collection().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return transaction.ErrDuplicateTransaction{TransactionID: tx.ID}
		}
		r.logger.Error("Failed to create transaction",
			"transaction_id", tx.ID.String(),
			"payment_id", tx.PaymentID.String(),
			"error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction. Returns NotFoundError if it does not exist.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	var doc transactionDocument
	err := r.collection().FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, shared.NotFoundError{Resource: "transaction", ID: id.String()}
		}
		r.logger.Error("Failed to get transaction", "transaction_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return r.fromDocument(&doc)
}

// ListByPaymentID returns every transaction recorded for a payment, oldest first.
func (r *TransactionRepository) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, bson.M{"payment_id": paymentID.String()}, opts)
}

// AppendAudit pushes entry unless an entry with the same id is already in
// the trail.
func (r *TransactionRepository) AppendAudit(ctx context.Context, id uuid.UUID, entry transaction.AuditEntry) error {
	filter := bson.M{
		"_id":                     id.String(),
		"metadata.audit_trail.id": bson.M{"$ne": entry.ID},
	}
	update := bson.M{"$push": bson.M{"metadata.audit_trail": entry}}

	result, err := r.collection().UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			"transaction_id", id.String(),
			"action", string(entry.Action),
			"error", err)
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Either the entry is already there or the transaction is missing.
	count, err := r.collection().CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to check transaction existence: %w", err)
	}
	if count == 0 {
		return shared.NotFoundError{Resource: "transaction", ID: id.String()}
	}
	return nil
}

// ListArchivalCandidates returns unarchived transactions created before
// createdBefore, oldest first.
func (r *TransactionRepository) ListArchivalCandidates(ctx context.Context, createdBefore time.Time, limit int) ([]*transaction.Transaction, error) {
	filter := bson.M{
		"metadata.is_archived": false,
		"created_at":           bson.M{"$lt": createdBefore},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, filter, opts)
}

// MarkArchived flags the transaction archived and records the ARCHIVED audit
// entry. Only unarchived documents match, so a second call reports false.
func (r *TransactionRepository) MarkArchived(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	filter := bson.M{"_id": id.String(), "metadata.is_archived": false}
	update := bson.M{
		"$set": bson.M{
			"metadata.is_archived":   true,
			"metadata.archival_date": at,
		},
		"$push": bson.M{"metadata.audit_trail": transaction.ArchivalEntry(id, at)},
	}

	result, err := r.collection().UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to archive transaction", "transaction_id", id.String(), "error", err)
		return false, fmt.Errorf("failed to archive transaction: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

// DeleteExpired removes archived transactions created before createdBefore.
func (r *TransactionRepository) DeleteExpired(ctx context.Context, createdBefore time.Time) (int64, error) {
	filter := bson.M{
		"metadata.is_archived": true,
		"created_at":           bson.M{"$lt": createdBefore},
	}

	result, err := r.collection().DeleteMany(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to delete expired transactions", "created_before", createdBefore, "error", err)
		return 0, fmt.Errorf("failed to delete expired transactions: %w", err)
	}

	return result.DeletedCount, nil
}

func (r *TransactionRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*transaction.Transaction, error) {
	cursor, err := r.collection().Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to query transactions", "error", err)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []transactionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode transactions", "error", err)
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}

	txs := make([]*transaction.Transaction, 0, len(docs))
	for i := range docs {
		tx, err := r.fromDocument(&docs[i])
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (r *TransactionRepository) toDocument(tx *transaction.Transaction) (*transactionDocument, error) {
	plain, err := json.Marshal(sealedFields{
		BuyerID:           tx.BuyerID,
		SellerID:          tx.SellerID,
		Amount:            tx.Amount,
		ExternalLedgerRef: tx.Metadata.ExternalLedgerRef,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sealed fields: %w", err)
	}
	sealed, err := r.cipher.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt transaction fields: %w", err)
	}

	doc := &transactionDocument{
		ID:        tx.ID.String(),
		Type:      tx.Type,
		Amount:    tx.Amount,
		Status:    tx.Status,
		BuyerID:   tx.BuyerID,
		SellerID:  tx.SellerID,
		ListingID: tx.ListingID,
		PaymentID: tx.PaymentID.String(),
		Market:    tx.Market,
		Details:   tx.Details,
		Metadata:  tx.Metadata,
		Sealed:    sealed,
		CreatedAt: tx.CreatedAt,
	}
	if tx.EscrowID != nil {
		doc.EscrowID = tx.EscrowID.String()
	}
	return doc, nil
}

func (r *TransactionRepository) fromDocument(doc *transactionDocument) (*transaction.Transaction, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction id %q: %w", doc.ID, err)
	}
	paymentID, err := uuid.Parse(doc.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("invalid payment id %q: %w", doc.PaymentID, err)
	}

	plain, err := r.cipher.Decrypt(doc.Sealed)
	if err != nil {
		r.logger.Error("Failed to decrypt transaction fields", "transaction_id", doc.ID, "error", err)
		return nil, err
	}
	var sealed sealedFields
	if err := json.Unmarshal(plain, &sealed); err != nil {
		return nil, shared.DecryptionFailedError{Reason: "malformed sealed fields"}
	}

	tx := &transaction.Transaction{
		ID:        id,
		Type:      doc.Type,
		Amount:    sealed.Amount,
		Status:    doc.Status,
		BuyerID:   sealed.BuyerID,
		SellerID:  sealed.SellerID,
		ListingID: doc.ListingID,
		PaymentID: paymentID,
		Market:    doc.Market,
		Details:   doc.Details,
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt,
	}
	tx.Metadata.ExternalLedgerRef = sealed.ExternalLedgerRef
	if doc.EscrowID != "" {
		escrowID, err := uuid.Parse(doc.EscrowID)
		if err != nil {
			return nil, fmt.Errorf("invalid escrow id %q: %w", doc.EscrowID, err)
		}
		tx.EscrowID = &escrowID
	}
	return tx, nil
}
