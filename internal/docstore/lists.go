// Package docstore keeps signed-in users' carts and saved lists as MongoDB
// documents, one document per user and list.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection names match the storefront's original document layout
const (
	CartsCollection = "shoppingCarts"
	SavedCollection = "savedItems"
)

type itemDoc struct {
	ID            string `bson:"id"`
	Name          string `bson:"name"`
	ProductNumber string `bson:"product_number"`
	SizeID        string `bson:"size_id"`
	SizeName      string `bson:"size_name"`
	Price         string `bson:"price"`
	Quantity      int    `bson:"quantity"`
	ImageURL      string `bson:"image_url"`
}

type listDoc struct {
	UserID    string    `bson:"_id"`
	Items     []itemDoc `bson:"items"`
	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// ListStore implements the user list repository
type ListStore struct {
	db    *mongo.Database
	carts *mongo.Collection
	saved *mongo.Collection
}

func NewListStore(db *mongo.Database) *ListStore {
	return &ListStore{
		db:    db,
		carts: db.Collection(CartsCollection),
		saved: db.Collection(SavedCollection),
	}
}

// Ping checks connectivity for readiness probes
func (s *ListStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *ListStore) collection(kind models.ListKind) *mongo.Collection {
	if kind == models.ListSaved {
		return s.saved
	}
	return s.carts
}

// GetList returns the user's list, or an empty unversioned list when no
// document exists yet.
func (s *ListStore) GetList(ctx context.Context, ownerID string, kind models.ListKind) (*models.ItemList, error) {
	var doc listDoc
	err := s.collection(kind).FindOne(ctx, bson.M{"_id": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.NewItemList(ownerID, kind), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}

	items, err := fromItemDocs(doc.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s for %s: %w", kind, ownerID, err)
	}

	return &models.ItemList{
		OwnerID:   ownerID,
		Kind:      kind,
		Items:     items,
		Version:   doc.Version,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// PutList replaces the document when its version still equals list.Version.
func (s *ListStore) PutList(ctx context.Context, list *models.ItemList) error {
	now := time.Now().UTC()
	coll := s.collection(list.Kind)
	items := toItemDocs(list.Items)

	if list.Version == 0 {
		_, err := coll.InsertOne(ctx, listDoc{
			UserID:    list.OwnerID,
			Items:     items,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", list.Kind, err)
		}
	} else {
		filter := bson.M{"_id": list.OwnerID, "version": list.Version}
		update := bson.M{"$set": bson.M{
			"items":      items,
			"version":    list.Version + 1,
			"updated_at": now,
		}}
		res, err := coll.UpdateOne(ctx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", list.Kind, err)
		}
		if res.MatchedCount == 0 {
			return models.ErrVersionConflict
		}
	}

	list.Version++
	list.UpdatedAt = now
	return nil
}

func (s *ListStore) DeleteList(ctx context.Context, ownerID string, kind models.ListKind) error {
	if _, err := s.collection(kind).DeleteOne(ctx, bson.M{"_id": ownerID}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return nil
}

func toItemDocs(items []models.CartItem) []itemDoc {
	docs := make([]itemDoc, 0, len(items))
	for _, item := range items {
		docs = append(docs, itemDoc{
			ID:            item.ID,
			Name:          item.Name,
			ProductNumber: item.ProductNumber,
			SizeID:        item.SizeID,
			SizeName:      item.SizeName,
			Price:         item.Price.String(),
			Quantity:      item.Quantity,
			ImageURL:      item.ImageURL,
		})
	}
	return docs
}

// fromItemDocs defaults what older documents may lack: a missing price is zero
// and a non-positive quantity becomes 1.
func fromItemDocs(docs []itemDoc) ([]models.CartItem, error) {
	items := make([]models.CartItem, 0, len(docs))
	for _, doc := range docs {
		price := decimal.Zero
		if doc.Price != "" {
			p, err := decimal.NewFromString(doc.Price)
			if err != nil {
				return nil, fmt.Errorf("item %s: %w", doc.ID, err)
			}
			price = p
		}
		qty := doc.Quantity
		if qty < 1 {
			qty = 1
		}
		items = append(items, models.CartItem{
			ID:            doc.ID,
			Name:          doc.Name,
			ProductNumber: doc.ProductNumber,
			SizeID:        doc.SizeID,
			SizeName:      doc.SizeName,
			Price:         price,
			Quantity:      qty,
			ImageURL:      doc.ImageURL,
		})
	}
	return items, nil
}
