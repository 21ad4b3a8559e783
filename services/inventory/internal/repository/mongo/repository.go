package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/shestoi/storefront/services/inventory/internal/repository"
)

const (
	stateReserved = "reserved"
	stateReleased = "released"
)

// productDocument документ коллекции products
type productDocument struct {
	ID    int64                `bson:"_id"`
	Name  string               `bson:"name"`
	Price primitive.Decimal128 `bson:"price"`
}

// stockDocument документ коллекции stock, ключ (product_id, size_id) уникален
type stockDocument struct {
	ProductID int64     `bson:"product_id"`
	SizeID    int64     `bson:"size_id"`
	Quantity  int64     `bson:"quantity"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// reservationDocument документ коллекции ledger_reservations
type reservationDocument struct {
	ID        string                       `bson:"_id"`
	Items     []repository.ReservationItem `bson:"items"`
	State     string                       `bson:"state"`
	UpdatedAt time.Time                    `bson:"updated_at"`
}

// Repository реализует StockLedger используя MongoDB.
// Батч выполняется в multi-document транзакции (нужен replica set): уменьшение
// делается FindOneAndUpdate с условием quantity >= q, конкурирующие транзакции
// получают WriteConflict и перезапускаются WithTransaction.
type Repository struct {
	client       *mongo.Client
	products     *mongo.Collection
	stock        *mongo.Collection
	reservations *mongo.Collection
}

// NewRepository создаёт новый MongoDB репозиторий
func NewRepository(client *mongo.Client, dbName string) *Repository {
	db := client.Database(dbName)
	return &Repository{
		client:       client,
		products:     db.Collection("products"),
		stock:        db.Collection("stock"),
		reservations: db.Collection("ledger_reservations"),
	}
}

// EnsureIndexes создаёт уникальный индекс на (product_id, size_id)
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.stock.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "product_id", Value: 1}, {Key: "size_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create stock index: %w", err)
	}
	return nil
}

// ReserveMany атомарно резервирует items (см. repository.StockLedger)
func (r *Repository) ReserveMany(ctx context.Context, reservationID string, items []repository.ReservationItem) error {
	items, err := repository.Normalize(items)
	if err != nil {
		return err
	}

	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if reservationID != "" {
			var existing reservationDocument
			err := r.reservations.FindOne(sc, bson.M{"_id": reservationID}).Decode(&existing)
			switch {
			case err == nil && existing.State == stateReleased:
				return repository.ErrReservationReleased
			case err == nil:
				return nil
			case !errors.Is(err, mongo.ErrNoDocuments):
				return fmt.Errorf("find reservation: %w", err)
			}
			if _, err := r.reservations.InsertOne(sc, reservationDocument{
				ID: reservationID, Items: items, State: stateReserved, UpdatedAt: time.Now(),
			}); err != nil {
				return fmt.Errorf("insert reservation: %w", err)
			}
		}

		now := time.Now()
		for _, it := range items {
			filter := bson.M{
				"product_id": it.ProductID,
				"size_id":    it.SizeID,
				"quantity":   bson.M{"$gte": it.Quantity},
			}
			update := bson.M{
				"$inc": bson.M{"quantity": -it.Quantity},
				"$set": bson.M{"updated_at": now},
			}
			err := r.stock.FindOneAndUpdate(sc, filter, update).Err()
			if err == nil {
				continue
			}
			if !errors.Is(err, mongo.ErrNoDocuments) {
				return fmt.Errorf("decrement stock: %w", err)
			}
			// Документ не подошёл под фильтр: либо его нет, либо не хватает остатка
			n, err := r.stock.CountDocuments(sc, bson.M{"product_id": it.ProductID, "size_id": it.SizeID})
			if err != nil {
				return fmt.Errorf("count stock: %w", err)
			}
			cause := repository.ErrInsufficientStock
			if n == 0 {
				cause = repository.ErrNotFound
			}
			return &repository.ItemError{ProductID: it.ProductID, SizeID: it.SizeID, Err: cause}
		}
		return nil
	})
}

// ReleaseMany возвращает items на склад (см. repository.StockLedger)
func (r *Repository) ReleaseMany(ctx context.Context, reservationID string, items []repository.ReservationItem) error {
	items, err := repository.Normalize(items)
	if err != nil {
		return err
	}

	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if reservationID != "" {
			var existing reservationDocument
			err := r.reservations.FindOne(sc, bson.M{"_id": reservationID}).Decode(&existing)
			switch {
			case errors.Is(err, mongo.ErrNoDocuments):
				_, err := r.reservations.InsertOne(sc, reservationDocument{
					ID: reservationID, Items: []repository.ReservationItem{}, State: stateReleased, UpdatedAt: time.Now(),
				})
				if err != nil {
					return fmt.Errorf("insert tombstone: %w", err)
				}
				return nil
			case err != nil:
				return fmt.Errorf("find reservation: %w", err)
			case existing.State == stateReleased:
				return nil
			}
			if items, err = repository.Normalize(existing.Items); err != nil {
				return err
			}
			if _, err := r.reservations.UpdateByID(sc, reservationID, bson.M{
				"$set": bson.M{"state": stateReleased, "updated_at": time.Now()},
			}); err != nil {
				return fmt.Errorf("mark reservation released: %w", err)
			}
		}

		now := time.Now()
		for _, it := range items {
			// UpdateOne без upsert: отсутствующая запись просто не совпадёт с фильтром
			res, err := r.stock.UpdateOne(sc,
				bson.M{
					"product_id": it.ProductID,
					"size_id":    it.SizeID,
					"quantity":   bson.M{"$lte": math.MaxInt64 - it.Quantity},
				},
				bson.M{"$inc": bson.M{"quantity": it.Quantity}, "$set": bson.M{"updated_at": now}},
			)
			if err != nil {
				return fmt.Errorf("increment stock: %w", err)
			}
			if res.MatchedCount > 0 {
				continue
			}
			// $inc переполнил бы int64: остаток упирается в предел
			if _, err := r.stock.UpdateOne(sc,
				bson.M{"product_id": it.ProductID, "size_id": it.SizeID},
				bson.M{"$set": bson.M{"quantity": int64(math.MaxInt64), "updated_at": now}},
			); err != nil {
				return fmt.Errorf("saturate stock: %w", err)
			}
		}
		return nil
	})
}

// GetStock получает остаток из MongoDB
func (r *Repository) GetStock(ctx context.Context, productID, sizeID int64) (int64, error) {
	var doc stockDocument
	err := r.stock.FindOne(ctx, bson.M{"product_id": productID, "size_id": sizeID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return doc.Quantity, nil
}

// GetProduct получает товар и его остатки по размерам
func (r *Repository) GetProduct(ctx context.Context, productID int64) (repository.Product, error) {
	var doc productDocument
	err := r.products.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.Product{}, repository.ErrProductNotFound
	}
	if err != nil {
		return repository.Product{}, err
	}
	price, err := decimal.NewFromString(doc.Price.String())
	if err != nil {
		return repository.Product{}, fmt.Errorf("parse price: %w", err)
	}

	cur, err := r.stock.Find(ctx, bson.M{"product_id": productID}, options.Find().SetSort(bson.D{{Key: "size_id", Value: 1}}))
	if err != nil {
		return repository.Product{}, err
	}
	var stock []stockDocument
	if err := cur.All(ctx, &stock); err != nil {
		return repository.Product{}, err
	}

	p := repository.Product{ID: doc.ID, Name: doc.Name, Price: price, Sizes: make([]repository.ProductSize, 0, len(stock))}
	for _, s := range stock {
		p.Sizes = append(p.Sizes, repository.ProductSize{SizeID: s.SizeID, Quantity: s.Quantity})
	}
	return p, nil
}

// UpsertProduct заводит товар и его записи остатка (засев и тесты)
func (r *Repository) UpsertProduct(ctx context.Context, p repository.Product) error {
	price, err := primitive.ParseDecimal128(p.Price.String())
	if err != nil {
		return fmt.Errorf("convert price: %w", err)
	}
	if _, err := r.products.UpdateByID(ctx, p.ID,
		bson.M{"$set": bson.M{"name": p.Name, "price": price}},
		options.Update().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	for _, s := range p.Sizes {
		if _, err := r.stock.UpdateOne(ctx,
			bson.M{"product_id": p.ID, "size_id": s.SizeID},
			bson.M{"$set": bson.M{"quantity": s.Quantity, "updated_at": time.Now()}},
			options.Update().SetUpsert(true),
		); err != nil {
			return fmt.Errorf("upsert stock: %w", err)
		}
	}
	return nil
}

func (r *Repository) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, opts)
	return err
}
