package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rms-platform/pipeline-service/internal/domain"
	"github.com/rms-platform/pipeline-service/pkg/cloudevents"
	"github.com/rms-platform/pipeline-service/pkg/kafka"
	"github.com/rms-platform/pipeline-service/pkg/outbox"
	outboxMongo "github.com/rms-platform/pipeline-service/pkg/outbox/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RawMaterialRepository reads central store stock. Decrements happen only
// through ItemRequestRepository.Sanction.
type RawMaterialRepository struct {
	collection *mongo.Collection
}

func NewRawMaterialRepository(db *mongo.Database) *RawMaterialRepository {
	repo := &RawMaterialRepository{collection: db.Collection("raw_materials")}
	repo.collection.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "materialId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return repo
}

func (r *RawMaterialRepository) FindByMaterialID(ctx context.Context, materialID string) (*domain.RawMaterial, error) {
	var material domain.RawMaterial
	err := r.collection.FindOne(ctx, bson.M{"materialId": materialID}).Decode(&material)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &material, err
}

func (r *RawMaterialRepository) FindAll(ctx context.Context) ([]*domain.RawMaterial, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var materials []*domain.RawMaterial
	err = cursor.All(ctx, &materials)
	return materials, err
}

// ItemRequestRepository persists material requests and performs the guarded
// stock hand-over.
type ItemRequestRepository struct {
	collection   *mongo.Collection
	materials    *mongo.Collection
	userStock    *mongo.Collection
	db           *mongo.Database
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

func NewItemRequestRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory) *ItemRequestRepository {
	repo := &ItemRequestRepository{
		collection:   db.Collection("item_requests"),
		materials:    db.Collection("raw_materials"),
		userStock:    db.Collection("user_item_stocks"),
		db:           db,
		outboxRepo:   outboxMongo.NewOutboxRepository(db),
		eventFactory: eventFactory,
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *ItemRequestRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "requestId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "requestedBy", Value: 1}}},
		{Keys: bson.D{{Key: "storeKeeperId", Value: 1}}},
		{Keys: bson.D{{Key: "approved", Value: 1}, {Key: "declined", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)

	r.userStock.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "employeeId", Value: 1},
			{Key: "materialId", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
}

// Save inserts a newly filed request and appends its pending domain events to
// the outbox in one transaction.
func (r *ItemRequestRepository) Save(ctx context.Context, request *domain.ItemRequest) error {
	return r.inTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		request.UpdatedAt = time.Now().UTC()
		if _, err := r.collection.InsertOne(sessCtx, request); err != nil {
			return fmt.Errorf("failed to insert material request: %w", err)
		}

		if err := r.saveOutboxEvents(sessCtx, request); err != nil {
			return err
		}
		request.ClearDomainEvents()
		return nil
	})
}

// SaveDecision persists an approval or decline guarded on the request still
// being undecided. Of two racing deciders exactly one write matches; the
// loser's transaction aborts with domain.ErrRequestAlreadyProcessed.
func (r *ItemRequestRepository) SaveDecision(ctx context.Context, request *domain.ItemRequest) error {
	return r.inTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		request.UpdatedAt = time.Now().UTC()

		filter := bson.M{
			"requestId": request.RequestID,
			"approved":  nil,
			"declined":  nil,
		}
		update := bson.M{"$set": bson.M{
			"approved":     request.Approved,
			"declined":     request.Declined,
			"decidedBy":    request.DecidedBy,
			"decisionNote": request.DecisionNote,
			"updatedAt":    request.UpdatedAt,
		}}
		res, err := r.collection.UpdateOne(sessCtx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to save request decision: %w", err)
		}
		if res.MatchedCount == 0 {
			return domain.ErrRequestAlreadyProcessed
		}

		if err := r.saveOutboxEvents(sessCtx, request); err != nil {
			return err
		}
		request.ClearDomainEvents()
		return nil
	})
}

// Sanction decrements raw material stock for every line, credits the
// requester's personal stock, and marks the request given, all or nothing.
// The mark is guarded on materialGiven still being false, so of two racing
// sanctions exactly one moves stock; the loser aborts with
// domain.ErrMaterialAlreadyGiven before any decrement commits. A line the
// stock cannot cover aborts with domain.ErrInsufficientStock.
func (r *ItemRequestRepository) Sanction(ctx context.Context, request *domain.ItemRequest) error {
	return r.inTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		request.UpdatedAt = time.Now().UTC()

		// Claim the hand-over first so a lost race never touches stock.
		markFilter := bson.M{
			"requestId":     request.RequestID,
			"materialGiven": false,
		}
		markUpdate := bson.M{"$set": bson.M{
			"materialGiven": true,
			"sanctionedAt":  request.SanctionedAt,
			"updatedAt":     request.UpdatedAt,
		}}
		res, err := r.collection.UpdateOne(sessCtx, markFilter, markUpdate)
		if err != nil {
			return fmt.Errorf("failed to mark request sanctioned: %w", err)
		}
		if res.MatchedCount == 0 {
			return domain.ErrMaterialAlreadyGiven
		}

		now := time.Now().UTC()
		for _, line := range request.Lines {
			filter := bson.M{
				"materialId": line.MaterialID,
				"stock":      bson.M{"$gte": line.Quantity},
			}
			update := bson.M{
				"$inc": bson.M{"stock": -line.Quantity},
				"$set": bson.M{"updatedAt": now},
			}
			res, err := r.materials.UpdateOne(sessCtx, filter, update)
			if err != nil {
				return fmt.Errorf("failed to debit raw material: %w", err)
			}
			if res.MatchedCount == 0 {
				return domain.ErrInsufficientStock
			}

			stockFilter := bson.M{
				"employeeId": request.RequestedBy,
				"materialId": line.MaterialID,
			}
			stockUpdate := bson.M{
				"$inc": bson.M{"quantity": line.Quantity},
				"$set": bson.M{"updatedAt": now},
			}
			opts := options.Update().SetUpsert(true)
			if _, err := r.userStock.UpdateOne(sessCtx, stockFilter, stockUpdate, opts); err != nil {
				return fmt.Errorf("failed to credit personal stock: %w", err)
			}
		}

		if err := r.saveOutboxEvents(sessCtx, request); err != nil {
			return err
		}
		request.ClearDomainEvents()
		return nil
	})
}

func (r *ItemRequestRepository) FindByRequestID(ctx context.Context, requestID string) (*domain.ItemRequest, error) {
	var request domain.ItemRequest
	err := r.collection.FindOne(ctx, bson.M{"requestId": requestID}).Decode(&request)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &request, err
}

func (r *ItemRequestRepository) FindPending(ctx context.Context) ([]*domain.ItemRequest, error) {
	filter := bson.M{"approved": nil, "declined": nil}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var requests []*domain.ItemRequest
	err = cursor.All(ctx, &requests)
	return requests, err
}

func (r *ItemRequestRepository) inTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

func (r *ItemRequestRepository) saveOutboxEvents(sessCtx mongo.SessionContext, request *domain.ItemRequest) error {
	domainEvents := request.DomainEvents
	if len(domainEvents) == 0 {
		return nil
	}

	lines := make([]cloudevents.MaterialLine, 0, len(request.Lines))
	for _, l := range request.Lines {
		lines = append(lines, cloudevents.MaterialLine{MaterialID: l.MaterialID, Quantity: l.Quantity})
	}

	outboxEvents := make([]*outbox.OutboxEvent, 0, len(domainEvents))
	for _, event := range domainEvents {
		var cloudEvent *cloudevents.RMSCloudEvent
		switch e := event.(type) {
		case *domain.MaterialRequestedEvent:
			cloudEvent = r.eventFactory.CreateMaterialRequestedEvent(sessCtx, cloudevents.MaterialRequestedData{
				RequestID:   e.RequestID,
				RequestedBy: e.RequestedBy,
				RequestedTo: e.StoreKeeperID,
				Materials:   lines,
				ProcessID:   e.ProcessID,
			})
		case *domain.RequestDecidedEvent:
			cloudEvent = r.eventFactory.CreateRequestDecidedEvent(sessCtx, cloudevents.RequestDecidedData{
				RequestID: e.RequestID,
				Decision:  e.Decision,
				DecidedBy: e.DecidedBy,
				Remarks:   request.DecisionNote,
			})
		case *domain.MaterialSanctionedEvent:
			cloudEvent = r.eventFactory.CreateMaterialSanctionedEvent(sessCtx, cloudevents.MaterialSanctionedData{
				RequestID:  e.RequestID,
				EmployeeID: e.RequestedBy,
				Materials:  lines,
			})
		default:
			continue
		}

		outboxEvent, err := outbox.NewOutboxEvent(request.RequestID, "ItemRequest", kafka.Topics.LedgerEvents, cloudEvent)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, outboxEvent)
	}

	if len(outboxEvents) > 0 {
		if err := r.outboxRepo.SaveAll(sessCtx, outboxEvents); err != nil {
			return fmt.Errorf("failed to save outbox events: %w", err)
		}
	}
	return nil
}

// UserStockRepository tracks per-employee material holdings and their
// consumption history.
type UserStockRepository struct {
	collection   *mongo.Collection
	usages       *mongo.Collection
	db           *mongo.Database
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

func NewUserStockRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory) *UserStockRepository {
	repo := &UserStockRepository{
		collection:   db.Collection("user_item_stocks"),
		usages:       db.Collection("item_usages"),
		db:           db,
		outboxRepo:   outboxMongo.NewOutboxRepository(db),
		eventFactory: eventFactory,
	}
	repo.usages.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "employeeId", Value: 1}, {Key: "usedAt", Value: -1}},
	})
	return repo
}

func (r *UserStockRepository) Find(ctx context.Context, employeeID, materialID string) (*domain.UserItemStock, error) {
	filter := bson.M{"employeeId": employeeID, "materialId": materialID}
	var stock domain.UserItemStock
	err := r.collection.FindOne(ctx, filter).Decode(&stock)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &stock, err
}

func (r *UserStockRepository) FindByEmployee(ctx context.Context, employeeID string) ([]*domain.UserItemStock, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"employeeId": employeeID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var stocks []*domain.UserItemStock
	err = cursor.All(ctx, &stocks)
	return stocks, err
}

// Consume debits the employee's holdings with a non-negative guard per line
// and appends the usage records, all in one transaction. Any line that cannot
// be covered aborts the whole booking.
func (r *UserStockRepository) Consume(ctx context.Context, usages []*domain.ItemUsage) error {
	if len(usages) == 0 {
		return nil
	}

	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		now := time.Now().UTC()

		docs := make([]interface{}, 0, len(usages))
		lines := make([]cloudevents.MaterialLine, 0, len(usages))
		for _, usage := range usages {
			filter := bson.M{
				"employeeId": usage.EmployeeID,
				"materialId": usage.MaterialID,
				"quantity":   bson.M{"$gte": usage.Quantity},
			}
			update := bson.M{
				"$inc": bson.M{"quantity": -usage.Quantity},
				"$set": bson.M{"updatedAt": now},
			}
			res, err := r.collection.UpdateOne(sessCtx, filter, update)
			if err != nil {
				return nil, fmt.Errorf("failed to debit personal stock: %w", err)
			}
			if res.MatchedCount == 0 {
				// Tell a missing holding apart from a short one.
				count, err := r.collection.CountDocuments(sessCtx, bson.M{
					"employeeId": usage.EmployeeID,
					"materialId": usage.MaterialID,
				}, options.Count().SetLimit(1))
				if err != nil {
					return nil, err
				}
				if count == 0 {
					return nil, domain.ErrStockNotHeld
				}
				return nil, domain.ErrInsufficientPersonalStock
			}

			usage.UsedAt = now
			docs = append(docs, usage)
			lines = append(lines, cloudevents.MaterialLine{MaterialID: usage.MaterialID, Quantity: usage.Quantity})
		}

		if _, err := r.usages.InsertMany(sessCtx, docs); err != nil {
			return nil, fmt.Errorf("failed to record item usages: %w", err)
		}

		first := usages[0]
		cloudEvent := r.eventFactory.CreateMaterialConsumedEvent(sessCtx, cloudevents.MaterialConsumedData{
			ProcessID:  first.ProcessID,
			EmployeeID: first.EmployeeID,
			Materials:  lines,
		})
		outboxEvent, err := outbox.NewOutboxEvent(first.EmployeeID, "UserItemStock", kafka.Topics.LedgerEvents, cloudEvent)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		if err := r.outboxRepo.SaveAll(sessCtx, []*outbox.OutboxEvent{outboxEvent}); err != nil {
			return nil, fmt.Errorf("failed to save outbox event: %w", err)
		}
		return nil, nil
	})
	return err
}

// EmployeeDirectory answers role membership questions against the employees
// collection.
type EmployeeDirectory struct {
	collection *mongo.Collection
}

func NewEmployeeDirectory(db *mongo.Database) *EmployeeDirectory {
	repo := &EmployeeDirectory{collection: db.Collection("employees")}
	repo.collection.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "employeeId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return repo
}

func (r *EmployeeDirectory) HasRole(ctx context.Context, employeeID, role string) (bool, error) {
	filter := bson.M{"employeeId": employeeID, "roles": role}
	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	return count > 0, err
}

// WarehouseStockRepository reads finished-goods counters. Credits happen only
// through ProcessRepository.SaveCompleted.
type WarehouseStockRepository struct {
	collection *mongo.Collection
}

func NewWarehouseStockRepository(db *mongo.Database) *WarehouseStockRepository {
	return &WarehouseStockRepository{collection: db.Collection("warehouse_stocks")}
}

func (r *WarehouseStockRepository) Find(ctx context.Context, productName, itemName, subItemName string) (*domain.WarehouseStock, error) {
	filter := bson.M{"productName": productName, "itemName": itemName, "subItemName": subItemName}
	var stock domain.WarehouseStock
	err := r.collection.FindOne(ctx, filter).Decode(&stock)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &stock, err
}

func (r *WarehouseStockRepository) FindByProduct(ctx context.Context, productName string) ([]*domain.WarehouseStock, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"productName": productName})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var stocks []*domain.WarehouseStock
	err = cursor.All(ctx, &stocks)
	return stocks, err
}
