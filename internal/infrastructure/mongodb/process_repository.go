package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rms-platform/pipeline-service/internal/domain"
	"github.com/rms-platform/pipeline-service/pkg/cloudevents"
	"github.com/rms-platform/pipeline-service/pkg/kafka"
	"github.com/rms-platform/pipeline-service/pkg/outbox"
	outboxMongo "github.com/rms-platform/pipeline-service/pkg/outbox/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ProcessRepository persists service processes in MongoDB. Every write runs in
// a transaction that also appends the aggregate's domain events to the outbox.
type ProcessRepository struct {
	collection   *mongo.Collection
	warehouse    *mongo.Collection
	recoveries   *mongo.Collection
	userStock    *mongo.Collection
	db           *mongo.Database
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

func NewProcessRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory) *ProcessRepository {
	outboxRepo := outboxMongo.NewOutboxRepository(db)

	repo := &ProcessRepository{
		collection:   db.Collection("service_processes"),
		warehouse:    db.Collection("warehouse_stocks"),
		recoveries:   db.Collection("disassemble_recoveries"),
		userStock:    db.Collection("user_item_stocks"),
		db:           db,
		outboxRepo:   outboxRepo,
		eventFactory: eventFactory,
	}
	repo.ensureIndexes(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = outboxRepo.EnsureIndexes(ctx)

	return repo
}

// indexUnitPerDay is the unique index enforcing one registration of a
// physical unit per calendar day.
const indexUnitPerDay = "unit_per_day"

// isDuplicateOnIndex reports whether a duplicate key error was raised by the
// named index. Mongo only surfaces the violated index through the error
// message.
func isDuplicateOnIndex(err error, index string) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 && strings.Contains(e.Message, index) {
				return true
			}
		}
	}
	return false
}

func (r *ProcessRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "processId", Value: 1}}, Options: options.Index().SetUnique(true)},
		// One registration of a physical unit per calendar day.
		{
			Keys: bson.D{
				{Key: "productName", Value: 1},
				{Key: "itemName", Value: 1},
				{Key: "subItemName", Value: 1},
				{Key: "serialNumber", Value: 1},
				{Key: "createdDate", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName(indexUnitPerDay),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "currentStageId", Value: 1}}},
		{Keys: bson.D{{Key: "isDisassemblePending", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)

	r.warehouse.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "productName", Value: 1},
			{Key: "itemName", Value: 1},
			{Key: "subItemName", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	r.recoveries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "processId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
}

// Save inserts a new process or replaces an existing one guarded by its
// version, and appends pending domain events to the outbox.
func (r *ProcessRepository) Save(ctx context.Context, process *domain.ServiceProcess) error {
	return r.inTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return r.saveAggregate(sessCtx, process, nil)
	})
}

// SaveCompleted replaces a finalized process and credits the warehouse counter
// for its sub-item in the same transaction.
func (r *ProcessRepository) SaveCompleted(ctx context.Context, process *domain.ServiceProcess) error {
	return r.inTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := r.saveAggregate(sessCtx, process, nil); err != nil {
			return err
		}

		now := time.Now().UTC()
		counter := domain.WarehouseCounterField(process.ItemType)
		filter := bson.M{
			"productName": process.ProductName,
			"itemName":    process.ItemName,
			"subItemName": process.SubItemName,
		}
		update := bson.M{
			"$inc": bson.M{counter: 1},
			"$set": bson.M{"updatedAt": now},
		}
		opts := options.Update().SetUpsert(true)
		if _, err := r.warehouse.UpdateOne(sessCtx, filter, update, opts); err != nil {
			return fmt.Errorf("failed to credit warehouse stock: %w", err)
		}
		return nil
	})
}

// SaveWithRecovery replaces a process closed by disassembly, inserts the
// recovery record, and credits the receiving employee's stock atomically.
func (r *ProcessRepository) SaveWithRecovery(ctx context.Context, process *domain.ServiceProcess, recovery *domain.DisassembleRecovery) error {
	return r.inTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := r.saveAggregate(sessCtx, process, recovery); err != nil {
			return err
		}

		if _, err := r.recoveries.InsertOne(sessCtx, recovery); err != nil {
			return fmt.Errorf("failed to insert disassemble recovery: %w", err)
		}

		now := time.Now().UTC()
		for _, item := range recovery.Items {
			filter := bson.M{
				"employeeId": recovery.ReceivingEmployeeID,
				"materialId": item.MaterialID,
			}
			update := bson.M{
				"$inc": bson.M{"quantity": item.Quantity},
				"$set": bson.M{"updatedAt": now},
			}
			opts := options.Update().SetUpsert(true)
			if _, err := r.userStock.UpdateOne(sessCtx, filter, update, opts); err != nil {
				return fmt.Errorf("failed to credit recovered stock: %w", err)
			}
		}
		return nil
	})
}

// AcceptCurrentActivity atomically claims the current pending unassigned
// activity. The conditional update means exactly one of two racing callers
// matches; a nil result without error is a miss.
func (r *ProcessRepository) AcceptCurrentActivity(ctx context.Context, processID, employeeID string) (*domain.ServiceProcess, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"processId": processID,
		"isClosed":  false,
		"activities": bson.M{"$elemMatch": bson.M{
			"isCurrent":  true,
			"status":     domain.ActivityStatusPending,
			"employeeId": bson.M{"$exists": false},
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"activities.$[elem].employeeId": employeeID,
			"activities.$[elem].status":     domain.ActivityStatusInProgress,
			"activities.$[elem].acceptedAt": now,
			"updatedAt":                     now,
		},
		"$inc": bson.M{"version": 1},
	}
	arrayFilters := []interface{}{bson.M{
		"elem.isCurrent":  true,
		"elem.status":     domain.ActivityStatusPending,
		"elem.employeeId": bson.M{"$exists": false},
	}}

	var process *domain.ServiceProcess
	err := r.inTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		claimed, err := r.claimActivity(sessCtx, filter, update, arrayFilters)
		if err != nil || claimed == nil {
			return err
		}

		activity := claimed.CurrentActivity()
		event := r.eventFactory.CreateActivityAcceptedEvent(sessCtx, cloudevents.ActivityAcceptedData{
			ProcessID:  claimed.ProcessID,
			Stage:      activity.StageID,
			EmployeeID: employeeID,
		})
		if err := r.appendOutbox(sessCtx, claimed.ProcessID, event); err != nil {
			return err
		}
		process = claimed
		return nil
	})
	return process, err
}

// StartCurrentActivity atomically stamps startedAt on the caller's accepted
// activity. A nil result without error is a miss.
func (r *ProcessRepository) StartCurrentActivity(ctx context.Context, processID, employeeID string) (*domain.ServiceProcess, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"processId": processID,
		"isClosed":  false,
		"activities": bson.M{"$elemMatch": bson.M{
			"isCurrent":  true,
			"status":     domain.ActivityStatusInProgress,
			"employeeId": employeeID,
			"startedAt":  bson.M{"$exists": false},
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"activities.$[elem].startedAt": now,
			"updatedAt":                    now,
		},
		"$inc": bson.M{"version": 1},
	}
	arrayFilters := []interface{}{bson.M{
		"elem.isCurrent":  true,
		"elem.employeeId": employeeID,
		"elem.startedAt":  bson.M{"$exists": false},
	}}

	var process *domain.ServiceProcess
	err := r.inTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		claimed, err := r.claimActivity(sessCtx, filter, update, arrayFilters)
		if err != nil || claimed == nil {
			return err
		}

		activity := claimed.CurrentActivity()
		event := r.eventFactory.CreateActivityStartedEvent(sessCtx, cloudevents.ActivityStartedData{
			ProcessID:  claimed.ProcessID,
			Stage:      activity.StageID,
			EmployeeID: employeeID,
		})
		if err := r.appendOutbox(sessCtx, claimed.ProcessID, event); err != nil {
			return err
		}
		process = claimed
		return nil
	})
	return process, err
}

func (r *ProcessRepository) FindByProcessID(ctx context.Context, processID string) (*domain.ServiceProcess, error) {
	var process domain.ServiceProcess
	err := r.collection.FindOne(ctx, bson.M{"processId": processID}).Decode(&process)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &process, err
}

func (r *ProcessRepository) FindSameDayUnit(ctx context.Context, productName, itemName, subItemName, serialNumber, createdDate string) (*domain.ServiceProcess, error) {
	filter := bson.M{
		"productName":  productName,
		"itemName":     itemName,
		"subItemName":  subItemName,
		"serialNumber": serialNumber,
		"createdDate":  createdDate,
	}
	var process domain.ServiceProcess
	err := r.collection.FindOne(ctx, filter).Decode(&process)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &process, err
}

func (r *ProcessRepository) FindAll(ctx context.Context, status domain.ProcessStatus, limit, offset int) ([]*domain.ServiceProcess, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var processes []*domain.ServiceProcess
	err = cursor.All(ctx, &processes)
	return processes, err
}

// GetOutboxRepository returns the outbox repository backing this service
func (r *ProcessRepository) GetOutboxRepository() outbox.Repository {
	return r.outboxRepo
}

func (r *ProcessRepository) inTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// saveAggregate upserts the process document with an optimistic version guard
// and writes its pending domain events to the outbox.
func (r *ProcessRepository) saveAggregate(sessCtx mongo.SessionContext, process *domain.ServiceProcess, recovery *domain.DisassembleRecovery) error {
	process.UpdatedAt = time.Now().UTC()

	if process.ID.IsZero() {
		res, err := r.collection.InsertOne(sessCtx, process)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				// A racing same-day registration loses on the per-day unique
				// index; anything else is a concurrent writer.
				if isDuplicateOnIndex(err, indexUnitPerDay) {
					return domain.ErrDuplicateSameDayUnit
				}
				return domain.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert process: %w", err)
		}
		if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
			process.ID = oid
		}
	} else {
		previousVersion := process.Version
		process.Version++
		filter := bson.M{"processId": process.ProcessID, "version": previousVersion}
		res, err := r.collection.ReplaceOne(sessCtx, filter, process)
		if err != nil {
			return fmt.Errorf("failed to replace process: %w", err)
		}
		if res.MatchedCount == 0 {
			return domain.ErrConcurrentModification
		}
	}

	if err := r.saveOutboxEvents(sessCtx, process, recovery); err != nil {
		return err
	}
	process.ClearDomainEvents()
	return nil
}

// saveOutboxEvents converts pending domain events to CloudEvents and writes
// them to the outbox inside the caller's transaction.
func (r *ProcessRepository) saveOutboxEvents(sessCtx mongo.SessionContext, process *domain.ServiceProcess, recovery *domain.DisassembleRecovery) error {
	domainEvents := process.DomainEvents
	if len(domainEvents) == 0 {
		return nil
	}

	outboxEvents := make([]*outbox.OutboxEvent, 0, len(domainEvents))
	for _, event := range domainEvents {
		var cloudEvent *cloudevents.RMSCloudEvent
		switch e := event.(type) {
		case *domain.ProcessCreatedEvent:
			cloudEvent = r.eventFactory.CreateProcessCreatedEvent(sessCtx, cloudevents.ProcessCreatedData{
				ProcessID:    e.ProcessID,
				ProductName:  e.ProductName,
				ItemName:     e.ItemName,
				SubItemName:  e.SubItemName,
				SerialNumber: e.SerialNumber,
				ItemType:     e.ItemType,
				InitialStage: e.InitialStage,
			})
		case *domain.StageAdvancedEvent:
			cloudEvent = r.eventFactory.CreateStageAdvancedEvent(sessCtx, cloudevents.StageAdvancedData{
				ProcessID: e.ProcessID,
				FromStage: e.FromStage,
				ToStage:   e.ToStage,
			})
		case *domain.ProcessRedirectedEvent:
			cloudEvent = r.eventFactory.CreateProcessRedirectedEvent(sessCtx, cloudevents.ProcessRedirectedData{
				ProcessID:     e.ProcessID,
				FromStage:     e.FromStage,
				RedirectStage: e.ToStage,
				FailureReason: e.Reason,
				Disassemble:   e.ToStage == domain.StageDisassemble,
			})
		case *domain.ProcessCompletedEvent:
			cloudEvent = r.eventFactory.CreateProcessCompletedEvent(sessCtx, cloudevents.ProcessCompletedData{
				ProcessID:   e.ProcessID,
				FinalStatus: e.FinalStatus,
				ItemType:    e.ItemType,
				IsRepaired:  e.IsRepaired,
				FinalStage:  process.CurrentStageID,
			})
		case *domain.DisassembleSubmittedEvent:
			data := cloudevents.DisassembleDoneData{
				ProcessID:      e.ProcessID,
				DisassembledBy: e.DisassemblingEmployeeID,
				ReceivedBy:     e.ReceivingEmployeeID,
			}
			if recovery != nil {
				for _, item := range recovery.Items {
					data.ReclaimedItems = append(data.ReclaimedItems, cloudevents.MaterialLine{
						MaterialID: item.MaterialID,
						Quantity:   item.Quantity,
					})
				}
			}
			cloudEvent = r.eventFactory.CreateDisassembleDoneEvent(sessCtx, data)
		default:
			continue
		}

		outboxEvent, err := outbox.NewOutboxEvent(process.ProcessID, "ServiceProcess", kafka.Topics.PipelineEvents, cloudEvent)
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

// claimActivity runs a conditional FindOneAndUpdate inside the caller's
// transaction. ErrNoDocuments maps to a nil process.
func (r *ProcessRepository) claimActivity(ctx context.Context, filter, update bson.M, arrayFilters []interface{}) (*domain.ServiceProcess, error) {
	opts := options.FindOneAndUpdate().
		SetArrayFilters(options.ArrayFilters{Filters: arrayFilters}).
		SetReturnDocument(options.After)

	var process domain.ServiceProcess
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&process)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim activity: %w", err)
	}
	return &process, nil
}

func (r *ProcessRepository) appendOutbox(ctx context.Context, processID string, cloudEvent *cloudevents.RMSCloudEvent) error {
	outboxEvent, err := outbox.NewOutboxEvent(processID, "ServiceProcess", kafka.Topics.PipelineEvents, cloudEvent)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	if err := r.outboxRepo.SaveAll(ctx, []*outbox.OutboxEvent{outboxEvent}); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}
