package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/rms-platform/pipeline-service/internal/domain"
	"github.com/rms-platform/pipeline-service/internal/infrastructure/mongodb"
	"github.com/rms-platform/pipeline-service/pkg/cloudevents"
	sharedtesting "github.com/rms-platform/pipeline-service/pkg/testing"
)

func setupTestDB(t *testing.T) (*mongodriver.Database, func()) {
	t.Helper()
	ctx := context.Background()

	mongoContainer, err := sharedtesting.NewMongoDBContainer(ctx)
	require.NoError(t, err)

	client, err := mongoContainer.GetClient(ctx)
	require.NoError(t, err)

	db := client.Database("test_rms_pipeline")

	cleanup := func() {
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("Failed to disconnect MongoDB client: %v", err)
		}
		if err := mongoContainer.Close(ctx); err != nil {
			t.Logf("Failed to close MongoDB container: %v", err)
		}
	}

	return db, cleanup
}

func newEventFactory() *cloudevents.EventFactory {
	return cloudevents.NewEventFactory(cloudevents.SourcePipeline)
}

func newTestProcess(processID, serialNumber string) *domain.ServiceProcess {
	return domain.NewServiceProcess(processID, "SOLAR PUMP SET", "PUMP", "PUMP 5HP DC", serialNumber, 1, domain.ItemTypeService, domain.StageDisassemble)
}

func TestProcessRepository_SaveAndFind(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := mongodb.NewProcessRepository(db, newEventFactory())

	ctx, cancel := sharedtesting.CreateTestContext(30 * time.Second)
	defer cancel()

	t.Run("Save new process and find it", func(t *testing.T) {
		process := newTestProcess("PROC-SAVE-1", "SN-100")
		require.NoError(t, repo.Save(ctx, process))

		found, err := repo.FindByProcessID(ctx, "PROC-SAVE-1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, domain.StageDisassemble, found.CurrentStageID)
		require.Len(t, found.Activities, 1)
		assert.Equal(t, domain.ActivityStatusPending, found.Activities[0].Status)
		assert.True(t, found.Activities[0].IsCurrent)
	})

	t.Run("Save writes the creation event to the outbox", func(t *testing.T) {
		count, err := db.Collection("outbox_events").CountDocuments(ctx, bson.M{
			"aggregateId": "PROC-SAVE-1",
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})

	t.Run("Find non-existent process", func(t *testing.T) {
		found, err := repo.FindByProcessID(ctx, "PROC-NONE")
		assert.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("Same unit cannot be registered twice on one day", func(t *testing.T) {
		first := newTestProcess("PROC-DUP-1", "SN-200")
		require.NoError(t, repo.Save(ctx, first))

		found, err := repo.FindSameDayUnit(ctx, first.ProductName, first.ItemName, first.SubItemName, first.SerialNumber, first.CreatedDate)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "PROC-DUP-1", found.ProcessID)

		// The unique index backstops the application-level check, and the
		// loser is reported as a duplicate rather than a concurrent write.
		second := newTestProcess("PROC-DUP-2", "SN-200")
		err = repo.Save(ctx, second)
		assert.ErrorIs(t, err, domain.ErrDuplicateSameDayUnit)
	})

	t.Run("Stale version is rejected", func(t *testing.T) {
		process := newTestProcess("PROC-VER-1", "SN-300")
		require.NoError(t, repo.Save(ctx, process))

		stale, err := repo.FindByProcessID(ctx, "PROC-VER-1")
		require.NoError(t, err)

		fresh, err := repo.FindByProcessID(ctx, "PROC-VER-1")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, fresh))

		err = repo.Save(ctx, stale)
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	})
}

func TestProcessRepository_AcceptCurrentActivity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := mongodb.NewProcessRepository(db, newEventFactory())

	ctx, cancel := sharedtesting.CreateTestContext(60 * time.Second)
	defer cancel()

	t.Run("Exactly one racing claimant wins", func(t *testing.T) {
		process := newTestProcess("PROC-RACE-1", "SN-400")
		require.NoError(t, repo.Save(ctx, process))

		var wg sync.WaitGroup
		results := make([]*domain.ServiceProcess, 2)
		errs := make([]error, 2)
		employees := []string{"EMP-A", "EMP-B"}

		for i := range employees {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = repo.AcceptCurrentActivity(ctx, "PROC-RACE-1", employees[i])
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}

		winners := 0
		var winner *domain.ServiceProcess
		for _, res := range results {
			if res != nil {
				winners++
				winner = res
			}
		}
		require.Equal(t, 1, winners)

		activity := winner.CurrentActivity()
		require.NotNil(t, activity)
		assert.Equal(t, domain.ActivityStatusInProgress, activity.Status)
		assert.Contains(t, employees, activity.EmployeeID)
		assert.NotNil(t, activity.AcceptedAt)
	})

	t.Run("Accepting an already assigned activity misses", func(t *testing.T) {
		claimed, err := repo.AcceptCurrentActivity(ctx, "PROC-RACE-1", "EMP-C")
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})

	t.Run("Start stamps startedAt once", func(t *testing.T) {
		found, err := repo.FindByProcessID(ctx, "PROC-RACE-1")
		require.NoError(t, err)
		owner := found.CurrentActivity().EmployeeID

		started, err := repo.StartCurrentActivity(ctx, "PROC-RACE-1", owner)
		require.NoError(t, err)
		require.NotNil(t, started)
		assert.NotNil(t, started.CurrentActivity().StartedAt)

		again, err := repo.StartCurrentActivity(ctx, "PROC-RACE-1", owner)
		require.NoError(t, err)
		assert.Nil(t, again)
	})
}

func TestProcessRepository_SaveCompleted(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := mongodb.NewProcessRepository(db, newEventFactory())
	warehouseRepo := mongodb.NewWarehouseStockRepository(db)

	ctx, cancel := sharedtesting.CreateTestContext(30 * time.Second)
	defer cancel()

	process := domain.NewServiceProcess("PROC-DONE-1", "SOLAR PUMP SET", "PUMP", "PUMP 5HP DC", "SN-500", 1, domain.ItemTypeService, domain.StageTesting)
	require.NoError(t, repo.Save(ctx, process))

	saved, err := repo.FindByProcessID(ctx, "PROC-DONE-1")
	require.NoError(t, err)
	require.NoError(t, saved.Accept("EMP-A"))
	require.NoError(t, saved.Start("EMP-A"))
	_, err = saved.CloseCurrentActivity(domain.ActivityStatusCompleted, "", "")
	require.NoError(t, err)
	saved.FinalizeSuccess()

	require.NoError(t, repo.SaveCompleted(ctx, saved))

	found, err := repo.FindByProcessID(ctx, "PROC-DONE-1")
	require.NoError(t, err)
	assert.True(t, found.IsClosed)
	assert.Equal(t, domain.FinalStatusSuccess, found.FinalStatus)
	assert.True(t, found.IsRepaired)

	// Serviced units credit the repaired counter.
	stock, err := warehouseRepo.Find(ctx, "SOLAR PUMP SET", "PUMP", "PUMP 5HP DC")
	require.NoError(t, err)
	require.NotNil(t, stock)
	assert.Equal(t, 1, stock.Quantity)
	assert.Equal(t, 0, stock.NewStock)
}

func TestItemRequestRepository_Sanction(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	eventFactory := newEventFactory()
	requestRepo := mongodb.NewItemRequestRepository(db, eventFactory)
	materialRepo := mongodb.NewRawMaterialRepository(db)
	userStockRepo := mongodb.NewUserStockRepository(db, eventFactory)

	ctx, cancel := sharedtesting.CreateTestContext(30 * time.Second)
	defer cancel()

	now := time.Now().UTC()
	_, err := db.Collection("raw_materials").InsertOne(ctx, domain.RawMaterial{
		MaterialID: "MAT-COPPER",
		Name:       "Copper Wire",
		Unit:       "kg",
		Stock:      10,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	require.NoError(t, err)

	t.Run("Sanction moves stock to the requester", func(t *testing.T) {
		request := domain.NewItemRequest("REQ-1", "EMP-WINDER", "EMP-STORE", []domain.RequestLine{
			{MaterialID: "MAT-COPPER", Quantity: 4},
		}, false, "")
		require.NoError(t, requestRepo.Save(ctx, request))
		require.NoError(t, request.Decide(domain.DecisionApprove, "EMP-MGR", ""))
		require.NoError(t, requestRepo.SaveDecision(ctx, request))
		request.MarkSanctioned()

		require.NoError(t, requestRepo.Sanction(ctx, request))

		material, err := materialRepo.FindByMaterialID(ctx, "MAT-COPPER")
		require.NoError(t, err)
		assert.Equal(t, 6, material.Stock)

		held, err := userStockRepo.Find(ctx, "EMP-WINDER", "MAT-COPPER")
		require.NoError(t, err)
		require.NotNil(t, held)
		assert.Equal(t, 4, held.Quantity)

		found, err := requestRepo.FindByRequestID(ctx, "REQ-1")
		require.NoError(t, err)
		assert.True(t, found.MaterialGiven)
	})

	t.Run("Insufficient stock aborts the whole hand-over", func(t *testing.T) {
		request := domain.NewItemRequest("REQ-2", "EMP-WINDER", "EMP-STORE", []domain.RequestLine{
			{MaterialID: "MAT-COPPER", Quantity: 2},
			{MaterialID: "MAT-COPPER", Quantity: 100},
		}, false, "")
		require.NoError(t, requestRepo.Save(ctx, request))
		require.NoError(t, request.Decide(domain.DecisionApprove, "EMP-MGR", ""))
		require.NoError(t, requestRepo.SaveDecision(ctx, request))
		request.MarkSanctioned()

		err := requestRepo.Sanction(ctx, request)
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)

		// The covered first line must have been rolled back too, and the
		// hand-over mark with it.
		material, err := materialRepo.FindByMaterialID(ctx, "MAT-COPPER")
		require.NoError(t, err)
		assert.Equal(t, 6, material.Stock)

		held, err := userStockRepo.Find(ctx, "EMP-WINDER", "MAT-COPPER")
		require.NoError(t, err)
		assert.Equal(t, 4, held.Quantity)

		found, err := requestRepo.FindByRequestID(ctx, "REQ-2")
		require.NoError(t, err)
		assert.False(t, found.MaterialGiven)
	})

	t.Run("Racing sanctions debit stock exactly once", func(t *testing.T) {
		request := domain.NewItemRequest("REQ-3", "EMP-WINDER", "EMP-STORE", []domain.RequestLine{
			{MaterialID: "MAT-COPPER", Quantity: 2},
		}, false, "")
		require.NoError(t, requestRepo.Save(ctx, request))
		require.NoError(t, request.Decide(domain.DecisionApprove, "EMP-MGR", ""))
		require.NoError(t, requestRepo.SaveDecision(ctx, request))

		before, err := materialRepo.FindByMaterialID(ctx, "MAT-COPPER")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				attempt, err := requestRepo.FindByRequestID(ctx, "REQ-3")
				if err != nil {
					errs[i] = err
					return
				}
				attempt.MarkSanctioned()
				errs[i] = requestRepo.Sanction(ctx, attempt)
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, domain.ErrMaterialAlreadyGiven)
			}
		}
		assert.Equal(t, 1, winners)

		after, err := materialRepo.FindByMaterialID(ctx, "MAT-COPPER")
		require.NoError(t, err)
		assert.Equal(t, before.Stock-2, after.Stock)

		held, err := userStockRepo.Find(ctx, "EMP-WINDER", "MAT-COPPER")
		require.NoError(t, err)
		assert.Equal(t, 6, held.Quantity)
	})
}

func TestUserStockRepository_Consume(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := mongodb.NewUserStockRepository(db, newEventFactory())

	ctx, cancel := sharedtesting.CreateTestContext(30 * time.Second)
	defer cancel()

	now := time.Now().UTC()
	_, err := db.Collection("user_item_stocks").InsertMany(ctx, []interface{}{
		domain.UserItemStock{EmployeeID: "EMP-7", MaterialID: "MAT-SOLDER", Quantity: 5, UpdatedAt: now},
		domain.UserItemStock{EmployeeID: "EMP-7", MaterialID: "MAT-FLUX", Quantity: 2, UpdatedAt: now},
	})
	require.NoError(t, err)

	t.Run("Consume debits every line and records the usages", func(t *testing.T) {
		usages := []*domain.ItemUsage{
			{EmployeeID: "EMP-7", MaterialID: "MAT-SOLDER", Quantity: 3, ProcessID: "PROC-1"},
			{EmployeeID: "EMP-7", MaterialID: "MAT-FLUX", Quantity: 1, ProcessID: "PROC-1"},
		}
		require.NoError(t, repo.Consume(ctx, usages))

		held, err := repo.Find(ctx, "EMP-7", "MAT-SOLDER")
		require.NoError(t, err)
		assert.Equal(t, 2, held.Quantity)

		held, err = repo.Find(ctx, "EMP-7", "MAT-FLUX")
		require.NoError(t, err)
		assert.Equal(t, 1, held.Quantity)

		count, err := db.Collection("item_usages").CountDocuments(ctx, bson.M{"employeeId": "EMP-7"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
	})

	t.Run("Short line aborts the whole booking", func(t *testing.T) {
		usages := []*domain.ItemUsage{
			{EmployeeID: "EMP-7", MaterialID: "MAT-FLUX", Quantity: 1},
			{EmployeeID: "EMP-7", MaterialID: "MAT-SOLDER", Quantity: 10},
		}
		err := repo.Consume(ctx, usages)
		assert.ErrorIs(t, err, domain.ErrInsufficientPersonalStock)

		// The covered first line must have been rolled back too.
		held, err := repo.Find(ctx, "EMP-7", "MAT-FLUX")
		require.NoError(t, err)
		assert.Equal(t, 1, held.Quantity)

		held, err = repo.Find(ctx, "EMP-7", "MAT-SOLDER")
		require.NoError(t, err)
		assert.Equal(t, 2, held.Quantity)
	})

	t.Run("Missing holding is told apart from a short one", func(t *testing.T) {
		usages := []*domain.ItemUsage{{EmployeeID: "EMP-7", MaterialID: "MAT-UNKNOWN", Quantity: 1}}
		err := repo.Consume(ctx, usages)
		assert.ErrorIs(t, err, domain.ErrStockNotHeld)

		count, err := db.Collection("item_usages").CountDocuments(ctx, bson.M{"employeeId": "EMP-7"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
	})
}
