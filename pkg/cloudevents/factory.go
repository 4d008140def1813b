package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventFactory creates CloudEvents for pipeline domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new RMSCloudEvent with the given parameters
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *RMSCloudEvent {
	return &RMSCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}
}

// CreateProcessCreatedEvent creates a ProcessCreated event
func (f *EventFactory) CreateProcessCreatedEvent(ctx context.Context, data ProcessCreatedData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, ProcessCreated, "process/"+data.ProcessID, data)
	event.ProcessID = data.ProcessID
	return event
}

// CreateActivityAcceptedEvent creates an ActivityAccepted event
func (f *EventFactory) CreateActivityAcceptedEvent(ctx context.Context, data ActivityAcceptedData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, ActivityAccepted, "process/"+data.ProcessID, data)
	event.ProcessID = data.ProcessID
	event.EmployeeID = data.EmployeeID
	return event
}

// CreateActivityStartedEvent creates an ActivityStarted event
func (f *EventFactory) CreateActivityStartedEvent(ctx context.Context, data ActivityStartedData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, ActivityStarted, "process/"+data.ProcessID, data)
	event.ProcessID = data.ProcessID
	event.EmployeeID = data.EmployeeID
	return event
}

// CreateStageAdvancedEvent creates a StageAdvanced event
func (f *EventFactory) CreateStageAdvancedEvent(ctx context.Context, data StageAdvancedData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, StageAdvanced, "process/"+data.ProcessID, data)
	event.ProcessID = data.ProcessID
	return event
}

// CreateProcessRedirectedEvent creates a ProcessRedirected event
func (f *EventFactory) CreateProcessRedirectedEvent(ctx context.Context, data ProcessRedirectedData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, ProcessRedirected, "process/"+data.ProcessID, data)
	event.ProcessID = data.ProcessID
	return event
}

// CreateProcessCompletedEvent creates a ProcessCompleted event
func (f *EventFactory) CreateProcessCompletedEvent(ctx context.Context, data ProcessCompletedData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, ProcessCompleted, "process/"+data.ProcessID, data)
	event.ProcessID = data.ProcessID
	return event
}

// CreateMaterialRequestedEvent creates a MaterialRequested event
func (f *EventFactory) CreateMaterialRequestedEvent(ctx context.Context, data MaterialRequestedData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, MaterialRequested, "request/"+data.RequestID, data)
	event.EmployeeID = data.RequestedBy
	return event
}

// CreateRequestDecidedEvent creates a RequestDecided event
func (f *EventFactory) CreateRequestDecidedEvent(ctx context.Context, data RequestDecidedData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, RequestDecided, "request/"+data.RequestID, data)
	event.EmployeeID = data.DecidedBy
	return event
}

// CreateMaterialSanctionedEvent creates a MaterialSanctioned event
func (f *EventFactory) CreateMaterialSanctionedEvent(ctx context.Context, data MaterialSanctionedData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, MaterialSanctioned, "request/"+data.RequestID, data)
	event.EmployeeID = data.EmployeeID
	return event
}

// CreateMaterialConsumedEvent creates a MaterialConsumed event
func (f *EventFactory) CreateMaterialConsumedEvent(ctx context.Context, data MaterialConsumedData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, MaterialConsumed, "process/"+data.ProcessID, data)
	event.ProcessID = data.ProcessID
	event.EmployeeID = data.EmployeeID
	return event
}

// CreateDisassembleDoneEvent creates a DisassembleDone event
func (f *EventFactory) CreateDisassembleDoneEvent(ctx context.Context, data DisassembleDoneData) *RMSCloudEvent {
	event := f.CreateEvent(ctx, DisassembleDone, "process/"+data.ProcessID, data)
	event.ProcessID = data.ProcessID
	event.EmployeeID = data.DisassembledBy
	return event
}
