package cloudevents

import (
	"time"
)

// EventType constants for pipeline domain events
const (
	// Process lifecycle events
	ProcessCreated    = "rms.pipeline.process-created"
	ActivityAccepted  = "rms.pipeline.activity-accepted"
	ActivityStarted   = "rms.pipeline.activity-started"
	StageAdvanced     = "rms.pipeline.stage-advanced"
	ProcessRedirected = "rms.pipeline.process-redirected"
	ProcessCompleted  = "rms.pipeline.process-completed"
	DisassembleDone   = "rms.pipeline.disassemble-submitted"

	// Material ledger events
	MaterialRequested  = "rms.ledger.material-requested"
	RequestDecided     = "rms.ledger.request-decided"
	MaterialSanctioned = "rms.ledger.material-sanctioned"
	MaterialConsumed   = "rms.ledger.material-consumed"
)

// Source constants for event sources
const (
	SourcePipeline = "/rms/pipeline-service"
)

// RMSCloudEvent represents a CloudEvents v1.0 compliant event
type RMSCloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	// Pipeline-specific extensions
	CorrelationID string `json:"rmscorrelationid,omitempty"`
	ProcessID     string `json:"rmsprocessid,omitempty"`
	EmployeeID    string `json:"rmsemployeeid,omitempty"`
}

// ProcessCreatedData is the payload for ProcessCreated
type ProcessCreatedData struct {
	ProcessID    string `json:"processId"`
	ProductName  string `json:"productName"`
	ItemName     string `json:"itemName"`
	SubItemName  string `json:"subItemName"`
	SerialNumber string `json:"serialNumber"`
	ItemType     string `json:"itemType"`
	InitialStage string `json:"initialStage"`
	CreatedBy    string `json:"createdBy"`
}

// ActivityAcceptedData is the payload for ActivityAccepted
type ActivityAcceptedData struct {
	ProcessID  string `json:"processId"`
	ActivityID string `json:"activityId"`
	Stage      string `json:"stage"`
	EmployeeID string `json:"employeeId"`
}

// ActivityStartedData is the payload for ActivityStarted
type ActivityStartedData struct {
	ProcessID  string `json:"processId"`
	ActivityID string `json:"activityId"`
	Stage      string `json:"stage"`
	EmployeeID string `json:"employeeId"`
}

// StageAdvancedData is the payload for StageAdvanced
type StageAdvancedData struct {
	ProcessID string `json:"processId"`
	FromStage string `json:"fromStage"`
	ToStage   string `json:"toStage"`
	Outcome   string `json:"outcome"`
}

// ProcessRedirectedData is the payload for ProcessRedirected
type ProcessRedirectedData struct {
	ProcessID     string `json:"processId"`
	FromStage     string `json:"fromStage"`
	RedirectStage string `json:"redirectStage"`
	FailureReason string `json:"failureReason"`
	Disassemble   bool   `json:"disassemble"`
}

// ProcessCompletedData is the payload for ProcessCompleted
type ProcessCompletedData struct {
	ProcessID   string `json:"processId"`
	FinalStatus string `json:"finalStatus"`
	ItemType    string `json:"itemType"`
	IsRepaired  bool   `json:"isRepaired"`
	FinalStage  string `json:"finalStage"`
}

// DisassembleDoneData is the payload for DisassembleDone
type DisassembleDoneData struct {
	ProcessID      string         `json:"processId"`
	DisassembledBy string         `json:"disassembledBy"`
	ReceivedBy     string         `json:"receivedBy"`
	ReclaimedItems []MaterialLine `json:"reclaimedItems"`
}

// MaterialLine is a material id plus quantity, shared by ledger payloads
type MaterialLine struct {
	MaterialID string `json:"materialId"`
	Quantity   int    `json:"quantity"`
	Unit       string `json:"unit,omitempty"`
}

// MaterialRequestedData is the payload for MaterialRequested
type MaterialRequestedData struct {
	RequestID   string         `json:"requestId"`
	RequestedBy string         `json:"requestedBy"`
	RequestedTo string         `json:"requestedTo"`
	Materials   []MaterialLine `json:"materials"`
	ProcessID   string         `json:"processId,omitempty"`
}

// RequestDecidedData is the payload for RequestDecided
type RequestDecidedData struct {
	RequestID string `json:"requestId"`
	Decision  string `json:"decision"` // "APPROVED" | "DECLINED"
	DecidedBy string `json:"decidedBy"`
	Remarks   string `json:"remarks,omitempty"`
}

// MaterialSanctionedData is the payload for MaterialSanctioned
type MaterialSanctionedData struct {
	RequestID  string         `json:"requestId"`
	EmployeeID string         `json:"employeeId"`
	Materials  []MaterialLine `json:"materials"`
}

// MaterialConsumedData is the payload for MaterialConsumed
type MaterialConsumedData struct {
	ProcessID  string         `json:"processId"`
	EmployeeID string         `json:"employeeId"`
	Materials  []MaterialLine `json:"materials"`
}
