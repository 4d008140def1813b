package cloudevents

// CloudEvents extension attribute names carried as message headers
const (
	ExtCorrelationID = "rmscorrelationid"
	ExtProcessID     = "rmsprocessid"
	ExtEmployeeID    = "rmsemployeeid"
)

// WithCorrelation sets the correlation id and returns the event
func (e *RMSCloudEvent) WithCorrelation(correlationID string) *RMSCloudEvent {
	e.CorrelationID = correlationID
	return e
}

// WithProcess sets the process id extension and returns the event
func (e *RMSCloudEvent) WithProcess(processID string) *RMSCloudEvent {
	e.ProcessID = processID
	return e
}

// WithEmployee sets the employee id extension and returns the event
func (e *RMSCloudEvent) WithEmployee(employeeID string) *RMSCloudEvent {
	e.EmployeeID = employeeID
	return e
}
