package observability

// EventEnvelope is the body shape of every event published to the broker:
// a type/name pair consumers route on, plus an event-specific payload.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// CorrelationHeaders carries request and trace ids on published events so
// consumers can stitch them to the originating HTTP call. Blank ids are
// omitted; with nothing to carry it returns nil.
func CorrelationHeaders(requestID, traceID string) map[string]string {
	headers := make(map[string]string, 2)
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
