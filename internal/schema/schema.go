package schema

// EventType defines the category of an event flowing through the pipeline.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventTick
	EventOrderIntent
	EventRiskDecision
	EventOrderSent
	EventFill
)

func (t EventType) String() string {
	switch t {
	case EventTick:
		return "tick"
	case EventOrderIntent:
		return "order_intent"
	case EventRiskDecision:
		return "risk_decision"
	case EventOrderSent:
		return "order_sent"
	case EventFill:
		return "fill"
	default:
		return "unknown"
	}
}
