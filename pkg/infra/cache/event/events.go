package event

import "reflect"

type Event interface {
	Type() string
}

var (
	InvalidateKeyEventType  = "InvalidateKeyEvent"
	FlushNamespaceEventType = "FlushNamespaceEvent"
)

var Registry = map[string]reflect.Type{
	InvalidateKeyEventType:  reflect.TypeOf(InvalidateKeyEvent{}),
	FlushNamespaceEventType: reflect.TypeOf(FlushNamespaceEvent{}),
}
