package cache

import (
	"context"
	"reflect"
)

type EventListener interface {
	Listen(ctx context.Context, channels ...Channel)
	Register(eventType reflect.Type, handler func(ctx context.Context, ev any) error)
}
