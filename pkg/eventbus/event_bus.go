package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/changeorders/pkg/serrors"
)

// EventBus routes published values to every subscribed func whose parameter
// list matches the published arguments.
type EventBus interface {
	Publish(args ...any)
	PublishE(args ...any) error
	Subscribe(handler any)
	Unsubscribe(handler any)
	SubscribersCount() int
}

var (
	ErrNoSubscribers        = serrors.NewError("EVENTBUS_NO_SUBSCRIBERS", "no matching subscribers", "")
	ErrInvalidHandlerReturn = serrors.NewError("EVENTBUS_INVALID_HANDLER_RETURN", "invalid handler return signature", "")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type bus struct {
	log *logrus.Entry

	mu       sync.RWMutex
	handlers []reflect.Value
}

func New(log *logrus.Logger) EventBus {
	b := &bus{}
	if log != nil {
		b.log = log.WithField("component", "eventbus")
	}
	return b
}

func MatchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func {
		return false
	}
	if t.NumIn() != len(args) {
		return false
	}

	for i, arg := range args {
		paramType := t.In(i)
		if arg == nil {
			if paramType.Kind() != reflect.Interface && paramType.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		if !reflect.TypeOf(arg).AssignableTo(paramType) {
			return false
		}
	}
	return true
}

func (b *bus) snapshot() []reflect.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]reflect.Value, len(b.handlers))
	copy(out, b.handlers)
	return out
}

func callArgs(handler reflect.Value, args []any) []reflect.Value {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(handler.Type().In(i))
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}
	return in
}

// Publish delivers args to matching handlers and logs failures.
func (b *bus) Publish(args ...any) {
	if err := b.PublishE(args...); err != nil && b.log != nil {
		if errors.Is(err, ErrNoSubscribers) {
			b.log.Warnf("eventbus.Publish: no matching subscribers for event with args: %v", args)
			return
		}
		b.log.WithError(err).Errorf("eventbus.Publish: handler failed for args %v", args)
	}
}

// PublishE delivers args to matching handlers and joins their errors. Panics
// are recovered and reported as errors; other handlers still run.
func (b *bus) PublishE(args ...any) error {
	handled := false
	var errs []error

	for _, h := range b.snapshot() {
		if !MatchSignature(h.Interface(), args) {
			continue
		}
		handled = true

		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = append(errs, fmt.Errorf("eventbus: handler %s panicked: %v", h.Type().String(), r))
				}
			}()

			out := h.Call(callArgs(h, args))
			switch {
			case len(out) == 0:
			case len(out) == 1 && out[0].Type() == errorType:
				if !out[0].IsNil() {
					errs = append(errs, out[0].Interface().(error))
				}
			default:
				errs = append(errs, fmt.Errorf("%w: handler %s", ErrInvalidHandlerReturn, h.Type().String()))
			}
		}()
	}

	if !handled {
		return ErrNoSubscribers
	}
	return errors.Join(errs...)
}

func (b *bus) Subscribe(handler any) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		panic("handler must be a function")
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, v)
	b.mu.Unlock()
}

func (b *bus) Unsubscribe(handler any) {
	ptr := reflect.ValueOf(handler).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.Pointer() == ptr {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

func (b *bus) SubscribersCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
