package goroutine

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ignatzorin/rental-escrow/internal/logger"
)

// Logger интерфейс для логирования ошибок
type Logger interface {
	Errorf(format string, args ...interface{})
}

// RecoveryHandler обрабатывает panic в горутинах
type RecoveryHandler struct {
	logger Logger
}

// NewRecoveryHandler создает новый обработчик. При nil пишет в logger.Log.
func NewRecoveryHandler(l Logger) *RecoveryHandler {
	return &RecoveryHandler{logger: l}
}

func (rh *RecoveryHandler) log() Logger {
	if rh.logger != nil {
		return rh.logger
	}
	// logger.Log подменяется в Init, поэтому берём его при каждом вызове
	return logger.Log
}

func (rh *RecoveryHandler) recover(name string) {
	if r := recover(); r != nil {
		rh.log().Errorf("паника в горутине %s: %v\nstack:\n%s", name, r, debug.Stack())
	}
}

// SafeGo запускает горутину с обработкой panic
func (rh *RecoveryHandler) SafeGo(fn func()) {
	go func() {
		defer rh.recover("")
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic
func (rh *RecoveryHandler) SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer rh.recover("")
		fn(ctx)
	}()
}

// DefaultRecoveryHandler глобальный обработчик, пишет в logger.Log.
var DefaultRecoveryHandler = NewRecoveryHandler(nil)

// SafeGo - упрощенная функция для запуска безопасной горутины
func SafeGo(fn func()) {
	DefaultRecoveryHandler.SafeGo(fn)
}

// SafeGoWithContext - упрощенная функция для запуска безопасной горутины с контекстом
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	DefaultRecoveryHandler.SafeGoWithContext(ctx, fn)
}

// Group фоновые задачи процесса, которых нужно дождаться при остановке.
type Group struct {
	rh *RecoveryHandler
	wg sync.WaitGroup
}

func NewGroup(rh *RecoveryHandler) *Group {
	if rh == nil {
		rh = DefaultRecoveryHandler
	}
	return &Group{rh: rh}
}

// Go запускает именованную задачу. Паника задачи логируется и не роняет процесс.
func (g *Group) Go(ctx context.Context, name string, fn func(context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.rh.recover(name)
		fn(ctx)
	}()
}

// Wait ждёт завершения задач не дольше timeout. Возвращает false по таймауту.
func (g *Group) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
