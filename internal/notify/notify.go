// Package notify - каналы уведомлений пользователя о результате генерации.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Writer выводит уведомления построчно, например в stderr
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (n *Writer) Advise(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, message)
}

// Logger пишет уведомления в лог
type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

func (n *Logger) Advise(_ context.Context, message string) {
	n.logger.Warn("Advisory", zap.String("message", message))
}

// Recorder запоминает уведомления
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *Recorder) Advise(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages возвращает копию полученных уведомлений
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Last возвращает последнее уведомление или ""
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1]
}

// Notifier совпадает с generator.Notifier
type Notifier interface {
	Advise(ctx context.Context, message string)
}

type multi []Notifier

// Multi рассылает уведомление во все каналы
func Multi(notifiers ...Notifier) Notifier {
	return multi(notifiers)
}

func (m multi) Advise(ctx context.Context, message string) {
	for _, n := range m {
		n.Advise(ctx, message)
	}
}
