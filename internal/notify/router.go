// Package notify classifies server-pushed advisories by severity and
// suppresses duplicate internal-monologue notifications.
package notify

import (
	"log/slog"

	"github.com/stitionai/devika-go/internal/logging"
)

// Advisory severities. Anything else is silently dropped for forward
// compatibility with newer backends.
const (
	KindError   = "error"
	KindWarning = "warning"
	KindInfo    = "info"
)

// Presenter renders one advisory to the user. Implementations decide
// what "blocking" means for their surface (toast, dialog, log line).
type Presenter interface {
	// Error presents a blocking, error-level advisory.
	Error(message string)
	// Warning presents a non-blocking advisory.
	Warning(message string)
	// Info presents an informational advisory.
	Info(message string)
}

// Router dispatches advisories by severity. Error-kind advisories also
// fire the terminal callback so an outstanding "sending" indicator can
// be cleared even when no terminal agent-state will ever arrive.
type Router struct {
	presenter  Presenter
	onTerminal func()
}

// NewRouter creates a router. presenter must be non-nil; onTerminal may
// be nil when no sending indicator exists.
func NewRouter(presenter Presenter, onTerminal func()) *Router {
	return &Router{presenter: presenter, onTerminal: onTerminal}
}

// Route performs exactly one user-visible side effect for a recognized
// kind and nothing at all for an unrecognized one.
func (r *Router) Route(kind, message string) {
	switch kind {
	case KindError:
		r.presenter.Error(message)
		if r.onTerminal != nil {
			r.onTerminal()
		}
	case KindWarning:
		r.presenter.Warning(message)
	case KindInfo:
		r.presenter.Info(message)
	default:
		logging.Sync().Debug("dropping unrecognized advisory", "kind", kind)
	}
}

// LogPresenter renders advisories as log records at the matching level.
// It is the default presenter for headless use.
type LogPresenter struct {
	log *slog.Logger
}

// NewLogPresenter creates a presenter over the given logger. A nil
// logger uses the sync component logger.
func NewLogPresenter(log *slog.Logger) *LogPresenter {
	if log == nil {
		log = logging.Sync()
	}
	return &LogPresenter{log: log}
}

func (p *LogPresenter) Error(message string)   { p.log.Error(message) }
func (p *LogPresenter) Warning(message string) { p.log.Warn(message) }
func (p *LogPresenter) Info(message string)    { p.log.Info(message) }
