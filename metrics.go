package dialectcsv

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts Adapter session activity. A nil *Metrics records nothing.
type Metrics struct {
	rowsRead      prometheus.Counter
	rowsWritten   prometheus.Counter
	sessionErrors *prometheus.CounterVec
}

// NewMetrics creates the session counters and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		rowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dialectcsv",
			Name:      "rows_read_total",
			Help:      "Records read by adapter sessions.",
		}),
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dialectcsv",
			Name:      "rows_written_total",
			Help:      "Rows written by adapter sessions.",
		}),
		sessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dialectcsv",
			Name:      "session_errors_total",
			Help:      "Adapter sessions aborted by an error.",
		}, []string{"op", "kind"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.rowsRead, m.rowsWritten, m.sessionErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) addRead(n int) {
	if m != nil && n > 0 {
		m.rowsRead.Add(float64(n))
	}
}

func (m *Metrics) addWritten(n int) {
	if m != nil && n > 0 {
		m.rowsWritten.Add(float64(n))
	}
}

func (m *Metrics) sessionFailed(op string, err error) {
	if m != nil && err != nil {
		m.sessionErrors.WithLabelValues(op, errorKind(err)).Inc()
	}
}

// errorKind names the error class used as a metric label.
func errorKind(err error) string {
	var perr *ParseError
	var werr *WriteError
	switch {
	case errors.Is(err, ErrDialectInternal):
		return "dialect"
	case errors.Is(err, ErrHeaderIsNull):
		return "header"
	case errors.Is(err, ErrDataTransformerIsNull), errors.Is(err, ErrUnsupportedRow):
		return "transformer"
	case errors.Is(err, ErrCellCountMismatch):
		return "cell_count"
	case errors.As(err, &perr):
		return "parse"
	case errors.As(err, &werr):
		return "encode"
	case errors.Is(err, ErrUnknownEncoding):
		return "encoding"
	default:
		return "io"
	}
}
