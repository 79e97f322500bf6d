package query

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/nainya/evqlite/internal/logger"
	"github.com/nainya/evqlite/internal/metrics"
	"github.com/nainya/evqlite/pkg/evqerr"
	"github.com/nainya/evqlite/pkg/wire"
)

// Config bounds one session's behavior.
type Config struct {
	// ProgressRateLimit is the minimum interval between QueryProgress
	// frames, mirroring server.query_progress_rate_limit.
	ProgressRateLimit time.Duration
	// HeartbeatInterval, if non-zero, sends a HEARTBEAT frame on this
	// cadence for the duration of query execution.
	HeartbeatInterval time.Duration
}

// Session is the per-connection query operation handler. One Session
// serves exactly one connection; it is not safe for concurrent use.
type Session struct {
	planner  StatementPlanner
	cfg      Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	database string
}

// NewSession constructs a Session bound to planner.
func NewSession(planner StatementPlanner, cfg Config, log *logger.Logger, m *metrics.Metrics) *Session {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Session{planner: planner, cfg: cfg, log: log, metrics: m}
}

// Serve drives conn until it errors or the peer closes it. Each
// iteration expects one QUERY frame starting a fresh
// SWITCHDB/PROGRESS/MULTISTMT exchange.
func (s *Session) Serve(ctx context.Context, conn net.Conn) error {
	r := bufio.NewReader(conn)
	for {
		f, err := wire.ReadFrame(r)
		if err != nil {
			return err
		}
		if f.Opcode != wire.OpQuery {
			return evqerr.New(evqerr.KindProtocol, "expected QUERY frame to start an exchange")
		}
		if err := s.handleQuery(ctx, conn, r, f); err != nil {
			return err
		}
	}
}

// handleQuery implements spec steps 1-6 for one QUERY frame. Errors
// that are reported to the client as an ErrorFrame are swallowed here
// (the session keeps running); only connection-fatal errors (I/O,
// protocol violations) are returned.
func (s *Session) handleQuery(ctx context.Context, conn net.Conn, r *bufio.Reader, f wire.Frame) error {
	req, err := DecodeRequest(f.Payload)
	if err != nil {
		return evqerr.Wrap(evqerr.KindProtocol, "decode query request", err)
	}

	if f.Flags&uint16(wire.FlagSwitchDB) != 0 {
		s.database = req.Database
	}
	if s.database == "" {
		return s.sendErrorFrame(conn, evqerr.New(evqerr.KindInvalidArgument, "no database selected"))
	}

	plan, err := s.planner.Plan(ctx, req.QueryText, s.database)
	if err != nil {
		return s.sendErrorFrame(conn, err)
	}

	multiStmt := f.Flags&uint16(wire.FlagMultiStmt) != 0
	if plan.NumStatements() > 1 && !multiStmt {
		return s.sendErrorFrame(conn, evqerr.New(evqerr.KindInvalidArgument, "query has multiple statements but MULTISTMT was not set"))
	}

	if s.cfg.HeartbeatInterval > 0 {
		stop := s.startHeartbeat(conn)
		defer stop()
	}
	if f.Flags&uint16(wire.FlagProgress) != 0 {
		s.installProgressCallback(conn, plan)
	}

	for stmt := 0; stmt < plan.NumStatements(); stmt++ {
		cursor, err := plan.Execute(ctx, stmt)
		if err != nil {
			return s.sendErrorFrame(conn, err)
		}

		discarded, err := s.streamStatement(conn, r, plan, stmt, cursor, req.MaxRows)
		closeErr := cursor.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return evqerr.Wrap(evqerr.KindIOError, "closing row cursor", closeErr)
		}
		if discarded {
			return nil
		}

		if stmt < plan.NumStatements()-1 {
			next, err := wire.ReadFrame(r)
			if err != nil {
				return err
			}
			switch next.Opcode {
			case wire.OpQueryNext:
				continue
			case wire.OpQueryDiscard:
				return nil
			default:
				return evqerr.New(evqerr.KindProtocol, "expected QUERY_NEXT or QUERY_DISCARD between statements")
			}
		}
	}
	return nil
}

// streamStatement emits one statement's rows in QUERY_RESULT frames,
// chunked by Request.MaxRows, handling QUERY_CONTINUE/QUERY_DISCARD at
// each chunk boundary. discarded reports whether the client asked to
// stop via QUERY_DISCARD.
func (s *Session) streamStatement(conn net.Conn, r *bufio.Reader, plan Plan, stmt int, cursor RowCursor, maxRows uint64) (discarded bool, err error) {
	cols := plan.ResultColumns(stmt)
	row := make([]Value, len(cols))
	var batch [][]Value

	flush := func(isLast bool) error {
		rf := ResultFrame{
			Rows:                batch,
			IsLast:              isLast,
			HasPendingStatement: isLast && stmt < plan.NumStatements()-1,
		}
		payload := EncodeResult(rf)
		if s.metrics != nil {
			s.metrics.RecordQueryFrame("QUERY_RESULT", len(batch))
		}
		batch = nil
		return wire.WriteFrame(conn, wire.OpQueryResult, 0, payload)
	}

	for cursor.Next(row) {
		rowCopy := make([]Value, len(row))
		copy(rowCopy, row)
		batch = append(batch, rowCopy)

		if maxRows > 0 && uint64(len(batch)) >= maxRows {
			if err := flush(false); err != nil {
				return false, evqerr.Wrap(evqerr.KindIOError, "writing result frame", err)
			}
			next, err := wire.ReadFrame(r)
			if err != nil {
				return false, err
			}
			switch next.Opcode {
			case wire.OpQueryContinue:
				continue
			case wire.OpQueryDiscard:
				return true, nil
			default:
				return false, evqerr.New(evqerr.KindProtocol, "unexpected opcode mid-statement")
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return false, s.sendErrorFrame(conn, err)
	}
	if err := flush(true); err != nil {
		return false, evqerr.Wrap(evqerr.KindIOError, "writing terminal result frame", err)
	}
	return false, nil
}

func (s *Session) sendErrorFrame(conn net.Conn, cause error) error {
	if werr := wire.WriteFrame(conn, wire.OpError, 0, []byte(cause.Error())); werr != nil {
		return evqerr.Wrap(evqerr.KindIOError, "writing error frame", werr)
	}
	if s.metrics != nil {
		s.metrics.RecordQueryFrame("ERROR", 0)
	}
	return nil
}

func (s *Session) installProgressCallback(conn net.Conn, plan Plan) {
	var mu sync.Mutex
	var last time.Time

	plan.SetProgressCallback(func(frac float64) {
		mu.Lock()
		defer mu.Unlock()
		if s.cfg.ProgressRateLimit > 0 && time.Since(last) < s.cfg.ProgressRateLimit {
			return
		}
		last = time.Now()

		permille := uint64(frac * 1000)
		payload := wire.PutUvarint(nil, permille)
		if err := wire.WriteFrame(conn, wire.OpQueryProgress, 0, payload); err != nil {
			return
		}
		if s.metrics != nil {
			s.metrics.QueryProgressFrames.Inc()
		}
	})
}

func (s *Session) startHeartbeat(conn net.Conn) (stop func()) {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := wire.WriteFrame(conn, wire.OpHeartbeat, 0, nil); err != nil {
					return
				}
			case <-stopCh:
				return
			}
		}
	}()
	return func() {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
}
