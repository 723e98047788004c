package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/market-lattice/internal/agent"
	"github.com/kingrea/market-lattice/internal/pipeline"
)

// Writer renders stage outcomes into a per-run directory of reports.
type Writer struct {
	root   string
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	written map[string][]string
}

var _ pipeline.ReportWriter = (*Writer)(nil)

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithWriterClock overrides the clock used for report timestamps.
func WithWriterClock(clock func() time.Time) WriterOption {
	return func(w *Writer) {
		if clock != nil {
			w.now = clock
		}
	}
}

// WithWriterLogger sets the logger.
func WithWriterLogger(logger *zap.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter writes each run under root/<run id> unless the run names its own
// output directory.
func NewWriter(root string, opts ...WriterOption) *Writer {
	w := &Writer{
		root:    root,
		now:     time.Now,
		logger:  zap.NewNop(),
		written: map[string][]string{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunDir returns the directory reports for run are written to.
func (w *Writer) RunDir(run *pipeline.Run) string {
	if dir := run.Params().OutputDir; dir != "" {
		return dir
	}
	return filepath.Join(w.root, run.ID())
}

// Written returns the report paths produced for a run so far.
func (w *Writer) Written(runID string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written[runID]...)
}

// Ready returns the file names of the run's reports that exist on disk with
// valid metadata. Invalid files are logged and left out.
func (w *Writer) Ready(run *pipeline.Run) []string {
	store := w.store(run)
	var ready []string
	for _, ref := range All() {
		res, err := store.Check(ref)
		switch {
		case res.State == StateReady:
			ready = append(ready, ref.File)
		case res.State == StateInvalid || err != nil:
			w.logger.Warn("report: unreadable report",
				zap.String("run_id", run.ID()),
				zap.String("report", ref.ID),
				zap.Error(res.Err),
			)
		}
	}
	return ready
}

// WriteStage renders one stage outcome. Failed stage 1 outcomes produce no
// report.
func (w *Writer) WriteStage(run *pipeline.Run, outcome pipeline.StageOutcome) error {
	if !outcome.OK || outcome.Payload == nil {
		return nil
	}
	store := w.store(run)
	meta := w.metadata(run, string(outcome.Stage))
	meta.Notes = map[string]string{"duration": outcome.Duration().Round(time.Millisecond).String()}
	category, region := run.Category(), run.Region()

	switch payload := outcome.Payload.(type) {
	case *agent.VendorList:
		meta.Notes["vendors"] = fmt.Sprint(len(payload.Vendors))
		if err := w.write(run, store, VendorDoc, VendorReport(payload, category, region), meta); err != nil {
			return err
		}
		return w.writeJSON(run, store, VendorJSON, payload, meta)
	case *agent.PESTLEAnalysis:
		return w.write(run, store, PESTLEDoc, PESTLEReport(payload, category, region), meta)
	case *agent.PortersAnalysis:
		return w.write(run, store, PortersDoc, PortersReport(payload, category, region), meta)
	case *pipeline.DeepDiveBatch:
		meta.Notes["succeeded"] = fmt.Sprint(payload.Succeeded())
		meta.Notes["total"] = fmt.Sprint(payload.Total())
		return w.write(run, store, SWOTDoc, SWOTReport(payload, category, region), meta)
	case *agent.QuestionSet:
		meta.Notes["questions"] = fmt.Sprint(payload.Count())
		if err := w.write(run, store, RFPDoc, RFPReport(payload, category, region), meta); err != nil {
			return err
		}
		return w.writeJSON(run, store, RFPJSON, payload, meta)
	default:
		return fmt.Errorf("report: no renderer for %s payload %T", outcome.Stage, outcome.Payload)
	}
}

// WriteSummary writes the outcome table and, for a completed run, the
// combined report.
func (w *Writer) WriteSummary(run *pipeline.Run, result *pipeline.Result) error {
	store := w.store(run)
	meta := w.metadata(run, "")
	if result != nil {
		meta.Notes = map[string]string{"state": string(result.State)}
	}
	if err := w.write(run, store, SummaryDoc, SummaryReport(run, result), meta); err != nil {
		return err
	}
	if result == nil || result.State != pipeline.StateDone {
		return nil
	}
	var sections [][]byte
	for _, ref := range []Ref{VendorDoc, PESTLEDoc, PortersDoc, SWOTDoc, RFPDoc} {
		body, err := store.Body(ref)
		if err != nil {
			w.logger.Warn("report: stage report unavailable for combined report",
				zap.String("run_id", run.ID()), zap.String("report", ref.ID), zap.Error(err))
			continue
		}
		sections = append(sections, body)
	}
	return w.write(run, store, CompleteDoc, CompleteReport(run.Category(), run.Region(), sections...), w.metadata(run, ""))
}

func (w *Writer) store(run *pipeline.Run) *Store {
	return NewStore(w.RunDir(run), WithClock(w.now))
}

func (w *Writer) metadata(run *pipeline.Run, stage string) Metadata {
	return Metadata{
		Stage:    stage,
		Run:      run.ID(),
		Category: run.Category(),
		Region:   run.Region(),
	}
}

func (w *Writer) write(run *pipeline.Run, store *Store, ref Ref, body []byte, meta Metadata) error {
	path, err := store.Write(ref, body, meta)
	if err != nil {
		return err
	}
	w.logger.Debug("report written", zap.String("run_id", run.ID()), zap.String("report", ref.ID), zap.String("path", path))
	w.mu.Lock()
	w.written[run.ID()] = append(w.written[run.ID()], path)
	w.mu.Unlock()
	return nil
}

func (w *Writer) writeJSON(run *pipeline.Run, store *Store, ref Ref, payload any, meta Metadata) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("report: encode %s: %w", ref.ID, err)
	}
	return w.write(run, store, ref, body, meta)
}
