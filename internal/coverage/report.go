package coverage

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Report is a coverage result with the context an operator needs to act
// on it.
type Report struct {
	Product  string
	Mode     string
	Location string
	Result   Result
}

// Render writes a human-readable report listing every missing date.
func (r Report) Render(w io.Writer) error {
	res := r.Result
	_, err := fmt.Fprintf(w,
		"Coverage report: %s\n  mode:     %s\n  location: %s\n  window:   %s\n  coverage: %.2f%% (%d of %d)\n",
		r.Product, r.Mode, r.Location, res.Window, res.CoveragePct, res.Present, res.Expected)
	if err != nil {
		return err
	}
	if res.Complete() {
		_, err = fmt.Fprintln(w, "  missing:  none")
		return err
	}
	if _, err := fmt.Fprintf(w, "  missing:  %d dates\n", len(res.Missing)); err != nil {
		return err
	}
	for _, d := range res.Missing {
		if _, err := fmt.Fprintf(w, "    %s\n", d.Format(time.DateOnly)); err != nil {
			return err
		}
	}
	return nil
}

// Log emits the report as a single structured log record.
func (r Report) Log(logger *slog.Logger) {
	missing := make([]string, len(r.Result.Missing))
	for i, d := range r.Result.Missing {
		missing[i] = d.Format(time.DateOnly)
	}
	logger.Info("coverage report",
		"product", r.Product,
		"mode", r.Mode,
		"location", r.Location,
		"window", r.Result.Window.String(),
		"coverage_pct", r.Result.CoveragePct,
		"expected", r.Result.Expected,
		"present", r.Result.Present,
		"missing", missing,
	)
}
