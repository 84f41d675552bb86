package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/mcclellann/saccoLoan/pkg/models"
)

// Authorizer gates receipt output behind a logged-in administrator.
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// Printer writes receipts as JSON lines.
type Printer struct {
	mu   sync.Mutex
	w    io.Writer
	gate Authorizer
	now  func() time.Time
}

type printed struct {
	Kind      models.ReceiptKind `json:"kind"`
	PrintedAt time.Time          `json:"printed_at"`
	Receipt   models.Receipt     `json:"receipt"`
}

func NewPrinter(w io.Writer, gate Authorizer) *Printer {
	return &Printer{w: w, gate: gate, now: time.Now}
}

// Emit prints one receipt. Callers treat failures as non-fatal.
func (p *Printer) Emit(ctx context.Context, rec models.Receipt, kind models.ReceiptKind) error {
	if p.gate != nil {
		if err := p.gate.Authorize(ctx); err != nil {
			return fmt.Errorf("print receipt %s: %w", rec.ReceiptNo, err)
		}
	}

	line, err := json.Marshal(printed{Kind: kind, PrintedAt: p.now().UTC(), Receipt: rec})
	if err != nil {
		return fmt.Errorf("encode receipt %s: %w", rec.ReceiptNo, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write receipt %s: %w", rec.ReceiptNo, err)
	}
	logger.Debug("Receipt printed", "receipt_no", rec.ReceiptNo, "kind", kind, "member_id", rec.MemberID)
	return nil
}

// Number builds a receipt number from a prefix and the last six digits of the millisecond clock.
func Number(prefix string, t time.Time) string {
	ms := strconv.FormatInt(t.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return prefix + ms
}
