package batch

// ItemPolicy decides what a failed item does to its batch.
type ItemPolicy interface {
	Name() string
	// Absorb reports whether the failure is dropped and the batch continues.
	Absorb(index int, file FileRef, err error) bool
}

var (
	// BestEffort drops failed items silently. Used for text extraction.
	BestEffort ItemPolicy = bestEffort{}
	// FailFast aborts the batch on the first failed item. Used for uploads.
	FailFast ItemPolicy = failFast{}
)

type bestEffort struct{}

func (bestEffort) Name() string                    { return "best_effort" }
func (bestEffort) Absorb(int, FileRef, error) bool { return true }

type failFast struct{}

func (failFast) Name() string                    { return "fail_fast" }
func (failFast) Absorb(int, FileRef, error) bool { return false }
