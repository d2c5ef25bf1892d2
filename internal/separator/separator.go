package separator

import "context"

// Request describes one vocal separation run.
type Request struct {
	RequestID string
	InputPath string
	Model     string
	Device    string
}

// Separator isolates the vocal track of an audio file. The returned path is
// a scratch file owned by the caller, who must release it.
type Separator interface {
	Separate(ctx context.Context, req Request) (string, error)
	Name() string
}
