package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type PurgeTokensMessage struct {
	OnResponse func(resp *PurgeTokensResponse)
}

func (e PurgeTokensMessage) Type() string { return "tokens.purge" }

type PurgeTokensResponse struct {
	Purged  int64
	Success bool
}

// PurgeTokensHandler sweeps spent and expired ephemeral tokens. Safe to run
// concurrently with issuance and consumption: it only deletes rows that can
// never be consumed again.
type PurgeTokensHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
}

func NewPurgeTokensHandler(repo RepositoryManager) *PurgeTokensHandler {
	return &PurgeTokensHandler{
		repo:   repo,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}
}

func (h *PurgeTokensHandler) WithActivitySink(sink ActivitySink) *PurgeTokensHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *PurgeTokensHandler) WithLogger(l Logger) *PurgeTokensHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *PurgeTokensHandler) Execute(ctx context.Context, event PurgeTokensMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token purge",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PurgeTokensHandler) execute(ctx context.Context, event PurgeTokensMessage) error {
	resp := &PurgeTokensResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	purged, err := h.repo.EphemeralTokens().PurgeExpired(ctx)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "token purge failed")
	}

	if purged > 0 {
		sink := normalizeActivitySink(h.sink)
		if err := sink.Record(ctx, ActivityEvent{
			EventType:  ActivityEventTokensPurged,
			Actor:      ActorRef{Type: "system"},
			OccurredAt: time.Now(),
			Metadata:   map[string]any{"purged": purged},
		}); err != nil {
			h.logger.Warn("token purge activity sink error: %v", err)
		}
	}

	resp.Purged = purged
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
