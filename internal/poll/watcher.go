// README: Watcher polls the board, reconciles the local view and reports forward transitions.
package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"buggy/internal/logger"
)

type Fetcher interface {
	FetchBoard(ctx context.Context) (Board, error)
}

// HTTPFetcher reads the staff board from a running API.
type HTTPFetcher struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPFetcher(baseURL, token string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) FetchBoard(ctx context.Context) (Board, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/staff/board", nil)
	if err != nil {
		return Board{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Board{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Board{}, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Board{}, fmt.Errorf("failed to read response body: %w", err)
	}
	var b Board
	if err := json.Unmarshal(body, &b); err != nil {
		return Board{}, fmt.Errorf("failed to unmarshal board: %w", err)
	}
	return b, nil
}

type Watcher struct {
	fetch        Fetcher
	tracker      *Tracker
	view         *View[string, Ride]
	activity     *Activity
	onTransition func(Transition)
	log          logger.ILogger
	task         *Task
}

func NewWatcher(fetch Fetcher, activity *Activity, onTransition func(Transition), log logger.ILogger) *Watcher {
	if onTransition == nil {
		onTransition = func(Transition) {}
	}
	return &Watcher{
		fetch:        fetch,
		tracker:      NewTracker(),
		view:         NewView[string, Ride](),
		activity:     activity,
		onTransition: onTransition,
		log:          log,
	}
}

// Poll fetches once. A failed fetch leaves the view and tracker untouched.
func (w *Watcher) Poll(ctx context.Context) ([]Transition, error) {
	b, err := w.fetch.FetchBoard(ctx)
	if err != nil {
		return nil, err
	}
	w.view.Reconcile(b.RideMap())
	trs := w.tracker.ObserveBoard(b)
	for _, tr := range trs {
		w.onTransition(tr)
	}
	return trs, nil
}

// Start begins polling at the activity's current cadence. Stop ends it.
func (w *Watcher) Start(ctx context.Context) {
	w.task = StartTask(ctx, w.activity.Interval, func(ctx context.Context) {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.log.Warning("board poll failed", logger.Error(err))
		}
	})
}

func (w *Watcher) Stop() {
	if w.task != nil {
		w.task.Stop()
	}
}

// Touch records an interaction and polls right away.
func (w *Watcher) Touch() {
	w.activity.Touch()
	if w.task != nil {
		w.task.Wake()
	}
}

func (w *Watcher) View() *View[string, Ride] {
	return w.view
}
