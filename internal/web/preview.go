package web

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// previewClient is the slice of the API client the fetcher needs
type previewClient interface {
	RankPreview(ctx context.Context, country string, timeSec float64) (*int64, error)
}

// PreviewFetcher asks the backend for a best-effort rank estimate.
// Concurrent fetches for the same country and time collapse into one
// outbound request; failures of any kind leave the preview unset. A
// caller whose context ends before the shared call resolves discards
// the result rather than waiting on it.
type PreviewFetcher struct {
	client previewClient
	group  singleflight.Group
}

// NewPreviewFetcher creates a fetcher over the given API client
func NewPreviewFetcher(client previewClient) *PreviewFetcher {
	return &PreviewFetcher{client: client}
}

// Fetch returns the estimated rank for a time in a country. No request is
// issued when the country is empty or the time not positive. The second
// return is false whenever no estimate is available, for whatever reason.
func (f *PreviewFetcher) Fetch(ctx context.Context, country string, timeSec float64) (int64, bool) {
	if country == "" || timeSec <= 0 {
		return 0, false
	}

	key := country + "|" + strconv.FormatFloat(timeSec, 'f', -1, 64)
	ch := f.group.DoChan(key, func() (interface{}, error) {
		return f.client.RankPreview(context.WithoutCancel(ctx), country, timeSec)
	})

	select {
	case <-ctx.Done():
		// Inputs gone stale before the shared call resolved
		return 0, false
	case res := <-ch:
		if res.Err != nil {
			return 0, false
		}
		rank, ok := res.Val.(*int64)
		if !ok || rank == nil {
			return 0, false
		}
		return *rank, true
	}
}
