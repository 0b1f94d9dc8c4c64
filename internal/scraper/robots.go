package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsChecker caches the robots.txt group for each host it has seen.
// A host whose robots.txt cannot be fetched is treated as allowing everything.
type robotsChecker struct {
	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

func (r *robotsChecker) allowed(ctx context.Context, client *http.Client, target *url.URL) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.groups == nil {
		r.groups = make(map[string]*robotstxt.Group)
	}

	group, seen := r.groups[target.Host]
	if !seen {
		var err error
		group, err = fetchRobots(ctx, client, target)
		if err != nil {
			return false, err
		}
		r.groups[target.Host] = group
	}

	if group == nil {
		return true, nil
	}
	return group.Test(target.RequestURI()), nil
}

// fetchRobots returns the group for RobotsAgent, or nil when robots.txt is
// unreachable or unparsable. Only a cancelled context is an error.
func fetchRobots(ctx context.Context, client *http.Client, target *url.URL) (*robotstxt.Group, error) {
	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetching robots.txt: %w", ctx.Err())
		}
		return nil, nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, nil
	}
	return data.FindGroup(RobotsAgent), nil
}
