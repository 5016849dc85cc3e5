package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// VendorChecker checks that each market data vendor answers HTTP. Any
// response below 500 counts as reachable; the probe does not spend the
// vendors' rate limits on real queries.
type VendorChecker struct {
	endpoints map[string]string
	client    *http.Client
}

// NewVendorChecker checks endpoints, a vendor name to base URL map. A nil
// client uses a 5 second timeout.
func NewVendorChecker(endpoints map[string]string, client *http.Client) *VendorChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &VendorChecker{endpoints: endpoints, client: client}
}

func (c *VendorChecker) Name() string {
	return "market-vendors"
}

// Check is healthy when every vendor is reachable, degraded when some are
// and unhealthy when none are. The dashboard keeps working with partial
// data, so one vendor down is not fatal.
func (c *VendorChecker) Check(ctx context.Context) *Result {
	if len(c.endpoints) == 0 {
		return Unhealthy("no market vendors configured")
	}

	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	vendors := make(map[string]interface{}, len(names))
	reachable := 0
	for _, name := range names {
		status, err := c.probe(ctx, c.endpoints[name])
		detail := map[string]interface{}{"url": c.endpoints[name]}
		switch {
		case err != nil:
			detail["reachable"] = false
			detail["error"] = err.Error()
		case status >= 500:
			detail["reachable"] = false
			detail["status"] = status
		default:
			detail["reachable"] = true
			detail["status"] = status
			reachable++
		}
		vendors[name] = detail
	}

	var res *Result
	switch reachable {
	case len(names):
		res = Healthy(fmt.Sprintf("all vendors reachable (%d/%d)", reachable, len(names)))
	case 0:
		res = Unhealthy(fmt.Sprintf("no vendors reachable (0/%d)", len(names)))
	default:
		res = Degraded(fmt.Sprintf("some vendors unreachable (%d/%d)", reachable, len(names)))
	}
	return res.WithDetail("vendors", vendors)
}

func (c *VendorChecker) probe(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
