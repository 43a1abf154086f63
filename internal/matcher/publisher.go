package matcher

import (
	"encoding/json"
	"fmt"

	"github.com/meetmates/matcher/internal/messaging"
)

// PublishRanked broadcasts a rank response on match.ranked.<requester_id>
// so that other interested services see fresh results without asking.
func PublishRanked(nats *messaging.NATSClient, resp RankResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("matcher: marshal ranked for %s: %w", resp.RequesterID, err)
	}
	if err := nats.PublishRanked(resp.RequesterID, data); err != nil {
		return fmt.Errorf("matcher: publish match.ranked for %s: %w", resp.RequesterID, err)
	}
	return nil
}
