package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"newsroll/internal/core"
)

// HackerNewsURL is the Algolia search endpoint.
const HackerNewsURL = "https://hn.algolia.com/api/v1/search_by_date"

// HNStory is a Hacker News hit with its engagement counters.
type HNStory struct {
	Item     core.RawItem
	Points   int
	Comments int
	HNURL    string
}

// HackerNews pulls recent popular stories through Algolia.
type HackerNews struct {
	HTTP        *HTTP
	Endpoint    string
	Limit       int
	Window      time.Duration
	PointsMin   int
	CommentsMin int
	Loc         *time.Location
	Now         func() time.Time
}

type hnResponse struct {
	Hits []struct {
		ObjectID    string `json:"objectID"`
		Title       string `json:"title"`
		StoryTitle  string `json:"story_title"`
		URL         string `json:"url"`
		StoryURL    string `json:"story_url"`
		Points      int    `json:"points"`
		NumComments int    `json:"num_comments"`
		CreatedAtI  int64  `json:"created_at_i"`
	} `json:"hits"`
}

func (h *HackerNews) Name() string    { return "Hacker News" }
func (h *HackerNews) Kind() core.Kind { return core.KindHN }

func (h *HackerNews) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Stories returns hits inside the window that pass either engagement
// threshold and link somewhere.
func (h *HackerNews) Stories(ctx context.Context) ([]HNStory, error) {
	endpoint := h.Endpoint
	if endpoint == "" {
		endpoint = HackerNewsURL
	}
	loc := h.Loc
	if loc == nil {
		loc = time.UTC
	}
	since := h.now().Add(-h.Window).Unix()
	params := url.Values{
		"query":          {""},
		"tags":           {"story"},
		"filters":        {"NOT tags:ask_hn AND NOT tags:show_hn AND NOT tags:job"},
		"numericFilters": {fmt.Sprintf("created_at_i>=%d", since)},
		"hitsPerPage":    {strconv.Itoa(h.Limit)},
	}

	var payload hnResponse
	if err := h.HTTP.GetJSON(ctx, endpoint, params, nil, &payload); err != nil {
		return nil, err
	}

	var stories []HNStory
	for _, hit := range payload.Hits {
		if hit.Points < h.PointsMin && hit.NumComments < h.CommentsMin {
			continue
		}
		link := hit.URL
		if link == "" {
			link = hit.StoryURL
		}
		if link == "" {
			continue
		}
		title := hit.Title
		if title == "" {
			title = hit.StoryTitle
		}
		var published time.Time
		if hit.CreatedAtI > 0 {
			published = time.Unix(hit.CreatedAtI, 0).In(loc)
		}
		story := HNStory{
			Item: core.RawItem{
				Title:       core.NormalizeText(title),
				URL:         link,
				Source:      h.Name(),
				PublishedAt: published,
				Snippet:     fmt.Sprintf("%d points · %d comments", hit.Points, hit.NumComments),
				Tab:         core.DefaultTab,
				Kind:        core.KindHN,
			},
			Points:   hit.Points,
			Comments: hit.NumComments,
		}
		if hit.ObjectID != "" {
			story.HNURL = "https://news.ycombinator.com/item?id=" + hit.ObjectID
		}
		stories = append(stories, story)
	}
	return stories, nil
}

func (h *HackerNews) Fetch(ctx context.Context) ([]core.RawItem, error) {
	stories, err := h.Stories(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]core.RawItem, len(stories))
	for i, s := range stories {
		items[i] = s.Item
	}
	return items, nil
}
