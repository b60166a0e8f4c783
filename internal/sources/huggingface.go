package sources

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"newsroll/internal/core"
)

// HuggingFaceURL is the model listing endpoint.
const HuggingFaceURL = "https://huggingface.co/api/models"

// HuggingFace lists trending models from the Hub.
type HuggingFace struct {
	HTTP     *HTTP
	Endpoint string
	Limit    int
	Loc      *time.Location
}

type hfModel struct {
	ModelID      string `json:"modelId"`
	ID           string `json:"id"`
	PipelineTag  string `json:"pipeline_tag"`
	LibraryName  string `json:"library_name"`
	LastModified string `json:"lastModified"`
}

func (h *HuggingFace) Name() string    { return "Hugging Face Hub" }
func (h *HuggingFace) Kind() core.Kind { return core.KindHuggingFace }

func (h *HuggingFace) Fetch(ctx context.Context) ([]core.RawItem, error) {
	endpoint := h.Endpoint
	if endpoint == "" {
		endpoint = HuggingFaceURL
	}
	params := url.Values{
		"sort":      {"trending"},
		"direction": {"-1"},
		"limit":     {strconv.Itoa(h.Limit)},
	}

	var models []hfModel
	if err := h.HTTP.GetJSON(ctx, endpoint, params, nil, &models); err != nil {
		return nil, err
	}

	items := make([]core.RawItem, 0, len(models))
	for _, m := range models {
		id := m.ModelID
		if id == "" {
			id = m.ID
		}
		if id == "" {
			continue
		}
		snippet := m.PipelineTag
		if snippet == "" {
			snippet = m.LibraryName
		}
		items = append(items, core.RawItem{
			Title:       core.NormalizeText(id),
			URL:         "https://huggingface.co/" + id,
			Source:      h.Name(),
			PublishedAt: parseTime(m.LastModified, h.Loc),
			Snippet:     core.NormalizeText(snippet),
			Tab:         core.DefaultTab,
			Kind:        core.KindHuggingFace,
		})
	}
	return items, nil
}
