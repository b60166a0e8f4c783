package sources

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DART endpoints.
const (
	DARTCorpCodeURL = "https://opendart.fss.or.kr/api/corpCode.xml"
	DARTListURL     = "https://opendart.fss.or.kr/api/list.json"
)

// CorpEntry is one row of the DART corporation code table.
type CorpEntry struct {
	CorpCode string `xml:"corp_code"`
	CorpName string `xml:"corp_name"`
}

// Disclosure is one row of list.json.
type Disclosure struct {
	CorpCode  string `json:"corp_code"`
	CorpName  string `json:"corp_name"`
	ReportNm  string `json:"report_nm"`
	RceptNo   string `json:"rcept_no"`
	FlrNm     string `json:"flr_nm"`
	RceptDt   string `json:"rcept_dt"`
	Rm        string `json:"rm"`
	GroupType string `json:"-"` // pblntf_ty the row was requested under
}

// DART is an OpenDART client.
type DART struct {
	HTTP    *HTTP
	APIKey  string
	CodeURL string
	ListURL string
}

// CorpCodes downloads the corporation code archive and decodes its first member.
func (d *DART) CorpCodes(ctx context.Context) ([]CorpEntry, error) {
	endpoint := d.CodeURL
	if endpoint == "" {
		endpoint = DARTCorpCodeURL
	}
	body, err := d.HTTP.Get(ctx, endpoint, url.Values{"crtfc_key": {d.APIKey}}, nil)
	if err != nil {
		return nil, err
	}
	return decodeCorpCodes(body)
}

func decodeCorpCodes(body []byte) ([]CorpEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to open corpCode zip: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, errors.New("DART corpCode zip is empty")
	}
	f, err := zr.File[0].Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var doc struct {
		List []CorpEntry `xml:"list"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode corpCode xml: %w", err)
	}
	return doc.List, nil
}

type listResponse struct {
	Status    string       `json:"status"`
	Message   string       `json:"message"`
	TotalPage int          `json:"total_page"`
	List      []Disclosure `json:"list"`
}

// ListDisclosures pages through list.json for corpCode between start and end.
// list.json takes one pblntf_ty per call, so each type is requested in turn
// and the results concatenated. Status 013 means no data.
func (d *DART) ListDisclosures(ctx context.Context, corpCode string, start, end time.Time, types []string, lastReport string) ([]Disclosure, error) {
	if len(types) == 0 {
		return d.listOne(ctx, corpCode, start, end, "", lastReport)
	}
	var merged []Disclosure
	for _, ty := range types {
		rows, err := d.listOne(ctx, corpCode, start, end, ty, lastReport)
		if err != nil {
			return merged, err
		}
		merged = append(merged, rows...)
	}
	return merged, nil
}

func (d *DART) listOne(ctx context.Context, corpCode string, start, end time.Time, ty, lastReport string) ([]Disclosure, error) {
	endpoint := d.ListURL
	if endpoint == "" {
		endpoint = DARTListURL
	}
	var out []Disclosure
	for page := 1; ; page++ {
		params := url.Values{
			"crtfc_key":  {d.APIKey},
			"corp_code":  {corpCode},
			"bgn_de":     {start.Format("20060102")},
			"end_de":     {end.Format("20060102")},
			"page_no":    {strconv.Itoa(page)},
			"page_count": {"100"},
		}
		if ty != "" {
			params.Set("pblntf_ty", ty)
		}
		if lastReport != "" {
			params.Set("last_reprt_at", lastReport)
		}

		var payload listResponse
		if err := d.HTTP.GetJSON(ctx, endpoint, params, nil, &payload); err != nil {
			return out, err
		}
		if payload.Status == "013" {
			break
		}
		if payload.Status != "000" {
			return out, fmt.Errorf("DART list error: status=%s message=%s", payload.Status, payload.Message)
		}
		for _, row := range payload.List {
			row.GroupType = ty
			out = append(out, row)
		}
		if payload.TotalPage <= page {
			break
		}
	}
	return out, nil
}

// DisclosureURL links to the DART viewer for a receipt number.
func DisclosureURL(rceptNo string) string {
	if rceptNo == "" {
		return ""
	}
	return "https://dart.fss.or.kr/dsaf001/main.do?rcpNo=" + rceptNo
}

var (
	corpSuffix  = regexp.MustCompile(`\(주\)|㈜|주식회사`)
	corpInvalid = regexp.MustCompile(`[^a-z0-9가-힣]`)
)

// NormalizeCorpName lowercases a company name and strips legal suffixes,
// whitespace and punctuation.
func NormalizeCorpName(name string) string {
	s := strings.ToLower(name)
	s = corpSuffix.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "")
	return corpInvalid.ReplaceAllString(s, "")
}

// MatchCorpCodes resolves company names to corp codes. Overrides win; then a
// unique exact match on the normalized name; then a unique substring match.
// Anything else is returned as unmatched, in input order.
func MatchCorpCodes(companies []string, entries []CorpEntry, overrides map[string]string) (map[string]string, []string) {
	byName := make(map[string][]CorpEntry)
	var names []string
	for _, e := range entries {
		key := NormalizeCorpName(e.CorpName)
		if key == "" {
			continue
		}
		if _, ok := byName[key]; !ok {
			names = append(names, key)
		}
		byName[key] = append(byName[key], e)
	}

	matched := make(map[string]string)
	var unmatched []string
	for _, company := range companies {
		if code, ok := overrides[company]; ok {
			matched[company] = code
			continue
		}
		key := NormalizeCorpName(company)
		candidates := byName[key]
		if len(candidates) == 1 {
			matched[company] = candidates[0].CorpCode
			continue
		}
		if len(candidates) == 0 && key != "" {
			var hits []CorpEntry
			for _, name := range names {
				if strings.Contains(name, key) {
					hits = append(hits, byName[name]...)
				}
			}
			if len(hits) == 1 {
				matched[company] = hits[0].CorpCode
				continue
			}
		}
		unmatched = append(unmatched, company)
	}
	return matched, unmatched
}
