package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// GitHubAPI is the REST API root.
const GitHubAPI = "https://api.github.com"

// Repo is the subset of a GitHub repository the radar reads.
type Repo struct {
	FullName    string   `json:"full_name"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Stars       int      `json:"stargazers_count"`
	Forks       int      `json:"forks_count"`
	HTMLURL     string   `json:"html_url"`
	Topics      []string `json:"topics"`
	UpdatedAt   string   `json:"updated_at"`
}

// Release is the subset of a GitHub release the radar reads.
type Release struct {
	TagName     string `json:"tag_name"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
}

// GitHub is a minimal REST client.
type GitHub struct {
	HTTP  *HTTP
	Base  string
	Token string
}

func (g *GitHub) base() string {
	if g.Base == "" {
		return GitHubAPI
	}
	return strings.TrimRight(g.Base, "/")
}

func (g *GitHub) headers() map[string]string {
	h := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if g.Token != "" {
		h["Authorization"] = "Bearer " + g.Token
	}
	return h
}

// SearchRecent pages through repositories created on or after createdAfter
// (YYYY-MM-DD) with at least minStars, most starred first. A 403 (rate limit)
// or a short page ends the search with what has been collected.
func (g *GitHub) SearchRecent(ctx context.Context, createdAfter string, minStars, perPage, pages int) ([]Repo, error) {
	var repos []Repo
	for page := 1; page <= pages; page++ {
		params := url.Values{
			"q":        {fmt.Sprintf("created:>=%s stars:>=%d", createdAfter, minStars)},
			"sort":     {"stars"},
			"order":    {"desc"},
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		var payload struct {
			Items []Repo `json:"items"`
		}
		err := g.HTTP.GetJSON(ctx, g.base()+"/search/repositories", params, g.headers(), &payload)
		if HasStatus(err, http.StatusForbidden) {
			break
		}
		if err != nil {
			return repos, err
		}
		repos = append(repos, payload.Items...)
		if len(payload.Items) < perPage {
			break
		}
	}
	return repos, nil
}

// Repo returns owner/name, or nil when it does not exist.
func (g *GitHub) Repo(ctx context.Context, owner, name string) (*Repo, error) {
	var repo Repo
	err := g.HTTP.GetJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", g.base(), owner, name), nil, g.headers(), &repo)
	if HasStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// LatestRelease returns the latest release, or nil when there is none.
func (g *GitHub) LatestRelease(ctx context.Context, owner, name string) (*Release, error) {
	var rel Release
	err := g.HTTP.GetJSON(ctx, fmt.Sprintf("%s/repos/%s/%s/releases/latest", g.base(), owner, name), nil, g.headers(), &rel)
	if HasStatus(err, http.StatusNotFound, http.StatusUnprocessableEntity) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// ParseRepoURL extracts owner and repository from a github.com or
// raw.githubusercontent.com URL.
func ParseRepoURL(raw string) (owner, name string, ok bool) {
	if raw == "" {
		return "", "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	host := strings.ToLower(u.Host)
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", "", false
	}
	switch {
	case strings.HasSuffix(host, "raw.githubusercontent.com"):
		return parts[0], parts[1], true
	case strings.HasSuffix(host, "github.com"):
		return parts[0], strings.TrimSuffix(parts[1], ".git"), true
	}
	return "", "", false
}
