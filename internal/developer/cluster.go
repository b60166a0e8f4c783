// Package developer builds the developer radar: GitHub repositories and
// Hacker News threads ranked into sectioned clusters.
package developer

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"newsroll/internal/core"
	"newsroll/internal/sources"
	"newsroll/internal/topics"
)

// Sections of the radar.
const (
	SectionReleases    = "releases"
	SectionTrending    = "trending"
	SectionDiscussions = "discussions"
)

const (
	discussionComments = 120
	hotHNComments      = 80
	starsSignal        = 200
	releaseBonus       = 20

	defaultRepoLiner = "오픈 소스 개발 도구/프로젝트입니다."
	defaultHNLiner   = "개발자 커뮤니티에서 화제가 되는 신규 토픽입니다."
)

// Reason selects the family of whyNow templates for a cluster.
type Reason string

const (
	ReasonRelease    Reason = "release"
	ReasonDiscussion Reason = "discussion"
	ReasonStars      Reason = "stars"
	ReasonGradual    Reason = "gradual"
	ReasonHNHot      Reason = "hn_hot"
	ReasonHNRising   Reason = "hn_rising"
)

var whyNowTemplates = map[Reason][]string{
	ReasonRelease: {
		"최근 릴리즈가 발표되어 빠르게 확산되고 있습니다.",
		"새 버전이 공개되며 도입 검토가 이어지고 있습니다.",
		"최신 릴리즈 이후 사용 사례가 빠르게 늘고 있습니다.",
	},
	ReasonDiscussion: {
		"HN 토론이 급증하며 주목도가 빠르게 올라가고 있습니다.",
		"개발자 토론이 활발해지며 관심이 집중되고 있습니다.",
	},
	ReasonStars: {
		"GitHub 스타 증가와 업데이트가 동시에 관측되고 있습니다.",
		"스타 수가 빠르게 늘며 업데이트도 꾸준히 이어지고 있습니다.",
	},
	ReasonGradual: {
		"개발자 커뮤니티에서 점진적으로 언급이 늘고 있습니다.",
		"작지만 꾸준한 관심이 이어지고 있습니다.",
	},
	ReasonHNHot: {
		"HN 토론이 빠르게 늘고 있습니다.",
		"HN 댓글이 몰리며 논쟁이 이어지고 있습니다.",
	},
	ReasonHNRising: {
		"HN에서 관심이 빠르게 올라가고 있습니다.",
		"HN 상위권에 오르며 주목받고 있습니다.",
	},
}

// WhyNow picks a rationale for reason. The choice is seeded by id and date
// only, so reruns on the same day produce the same text.
func WhyNow(reason Reason, id, date string) string {
	options := whyNowTemplates[reason]
	if len(options) == 0 {
		options = whyNowTemplates[ReasonGradual]
	}
	sum := sha256.Sum256([]byte(id + "|" + date))
	rng := rand.New(rand.NewPCG(binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])))
	return options[rng.IntN(len(options))]
}

// ClusterID hashes a natural key such as "github:owner/name".
func ClusterID(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// RepoCluster scores a repository together with its latest release and the
// Hacker News stories linking to it.
func RepoCluster(repo sources.Repo, release *sources.Release, stories []sources.HNStory, now time.Time, releaseDays int, tags *topics.TagNormalizer) core.Cluster {
	name := repo.FullName
	if name == "" {
		name = repo.Name
	}
	if name == "" {
		name = "Unknown"
	}

	var evidence []core.Evidence
	if repo.Stars > 0 {
		evidence = append(evidence, core.Evidence{Source: "GitHub", Metric: "stars", Value: humanize.Comma(int64(repo.Stars))})
	}
	if repo.Forks > 0 {
		evidence = append(evidence, core.Evidence{Source: "GitHub", Metric: "forks", Value: humanize.Comma(int64(repo.Forks))})
	}
	if updated := parseTime(repo.UpdatedAt); !updated.IsZero() {
		evidence = append(evidence, core.Evidence{Source: "GitHub", Metric: "updated", Value: core.FormatDate(updated.In(now.Location()))})
	}

	recent := false
	if release != nil {
		published := parseTime(release.PublishedAt)
		// Whole elapsed days, so a release 7d23h old is still within 7 days.
		if !published.IsZero() && now.Sub(published) < time.Duration(releaseDays+1)*24*time.Hour {
			recent = true
			value := release.TagName
			if value == "" {
				value = core.FormatDate(published.In(now.Location()))
			}
			evidence = append(evidence, core.Evidence{Source: "GitHub", Metric: "release", Value: value})
		}
	}

	points, comments := 0, 0
	for _, s := range stories {
		points += s.Points
		comments += s.Comments
	}
	if points > 0 || comments > 0 {
		evidence = append(evidence, core.Evidence{Source: "Hacker News", Metric: "signal", Value: fmt.Sprintf("%dp · %dc", points, comments)})
	}

	score := float64(repo.Stars)/25 + float64(repo.Forks)/50 + float64(points)*0.6 + float64(comments)*1.2
	if recent {
		score += releaseBonus
	}

	section, reason := SectionTrending, ReasonGradual
	switch {
	case recent:
		section, reason = SectionReleases, ReasonRelease
	case comments >= discussionComments:
		section, reason = SectionDiscussions, ReasonDiscussion
	case repo.Stars >= starsSignal:
		reason = ReasonStars
	}

	var links []core.Link
	if repo.HTMLURL != "" {
		links = append(links, core.Link{Label: "GitHub", URL: repo.HTMLURL})
	}
	if release != nil && release.HTMLURL != "" {
		links = append(links, core.Link{Label: "Release", URL: release.HTMLURL})
	}
	for _, s := range stories {
		if s.HNURL != "" {
			links = append(links, core.Link{Label: "HN Thread", URL: s.HNURL})
			break
		}
	}

	oneLiner := repo.Description
	if oneLiner == "" {
		oneLiner = defaultRepoLiner
	}
	id := ClusterID("github:" + name)
	return core.Cluster{
		ID:       id,
		Name:     name,
		Section:  section,
		Status:   core.StatusOngoing,
		Score:    round2(score),
		OneLiner: oneLiner,
		WhyNow:   WhyNow(reason, id, core.FormatDate(now)),
		Evidence: nonNil(evidence),
		Links:    nonNil(links),
		Tags:     nonNil(tags.Tags(repo.Topics, name+" "+repo.Description)),
	}
}

// HNCluster scores a Hacker News story that does not link to a repository.
func HNCluster(story sources.HNStory, now time.Time, tags *topics.TagNormalizer) core.Cluster {
	title := story.Item.Title
	if title == "" {
		title = "Unknown"
	}
	section := SectionTrending
	if story.Comments >= discussionComments {
		section = SectionDiscussions
	}
	reason := ReasonHNRising
	if story.Comments >= hotHNComments {
		reason = ReasonHNHot
	}

	var links []core.Link
	if story.HNURL != "" {
		links = append(links, core.Link{Label: "HN Thread", URL: story.HNURL})
	}
	if story.Item.URL != "" {
		links = append(links, core.Link{Label: "Source", URL: story.Item.URL})
	}

	id := ClusterID("hn:" + title)
	return core.Cluster{
		ID:       id,
		Name:     core.NormalizeText(title),
		Section:  section,
		Status:   core.StatusOngoing,
		Score:    round2(float64(story.Points)*0.6 + float64(story.Comments)*1.2),
		OneLiner: defaultHNLiner,
		WhyNow:   WhyNow(reason, id, core.FormatDate(now)),
		Evidence: []core.Evidence{{Source: "Hacker News", Metric: "signal", Value: fmt.Sprintf("%dp · %dc", story.Points, story.Comments)}},
		Links:    nonNil(links),
		Tags:     nonNil(tags.Tags(nil, title)),
	}
}

// Build ranks clusters by score, keeps the top max and marks those absent
// from the previous snapshot as NEW.
func Build(clusters []core.Cluster, prevIDs map[string]bool, max int, date string) core.DeveloperReport {
	ranked := make([]core.Cluster, len(clusters))
	copy(ranked, clusters)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}

	used := make(map[string]bool)
	newCount := 0
	for i := range ranked {
		if !prevIDs[ranked[i].ID] {
			ranked[i].Status = core.StatusNew
			newCount++
		} else {
			ranked[i].Status = core.StatusOngoing
		}
		for _, e := range ranked[i].Evidence {
			if e.Source != "" {
				used[e.Source] = true
			}
		}
	}

	return core.DeveloperReport{
		Date:     date,
		KPIs:     core.DeveloperKPIs{Clusters: len(ranked), Sources: len(used), New: newCount},
		Clusters: ranked,
	}
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
